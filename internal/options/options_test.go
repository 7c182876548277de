package options

import (
	"flag"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseVIDPIDTakesPrecedenceOverSerial(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	opt, err := Parse(fs, []string{"--eocd-adapter-usb-vid-pid", "0483:374b", "--eocd-adapter-usb-serial", "abc123"})
	require.NoError(t, err)
	require.True(t, opt.Criteria.HaveVIDPID)
	require.Equal(t, uint16(0x0483), opt.Criteria.VID)
	require.Equal(t, uint16(0x374b), opt.Criteria.PID)
}

func TestParseFallsBackToBusAddr(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	opt, err := Parse(fs, []string{"--eocd-adapter-usb-bus-addr", "1:4"})
	require.NoError(t, err)
	require.True(t, opt.Criteria.HaveBusAddr)
	require.Equal(t, 1, opt.Criteria.Bus)
	require.Equal(t, 4, opt.Criteria.Address)
}

func TestEnvVarFallsBackWhenNoFlagGiven(t *testing.T) {
	t.Setenv("EOCD_ADAPTER_USB_SERIAL", "env-serial")
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	opt, err := Parse(fs, nil)
	require.NoError(t, err)
	require.Equal(t, "env-serial", opt.Criteria.Serial)
}

func TestFlagOverridesEnv(t *testing.T) {
	t.Setenv("EOCD_ADAPTER_USB_SERIAL", "env-serial")
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	opt, err := Parse(fs, []string{"--eocd-adapter-usb-serial", "flag-serial"})
	require.NoError(t, err)
	require.Equal(t, "flag-serial", opt.Criteria.Serial)
}

func TestGDBExecutablePrecedence(t *testing.T) {
	os.Unsetenv("GDB")
	require.Equal(t, "gdb", Options{}.GDBExecutable())
	require.Equal(t, "arm-none-eabi-gdb", Options{Host: "arm-none-eabi"}.GDBExecutable())
	require.Equal(t, "my-gdb", Options{GDBPath: "my-gdb", Host: "arm-none-eabi"}.GDBExecutable())
}

func TestPassthroughArgsForwardedToGDB(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	opt, err := Parse(fs, []string{"--eocd-non-interactive", "-x", "script.gdb", "--batch"})
	require.NoError(t, err)
	require.True(t, opt.NonInteractive)
	require.Equal(t, []string{"-x", "script.gdb", "--batch"}, opt.Passthrough)
}

func TestGDBFileFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	opt, err := Parse(fs, []string{"--eocd-gdb-file", "firmware.elf"})
	require.NoError(t, err)
	require.Equal(t, "firmware.elf", opt.ELF)
}
