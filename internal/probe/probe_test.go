package probe

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"eocd/internal/adapter"
	"eocd/internal/daemonrpc"
)

// fakeDaemon is a scripted stand-in for a real daemon connection, used
// to exercise the probe state machine's command ordering without a live
// on-chip-debug daemon.
type fakeDaemon struct {
	initialized bool
	targetNames []string
	transport   string
	commFailure bool

	idcodeByTransport map[string]uint32
	mcuWord           uint32

	commands []string
}

func (f *fakeDaemon) Command(cmd string) (string, error) {
	f.commands = append(f.commands, cmd)
	if cmd == "init" {
		f.initialized = true
	}
	return "", nil
}

func (f *fakeDaemon) Call(proc string, args ...string) (string, error) {
	f.commands = append(f.commands, proc)
	if proc == "init" {
		f.initialized = true
	}
	return "", nil
}

func (f *fakeDaemon) Initialized() (bool, error) { return f.initialized, nil }
func (f *fakeDaemon) TargetNames() ([]string, error) {
	if !f.initialized {
		return nil, nil
	}
	return f.targetNames, nil
}
func (f *fakeDaemon) GetTransport() (string, error) { return f.transport, nil }
func (f *fakeDaemon) Poll() (daemonrpc.PollStatus, error) {
	return daemonrpc.PollStatus{CommunicationFailure: f.commFailure}, nil
}

func (f *fakeDaemon) Idcode() (uint32, error) {
	// The transport select commands appended just before this call tell
	// us which transport is currently active.
	for i := len(f.commands) - 1; i >= 0; i-- {
		if cmd := f.commands[i]; strings.HasPrefix(cmd, "transport select ") {
			t := strings.TrimPrefix(cmd, "transport select ")
			t = strings.TrimPrefix(t, "hla_")
			return f.idcodeByTransport[t], nil
		}
	}
	if f.transport != "" {
		return f.idcodeByTransport[f.transport], nil
	}
	return 0, fmt.Errorf("no transport selected")
}

func (f *fakeDaemon) ReadWord(addr uint32) (uint32, error) {
	return f.mcuWord, nil
}

var stlinkInst = adapter.Instance{
	Profile: adapter.Profile{
		Name:         "ST-Link/V2-1",
		Interface:    "hla",
		HLALayout:    "stlink",
		SupportsJTAG: false,
		SupportsSWD:  true,
		HasResetLine: true,
	},
}

func TestFastPathReusesInitializedDaemon(t *testing.T) {
	f := &fakeDaemon{
		initialized:       true,
		targetNames:       []string{"stm32f4.cpu"},
		transport:         "swd",
		idcodeByTransport: map[string]uint32{"swd": 0x2ba01477},
		mcuWord:           0x10036419,
	}
	out, ok, err := FastPath(f)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "swd", out.Transport)
	require.Equal(t, "stm32f4.cpu", out.ChipName)
	require.Equal(t, "STM32F42xxx and STM32F43xxx", out.Mcu.Device)
}

func TestFastPathRejectsUninitializedDaemon(t *testing.T) {
	f := &fakeDaemon{initialized: false}
	_, ok, err := FastPath(f)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFastPathRejectsDetectionPlaceholder(t *testing.T) {
	f := &fakeDaemon{initialized: true, targetNames: []string{detectionTAP + ".cpu"}}
	_, ok, err := FastPath(f)
	require.NoError(t, err)
	require.False(t, ok, "a daemon still carrying the detection placeholder TAP must not be reused")
}

func TestFastPathRejectsCommunicationFailure(t *testing.T) {
	f := &fakeDaemon{
		initialized: true,
		targetNames: []string{"stm32f4.cpu"},
		commFailure: true,
	}
	_, ok, err := FastPath(f)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDetectSucceedsOnSWD(t *testing.T) {
	f := &fakeDaemon{
		idcodeByTransport: map[string]uint32{"swd": 0x2ba01477},
		mcuWord:           0x10036419, // STM32F429I DISCOVERY
	}
	transport, dap, mcu, err := Detect(f, stlinkInst)
	require.NoError(t, err)
	require.Equal(t, "swd", transport)
	require.True(t, dap.Implemented())
	require.Equal(t, "STM32F42xxx and STM32F43xxx", mcu.Device)
	require.Equal(t, "stm32f2x", mcu.FlashAlgorithm)
}

func TestDetectIssuesResetConfigOnlyWhenAdapterHasResetLine(t *testing.T) {
	f := &fakeDaemon{idcodeByTransport: map[string]uint32{"swd": 0x2ba01477}, mcuWord: 0x10036419}
	_, _, _, err := Detect(f, stlinkInst)
	require.NoError(t, err)
	require.Contains(t, f.commands, "reset_config srst_only")

	noReset := stlinkInst
	noReset.Profile.HasResetLine = false
	f2 := &fakeDaemon{idcodeByTransport: map[string]uint32{"swd": 0x2ba01477}, mcuWord: 0x10036419}
	_, _, _, err = Detect(f2, noReset)
	require.NoError(t, err)
	require.NotContains(t, f2.commands, "reset_config srst_only")
}

func TestDetectFailsWhenSWDDapNotImplementedEvenIfJTAGSupported(t *testing.T) {
	// DAP detection over JTAG is architecturally absent from this daemon
	// version (§4.5 step 6): once SWD fails to find an implemented DAP,
	// there is no usable fallback, even for an adapter whose profile
	// supports JTAG.
	jtagCapable := stlinkInst
	jtagCapable.Profile.SupportsJTAG = true

	f := &fakeDaemon{
		idcodeByTransport: map[string]uint32{"swd": 0, "jtag": 0x4ba00477},
		mcuWord:           0x10006437,
	}
	_, _, _, err := Detect(f, jtagCapable)
	require.Error(t, err)

	require.Contains(t, f.commands, "reset halt", "jtag must still be attempted and configured before giving up")
	require.Contains(t, f.commands, "transport select hla_jtag", "jtag must still be attempted and configured before giving up")
}

func TestDetectSkipsJTAGWhenProfileDoesNotSupportIt(t *testing.T) {
	f := &fakeDaemon{idcodeByTransport: map[string]uint32{"swd": 0}}
	_, _, _, err := Detect(f, stlinkInst)
	require.Error(t, err)
	for _, c := range f.commands {
		require.NotEqual(t, "transport select hla_jtag", c)
	}
}

func TestProductionInitRunsInitExactlyOnce(t *testing.T) {
	f := &fakeDaemon{}
	mcu := McuInfo{FlashAlgorithm: "stm32f2x"}
	mcu.Device = "STM32F42xxx and STM32F43xxx"
	tap, err := ProductionInit(f, "swd", stlinkInst, mcu)
	require.NoError(t, err)
	require.Equal(t, "stm32f42xxx.cpu", tap)
	require.True(t, f.initialized)

	initCount := 0
	for _, c := range f.commands {
		if c == "init" {
			initCount++
		}
	}
	require.Equal(t, 1, initCount)
}

func TestProductionInitSkipsSysresetreqForHLA(t *testing.T) {
	f := &fakeDaemon{}
	mcu := McuInfo{}
	mcu.Device = "STM32F42xxx and STM32F43xxx"
	_, err := ProductionInit(f, "swd", stlinkInst, mcu)
	require.NoError(t, err)
	require.NotContains(t, f.commands, "cortex_m reset_config sysresetreq")

	nonHLA := stlinkInst
	nonHLA.Profile.Interface = "cmsis-dap"
	f2 := &fakeDaemon{}
	_, err = ProductionInit(f2, "swd", nonHLA, mcu)
	require.NoError(t, err)
	require.Contains(t, f2.commands, "cortex_m reset_config sysresetreq")
}
