// Package options resolves the adapter-selection and run-mode
// configuration shared by every subcommand, from command-line flags
// with environment-variable fallbacks.
package options

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"eocd/internal/adapter"
)

// Options holds the resolved configuration for one invocation.
type Options struct {
	Criteria       adapter.Criteria
	NonInteractive bool
	Verbose        bool

	ELF     string
	GDBPath string
	Host    string

	// Passthrough holds every argument that is not one of eocd's own
	// (an --eocd-/-eocd- prefixed flag, the value following a
	// value-taking one, or -h/--help), forwarded to gdb verbatim in the
	// order it appeared.
	Passthrough []string

	RendezvousDir string
	DaemonPath    string
}

// eocdPrefixes are the argument prefixes recognized as this program's
// own flags; anything else is gdb passthrough per §6.
var eocdPrefixes = []string{"--eocd-", "-eocd-"}

// valueTakingFlags lists the flags in eocdPrefixes that consume the
// following token as their value when not given as --flag=value.
var valueTakingFlags = map[string]bool{
	"eocd-gdb-file":                true,
	"eocd-adapter-usb-serial":      true,
	"eocd-adapter-usb-bus-addr":    true,
	"eocd-adapter-usb-vid-pid":     true,
}

// splitArgs partitions args into tokens meant for this program's own
// flag.FlagSet and everything else, which is forwarded to gdb verbatim.
// A bare "-h"/"--help" is treated as our own so usage still works.
func splitArgs(args []string) (own, passthrough []string) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "-h" || a == "--help" {
			own = append(own, a)
			continue
		}
		if !hasEocdPrefix(a) {
			passthrough = append(passthrough, a)
			continue
		}
		own = append(own, a)
		if strings.Contains(a, "=") {
			continue
		}
		name := strings.TrimLeft(a, "-")
		if valueTakingFlags[name] && i+1 < len(args) {
			own = append(own, args[i+1])
			i++
		}
	}
	return own, passthrough
}

func hasEocdPrefix(a string) bool {
	for _, p := range eocdPrefixes {
		if strings.HasPrefix(a, p) {
			return true
		}
	}
	return false
}

// Parse builds Options from args (typically os.Args[1:]), splitting
// eocd's own --eocd-* flags from everything else (forwarded to gdb),
// then layering environment-variable fallbacks under the flags per the
// precedence documented in §6: vid:pid > serial > bus:addr.
func Parse(fs *flag.FlagSet, args []string) (Options, error) {
	ownArgs, passthrough := splitArgs(args)

	var (
		vidPid   = fs.String("eocd-adapter-usb-vid-pid", "", "select adapter by vid:pid, e.g. 0483:374b")
		serial   = fs.String("eocd-adapter-usb-serial", "", "select adapter by USB serial number")
		busAddr  = fs.String("eocd-adapter-usb-bus-addr", "", "select adapter by bus:address, e.g. 1:4")
		nonInter = fs.Bool("eocd-non-interactive", false, "fail instead of prompting when adapter selection is ambiguous")
		verbose  = fs.Bool("eocd-verbose", false, "trace daemon RPC traffic to stderr")
		elf      = fs.String("eocd-gdb-file", "", "ELF image to load into gdb")
	)
	if err := fs.Parse(ownArgs); err != nil {
		return Options{}, err
	}

	opt := Options{
		NonInteractive: *nonInter || envBool("EOCD_NON_INTERACTIVE"),
		Verbose:        *verbose || envBool("EOCD_VERBOSE"),
		ELF:            *elf,
		Host:           os.Getenv("HOST"),
		Passthrough:    passthrough,
		RendezvousDir:  os.TempDir(),
		DaemonPath:     valueOr(os.Getenv("OPENOCD"), "openocd"),
	}

	vp := valueOr(*vidPid, os.Getenv("EOCD_ADAPTER_USB_VID_PID"))
	ser := valueOr(*serial, os.Getenv("EOCD_ADAPTER_USB_SERIAL"))
	ba := valueOr(*busAddr, os.Getenv("EOCD_ADAPTER_USB_BUS_ADDR"))

	switch {
	case vp != "":
		vid, pid, err := parseVIDPID(vp)
		if err != nil {
			return Options{}, err
		}
		opt.Criteria = adapter.Criteria{VID: vid, PID: pid, HaveVIDPID: true}
	case ser != "":
		opt.Criteria = adapter.Criteria{Serial: ser}
	case ba != "":
		bus, addr, err := parseBusAddr(ba)
		if err != nil {
			return Options{}, err
		}
		opt.Criteria = adapter.Criteria{Bus: bus, Address: addr, HaveBusAddr: true}
	}

	return opt, nil
}

func valueOr(flagVal, envVal string) string {
	if flagVal != "" {
		return flagVal
	}
	return envVal
}

func envBool(name string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	return v == "1" || v == "true" || v == "yes"
}

func parseVIDPID(s string) (uint16, uint16, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid vid:pid %q", s)
	}
	vid, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid vid %q: %w", parts[0], err)
	}
	pid, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid pid %q: %w", parts[1], err)
	}
	return uint16(vid), uint16(pid), nil
}

func parseBusAddr(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid bus:addr %q", s)
	}
	bus, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid bus %q: %w", parts[0], err)
	}
	addr, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid addr %q: %w", parts[1], err)
	}
	return bus, addr, nil
}

// GDBExecutable resolves which gdb binary to exec, in the precedence
// order §6 specifies: $GDB, then "<host>-gdb" when a host triple is
// known, then plain "gdb". An explicit GDBPath (not exposed as a flag,
// only settable by callers constructing Options directly) wins over all
// of those.
func (o Options) GDBExecutable() string {
	if o.GDBPath != "" {
		return o.GDBPath
	}
	if g := os.Getenv("GDB"); g != "" {
		return g
	}
	if o.Host != "" {
		return o.Host + "-gdb"
	}
	return "gdb"
}
