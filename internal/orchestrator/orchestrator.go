// Package orchestrator composes adapter selection, daemon supervision,
// and target probing into the end-to-end flows exposed as subcommands:
// launching gdb against a target, programming it, or tearing everything
// down again.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/google/gousb"

	"eocd/internal/adapter"
	"eocd/internal/eocderr"
	"eocd/internal/options"
	"eocd/internal/probe"
	"eocd/internal/supervisor"
)

// SelectAdapter resolves the options' selection criteria against
// connected USB devices. When no selector was given and several adapters
// are connected, it prompts interactively unless non-interactive mode was
// requested; an ambiguous explicit selector fails with
// {MultipleAdaptersMatch}.
func SelectAdapter(ctx *gousb.Context, opt options.Options) (adapter.Instance, error) {
	inst, err := adapter.Select(ctx, opt.Criteria)
	if err == nil {
		return inst, nil
	}

	if !eocderr.Is(err, eocderr.MultipleAdaptersMatch) {
		return adapter.Instance{}, err
	}
	c := opt.Criteria
	selectorGiven := c.HaveVIDPID || c.Serial != "" || c.HaveBusAddr
	if opt.NonInteractive || selectorGiven {
		if e, ok := err.(*eocderr.Error); ok {
			log.Printf("eocd: ambiguous adapter selection, candidates:")
			for _, c := range e.Candidates {
				log.Printf("  %s", c)
			}
		}
		return adapter.Instance{}, err
	}

	all, enumErr := adapter.Enumerate(ctx)
	if enumErr != nil {
		return adapter.Instance{}, enumErr
	}
	return adapter.Choose(all)
}

// acquireDaemon spawns or adopts the daemon for inst and returns both
// the handle and the resolved probe outcome after running the state
// machine's fast or slow path as needed.
func acquireDaemon(ctx context.Context, sup *supervisor.Supervisor, inst adapter.Instance) (*supervisor.Handle, probe.Outcome, error) {
	h, err := sup.Acquire(ctx, inst.RendezvousName())
	if err != nil {
		return nil, probe.Outcome{}, err
	}

	if outcome, ok, err := probe.FastPath(h.Client); err == nil && ok {
		return h, outcome, nil
	}

	transport, dap, mcu, err := probe.Detect(h.Client, inst)
	if err != nil {
		h.Shutdown()
		return nil, probe.Outcome{}, err
	}

	// Production init requires a clean daemon instance: shut the
	// detection daemon down and spawn a fresh one before running init,
	// so init only ever runs once against any given process.
	h.Shutdown()
	h, err = sup.Acquire(ctx, inst.RendezvousName())
	if err != nil {
		return nil, probe.Outcome{}, err
	}

	chip, err := probe.ProductionInit(h.Client, transport, inst, mcu)
	if err != nil {
		h.Shutdown()
		return nil, probe.Outcome{}, err
	}

	outcome := probe.Outcome{
		Transport:     transport,
		ChipName:      chip,
		Dap:           dap,
		Mcu:           mcu,
		Reinitialized: true,
	}
	return h, outcome, nil
}

// ready resolves an adapter and brings its daemon up to a usable state
// (fast path reuse or full detect-and-reinit), the shared first step of
// every subcommand that needs a live target.
func ready(opt options.Options) (*supervisor.Handle, probe.Outcome, int) {
	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	inst, err := SelectAdapter(usbCtx, opt)
	if err != nil {
		return nil, probe.Outcome{}, exitCodeFor(err)
	}

	sup := &supervisor.Supervisor{RendezvousDir: opt.RendezvousDir, DaemonPath: opt.DaemonPath}
	ctx := context.Background()

	if all, err := adapter.Enumerate(usbCtx); err == nil {
		sup.CleanupStale(connectedKeys(all))
	}

	h, outcome, err := acquireDaemon(ctx, sup, inst)
	if err != nil {
		log.Printf("eocd: probe failed: %v", err)
		return nil, probe.Outcome{}, exitCodeFor(err)
	}
	return h, outcome, 0
}

// Setup implements the "setup" subcommand: select an adapter and bring
// its daemon to a ready state without launching gdb, for scripts that
// just want the target initialized and reachable.
func Setup(opt options.Options) int {
	h, outcome, code := ready(opt)
	if h == nil {
		return code
	}
	defer h.Client.Close()
	log.Printf("eocd: target %s ready over %s (gdb port %d, reinitialized=%v)",
		outcome.ChipName, outcome.Transport, h.Rendezvous.GdbPort, outcome.Reinitialized)
	return 0
}

// Program implements the "program" subcommand: bring the daemon up,
// flash the requested ELF image via the daemon's own flash/verify/reset
// sequence, and shut the daemon down again rather than leaving it
// resident, since a one-shot flash has nothing left to attach to.
func Program(opt options.Options) int {
	if opt.ELF == "" {
		log.Printf("eocd: program requires --eocd-gdb-file <elf>")
		return 1
	}
	h, _, code := ready(opt)
	if h == nil {
		return code
	}
	defer h.Client.Close()

	if _, err := h.Client.Call("program", opt.ELF, "verify", "reset", "exit"); err != nil {
		log.Printf("eocd: programming failed: %v", err)
		h.Shutdown()
		return 1
	}
	// The daemon's "program ... exit" sequence shuts itself down once
	// flashing completes. Shutdown drops the rendezvous file when this
	// invocation spawned the daemon; a file recorded for an adopted daemon
	// is discarded by the next Acquire once that daemon no longer answers.
	h.Shutdown()
	return 0
}

// RunGDB implements the "gdb" subcommand: select an adapter, ensure a
// daemon is initialized against it, and exec gdb connected to that
// daemon's gdb port.
func RunGDB(opt options.Options) int {
	h, outcome, code := ready(opt)
	if h == nil {
		return code
	}
	// Only the RPC connection is closed here, not the daemon itself: a
	// spawned daemon is meant to keep running for the next invocation to
	// adopt.
	defer h.Client.Close()

	log.Printf("eocd: target %s ready over %s (reinitialized=%v)", outcome.ChipName, outcome.Transport, outcome.Reinitialized)

	if err := h.Client.SetArmSemihosting(true); err != nil {
		log.Printf("eocd: warning: failed to enable arm semihosting: %v", err)
	}

	gdbArgs := []string{
		"-q",
		"-ex", "set pagination 0",
		"-ex", "set confirm 0",
		"-ex", fmt.Sprintf("target extended-remote :%d", h.Rendezvous.GdbPort),
		"-ex", "monitor halt",
	}
	if opt.ELF != "" {
		gdbArgs = append(gdbArgs, "-ex", fmt.Sprintf("file %s", opt.ELF))
	}
	gdbArgs = append(gdbArgs, opt.Passthrough...)

	return execGDB(opt.GDBExecutable(), gdbArgs)
}

// execGDB runs gdb as a child process, forwarding SIGINT to it rather
// than letting it kill the supervisor, and returns gdb's exit code.
func execGDB(gdbPath string, args []string) int {
	cmd := exec.Command(gdbPath, args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)

	if err := cmd.Start(); err != nil {
		log.Printf("eocd: failed to start %s: %v", gdbPath, err)
		return 1
	}

	go func() {
		for range sigCh {
			cmd.Process.Signal(syscall.SIGINT)
		}
	}()

	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		return 1
	}
	return 0
}

// StopAll implements the "stop" subcommand: kill every supervised
// daemon this installation knows about.
func StopAll(opt options.Options) int {
	sup := &supervisor.Supervisor{RendezvousDir: opt.RendezvousDir, DaemonPath: opt.DaemonPath}
	if err := sup.StopAll(); err != nil {
		log.Printf("eocd: stop failed: %v", err)
		return 1
	}
	return 0
}

// List implements the "list" subcommand: enumerate and print every
// connected supported adapter.
func List(opt options.Options) int {
	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	all, err := adapter.Enumerate(usbCtx)
	if err != nil {
		log.Printf("eocd: enumeration failed: %v", err)
		return 1
	}
	if len(all) == 0 {
		fmt.Println("no supported debug adapters connected")
		return 0
	}
	for _, a := range all {
		fmt.Println(a.String())
	}
	return 0
}

// connectedKeys builds the "bus:addr" identity set CleanupStale uses to
// tell a still-connected adapter's rendezvous file apart from one left
// behind by hardware that has since been unplugged.
func connectedKeys(all []adapter.Instance) map[string]bool {
	keys := make(map[string]bool, len(all))
	for _, a := range all {
		keys[fmt.Sprintf("%d:%d", a.Bus, a.Address)] = true
	}
	return keys
}

// exitCodeFor maps a terminal error to the process exit code the spec's
// error-handling table (§7) assigns it: setup/probe failures the user can
// act on (no adapter, unsupported adapter, ambiguous selector, DAP not
// found) are exit 3; a failed reset-halt, specifically, is exit 4 since
// it points at wiring or power rather than adapter selection.
func exitCodeFor(err error) int {
	switch {
	case eocderr.Is(err, eocderr.ResetFailed):
		return 4
	case eocderr.Is(err, eocderr.AdapterNotFound),
		eocderr.Is(err, eocderr.AdapterNotSupported),
		eocderr.Is(err, eocderr.MultipleAdaptersMatch),
		eocderr.Is(err, eocderr.DaemonSpawnFailed),
		eocderr.Is(err, eocderr.AdapterOpenFailed),
		eocderr.Is(err, eocderr.TargetDap):
		return 3
	default:
		return 1
	}
}
