// Package supervisor manages the lifecycle of the on-chip-debug daemon
// process backing one debug adapter: spawning a fresh instance, adopting
// a still-live one left behind by a previous invocation, and cleaning up
// stale rendezvous state.
package supervisor

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"os/exec"
	"strconv"
	"time"

	gopsproc "github.com/shirou/gopsutil/v3/process"

	"eocd/internal/daemonrpc"
	"eocd/internal/eocderr"
	"eocd/internal/ptyholder"
)

const (
	defaultTclPort    = 6666
	defaultGdbPort    = 3333
	defaultTelnetPort = 4444

	// connectRetries is the minimum number of 10ms RPC-connect attempts
	// made against a freshly spawned daemon before giving up.
	connectRetries   = 30
	connectRetryWait = 10 * time.Millisecond
)

// Handle is a live connection to a supervised daemon, plus enough state
// to tear it down again.
type Handle struct {
	Client      *daemonrpc.Client
	Rendezvous  Rendezvous
	RendezvousPath string
	cmd         *exec.Cmd
	pty         *ptyholder.Holder
	adopted     bool
}

// Shutdown asks the daemon to exit, whether this handle spawned it or
// adopted it, and releases local resources. The rendezvous file is
// removed only when this handle spawned the daemon; an adopted handle has
// no RendezvousPath, so its file stays until a later Acquire finds the
// recorded daemon gone and removes it.
func (h *Handle) Shutdown() error {
	var shutdownErr error
	if h.Client != nil {
		shutdownErr = h.Client.Shutdown()
		h.Client.Close()
	}
	if h.pty != nil {
		h.pty.Close()
	}
	if h.RendezvousPath != "" {
		removeRendezvous(h.RendezvousPath)
	}
	return shutdownErr
}

// Supervisor spawns and adopts daemon processes for a rendezvous
// directory (one file per adapter).
type Supervisor struct {
	RendezvousDir string
	// DaemonPath is the path to the on-chip-debug daemon executable.
	DaemonPath string
	// ExtraArgs are additional "-c ..." style config commands passed on
	// every spawn, before the port and noinit directives.
	ExtraArgs []string
}

// Acquire returns a Handle for the adapter identified by rendezvousName,
// adopting a still-live daemon if one is recorded, or spawning a new one
// otherwise.
func (s *Supervisor) Acquire(ctx context.Context, rendezvousName string) (*Handle, error) {
	path := Path(s.RendezvousDir, rendezvousName)

	if h, err := s.tryAdopt(ctx, path); err == nil {
		return h, nil
	}
	// Any adopt failure (missing file, parse error, connection refused
	// or reset, pid mismatch) falls back to a fresh spawn. A stale
	// rendezvous file is removed first so the exclusive-create below
	// doesn't collide with dead state.
	removeRendezvous(path)
	return s.spawn(ctx, path)
}

func (s *Supervisor) tryAdopt(ctx context.Context, path string) (*Handle, error) {
	r, err := readRendezvous(path)
	if err != nil {
		return nil, err
	}

	alive, err := pidLooksLikeDaemon(r.OpenocdPid)
	if err != nil || !alive {
		return nil, eocderr.New(eocderr.ConnectionRefused, "rendezvous pid is not a live daemon")
	}

	client, err := daemonrpc.Dial(fmt.Sprintf("127.0.0.1:%d", r.TclPort))
	if err != nil {
		return nil, err
	}
	pid, err := client.GetPid()
	if err != nil {
		client.Close()
		return nil, err
	}
	if pid != r.OpenocdPid {
		client.Close()
		return nil, eocderr.New(eocderr.ConnectionReset, "adopted daemon pid mismatch")
	}
	return &Handle{Client: client, Rendezvous: r, adopted: true}, nil
}

// spawnSettleWait is how long spawn waits after starting the daemon
// before checking whether it has already exited (a port collision with
// an unrelated process); §4.4 calls this "wait briefly".
const spawnSettleWait = 10 * time.Millisecond

// spawn launches the daemon, retrying indefinitely on a freshly
// randomized port set whenever the process dies immediately (another
// process was already bound to the chosen port) or the identity check
// after connecting finds someone else's daemon answering (§4.4).
func (s *Supervisor) spawn(ctx context.Context, path string) (*Handle, error) {
	tclPort, gdbPort, telnetPort := defaultTclPort, defaultGdbPort, defaultTelnetPort

	for {
		for !portsFree(tclPort, gdbPort, telnetPort) {
			tclPort, gdbPort, telnetPort = randomPorts()
		}

		h, err := ptyholder.Open()
		if err != nil {
			return nil, err
		}

		args := append([]string{}, s.ExtraArgs...)
		args = append(args,
			"-c", fmt.Sprintf("tcl_port %d", tclPort),
			"-c", fmt.Sprintf("gdb_port %d", gdbPort),
			"-c", fmt.Sprintf("telnet_port %d", telnetPort),
			"-c", "noinit",
		)
		cmd := exec.CommandContext(ctx, s.DaemonPath, args...)
		h.Attach(cmd)

		if err := cmd.Start(); err != nil {
			h.Close()
			return nil, eocderr.Wrap(eocderr.DaemonSpawnFailed, "start daemon process", err)
		}
		h.CloseTTY()

		// Reap the process in the background regardless of which way
		// this attempt goes, so a retry never leaves a zombie behind.
		waitCh := make(chan error, 1)
		go func() { waitCh <- cmd.Wait() }()

		select {
		case <-waitCh:
			// Exited almost immediately: the port was already taken by
			// an unrelated process the daemon couldn't bind to. Retry
			// with a freshly randomized port set.
			h.Close()
			tclPort, gdbPort, telnetPort = randomPorts()
			continue
		case <-time.After(spawnSettleWait):
		}

		r := Rendezvous{OpenocdPid: cmd.Process.Pid, TclPort: tclPort, GdbPort: gdbPort, TelnetPort: telnetPort}
		if err := writeExclusive(path, r); err != nil {
			cmd.Process.Kill()
			h.Close()
			return nil, eocderr.Wrap(eocderr.DaemonSpawnFailed, "claim rendezvous file", err)
		}

		client, err := connectWithRetry(fmt.Sprintf("127.0.0.1:%d", tclPort))
		if err != nil {
			cmd.Process.Kill()
			removeRendezvous(path)
			h.Close()
			return nil, err
		}

		pid, err := client.GetPid()
		if err != nil || pid != r.OpenocdPid {
			// Someone else's daemon answered on this port: retry with a
			// fresh, randomly chosen one rather than adopting it.
			client.Close()
			cmd.Process.Kill()
			removeRendezvous(path)
			h.Close()
			tclPort, gdbPort, telnetPort = randomPorts()
			continue
		}

		return &Handle{Client: client, Rendezvous: r, RendezvousPath: path, cmd: cmd, pty: h}, nil
	}
}

func connectWithRetry(addr string) (*daemonrpc.Client, error) {
	var lastErr error
	for i := 0; i < connectRetries; i++ {
		client, err := daemonrpc.Dial(addr)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(connectRetryWait)
	}
	return nil, eocderr.Wrap(eocderr.DaemonSpawnFailed, "daemon never became reachable", lastErr)
}

func portsFree(ports ...int) bool {
	for _, p := range ports {
		ln, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(p))
		if err != nil {
			return false
		}
		ln.Close()
	}
	return true
}

// randomPorts picks one random tcl port in [1025, 65535) and derives the
// gdb and telnet ports at +1/+2, matching the original's port-selection
// algorithm: a single random port with the other two services placed
// adjacent to it rather than three independently-randomized ports.
func randomPorts() (tcl, gdb, telnet int) {
	tcl = 1025 + rand.Intn(65535-1025-2)
	return tcl, tcl + 1, tcl + 2
}

// pidLooksLikeDaemon reports whether pid is a running process at all.
// Exact binary-name matching is left to the caller; this only guards
// against reusing a pid that has since been recycled by an unrelated
// process after the daemon exited uncleanly.
func pidLooksLikeDaemon(pid int) (bool, error) {
	return gopsproc.PidExists(int32(pid))
}
