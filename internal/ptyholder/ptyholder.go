// Package ptyholder allocates a pseudo-terminal to serve as a spawned
// daemon's controlling terminal, replacing the tmux-pane trick the
// original implementation used to keep an on-chip-debug daemon attached
// to a terminal it can write diagnostics to without inheriting the
// supervisor's own stdio.
package ptyholder

import (
	"os"
	"os/exec"

	"github.com/creack/pty"

	"eocd/internal/eocderr"
)

// Holder owns one allocated pseudo-terminal pair.
type Holder struct {
	pty *os.File
	tty *os.File
}

// Open allocates a new pty/tty pair.
func Open() (*Holder, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, eocderr.Wrap(eocderr.DaemonSpawnFailed, "allocate pty", err)
	}
	return &Holder{pty: ptmx, tty: tty}, nil
}

// Attach wires the tty side of the pair as cmd's stdio. On Linux it also
// starts a new session with the tty as its controlling terminal, so the
// daemon survives the supervisor's own terminal being closed; on other
// platforms only stdio is wired.
func (h *Holder) Attach(cmd *exec.Cmd) {
	cmd.Stdin = h.tty
	cmd.Stdout = h.tty
	cmd.Stderr = h.tty
	cmd.SysProcAttr = sysProcAttr()
}

// PTYName returns the pty side's device path, for rendezvous metadata.
func (h *Holder) PTYName() string {
	return h.pty.Name()
}

// CloseTTY closes the supervisor's handle to the child side after Start,
// matching the usual pty hand-off idiom: the child now owns its fd.
func (h *Holder) CloseTTY() error {
	return h.tty.Close()
}

// Close releases both sides of the pty pair.
func (h *Holder) Close() error {
	ttyErr := h.tty.Close()
	ptyErr := h.pty.Close()
	if ptyErr != nil {
		return ptyErr
	}
	return ttyErr
}
