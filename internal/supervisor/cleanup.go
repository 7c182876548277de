package supervisor

import (
	"log"
	"os"
	"path/filepath"
	"regexp"

	gopsproc "github.com/shirou/gopsutil/v3/process"
)

// rendezvousBusAddr extracts the (bus, address) suffix from a rendezvous
// file's basename ("easierocd-<name>-usb-<bus>-<addr>"), the identity
// §3 defines for an AdapterInstance.
var rendezvousBusAddr = regexp.MustCompile(`-usb-(\d+)-(\d+)$`)

// CleanupStale removes (and, if still running, kills the daemon behind)
// every rendezvous file whose adapter is no longer connected. connected
// is the set of "bus:addr" keys for adapters currently enumerated on the
// USB bus. This is the Cleanup pass §4.4 runs before every
// spawn-or-adopt, so rendezvous state left behind by adapters that have
// since been unplugged is removed on the next run. A file whose bus:addr
// is currently connected is left alone, even if a different adapter now
// sits at that address.
func (s *Supervisor) CleanupStale(connected map[string]bool) {
	entries, err := os.ReadDir(s.RendezvousDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := rendezvousBusAddr.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if connected[m[1]+":"+m[2]] {
			continue
		}
		path := filepath.Join(s.RendezvousDir, e.Name())
		if r, err := readRendezvous(path); err == nil {
			if proc, err := gopsproc.NewProcess(int32(r.OpenocdPid)); err == nil {
				proc.Kill()
			}
		}
		// A permission error unlinking someone else's stale file is
		// logged-and-swallowed territory per §4.4; os.Remove failing
		// here is not fatal to the caller's spawn-or-adopt attempt.
		if err := removeRendezvous(path); err != nil {
			log.Printf("eocd: could not remove stale rendezvous file %s: %v", path, err)
		}
	}
}

// StopAll kills every daemon this supervisor's rendezvous directory
// still references and removes their rendezvous files. When no process
// with the recorded pid exists, the file is just removed. The process
// name is not checked, so a pid recycled by an unrelated process is
// killed as well.
func (s *Supervisor) StopAll() error {
	entries, err := os.ReadDir(s.RendezvousDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(s.RendezvousDir, e.Name())
		r, err := readRendezvous(path)
		if err != nil {
			continue
		}
		if proc, err := gopsproc.NewProcess(int32(r.OpenocdPid)); err == nil {
			proc.Kill()
		}
		removeRendezvous(path)
	}
	return nil
}
