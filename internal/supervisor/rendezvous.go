package supervisor

import (
	"encoding/json"
	"os"
	"path/filepath"

	"eocd/internal/eocderr"
)

// Rendezvous is the on-disk record a spawned daemon publishes so a later
// invocation against the same adapter can find and adopt it instead of
// spawning a second one.
type Rendezvous struct {
	OpenocdPid int `json:"openocd_pid"`
	TclPort    int `json:"tcl_port"`
	GdbPort    int `json:"gdb_port"`
	TelnetPort int `json:"telnet_port"`
}

// Path returns the rendezvous file path for the given adapter-derived
// filename component, under dir (the system temp directory, as
// options.Parse sets RendezvousDir).
func Path(dir, name string) string {
	return filepath.Join(dir, name)
}

// writeExclusive atomically creates the rendezvous file, failing if one
// already exists. This is the hand-off point between two concurrent
// invocations racing to spawn a daemon for the same adapter: exactly one
// wins the create and proceeds to spawn, the other falls back to adopt.
func writeExclusive(path string, r Rendezvous) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	if err := enc.Encode(r); err != nil {
		return eocderr.Wrap(eocderr.DaemonSpawnFailed, "write rendezvous file", err)
	}
	return nil
}

func readRendezvous(path string) (Rendezvous, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rendezvous{}, err
	}
	var r Rendezvous
	if err := json.Unmarshal(data, &r); err != nil {
		return Rendezvous{}, eocderr.Wrap(eocderr.ValueError, "parse rendezvous file "+path, err)
	}
	return r, nil
}

func removeRendezvous(path string) error {
	err := os.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
