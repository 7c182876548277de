package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPortsFreeReportsUnusedPortsFree(t *testing.T) {
	require.True(t, portsFree(39001, 39002, 39003))
}

func TestTryAdoptFailsWhenNoRendezvousFile(t *testing.T) {
	s := &Supervisor{RendezvousDir: t.TempDir(), DaemonPath: "/nonexistent/ocd"}
	_, err := s.tryAdopt(nil, Path(s.RendezvousDir, "missing.json"))
	require.Error(t, err)
}

func TestCleanupStaleRemovesOnlyDisconnectedAdapters(t *testing.T) {
	dir := t.TempDir()
	s := &Supervisor{RendezvousDir: dir}

	// A pid unlikely to correspond to any running process: CleanupStale
	// must tolerate that lookup failing rather than treat it as fatal.
	const noSuchPid = 999999

	stale := filepath.Join(dir, "easierocd-ST-LinkV2-1-usb-2-109")
	live := filepath.Join(dir, "easierocd-ST-LinkV2-1-usb-1-5")
	require.NoError(t, writeExclusive(stale, Rendezvous{OpenocdPid: noSuchPid, TclPort: 1}))
	require.NoError(t, writeExclusive(live, Rendezvous{OpenocdPid: noSuchPid, TclPort: 2}))

	s.CleanupStale(map[string]bool{"1:5": true})

	_, err := os.Stat(stale)
	require.True(t, os.IsNotExist(err), "rendezvous file for a disconnected adapter should be removed")
	_, err = os.Stat(live)
	require.NoError(t, err, "rendezvous file for a still-connected adapter must survive")
}
