package supervisor

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteExclusiveFailsOnSecondWriter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eocd-test.json")

	require.NoError(t, writeExclusive(path, Rendezvous{OpenocdPid: 123, TclPort: 6666}))
	err := writeExclusive(path, Rendezvous{OpenocdPid: 456, TclPort: 6667})
	require.Error(t, err, "a second writer must lose the race for the same rendezvous file")
}

func TestReadRendezvousRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eocd-test.json")
	want := Rendezvous{OpenocdPid: 42, TclPort: 6666, GdbPort: 3333, TelnetPort: 4444}
	require.NoError(t, writeExclusive(path, want))

	got, err := readRendezvous(path)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestReadRendezvousMissingFile(t *testing.T) {
	_, err := readRendezvous(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.Error(t, err)
}

func TestRemoveRendezvousMissingIsNotAnError(t *testing.T) {
	require.NoError(t, removeRendezvous(filepath.Join(t.TempDir(), "does-not-exist.json")))
}
