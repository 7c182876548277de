package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"eocd/internal/eocderr"
)

func TestExitCodeForMapsKnownKinds(t *testing.T) {
	require.Equal(t, 3, exitCodeFor(eocderr.New(eocderr.AdapterNotFound, "none connected")))
	require.Equal(t, 3, exitCodeFor(eocderr.New(eocderr.MultipleAdaptersMatch, "ambiguous")))
	require.Equal(t, 3, exitCodeFor(eocderr.New(eocderr.DaemonSpawnFailed, "boom")))
	require.Equal(t, 4, exitCodeFor(eocderr.New(eocderr.ResetFailed, "wiring")))
	require.Equal(t, 1, exitCodeFor(eocderr.New(eocderr.ProtocolError, "unexpected")))
}
