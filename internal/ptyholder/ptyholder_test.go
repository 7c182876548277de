package ptyholder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenCloseRoundTrip(t *testing.T) {
	h, err := Open()
	if err != nil {
		t.Skipf("pty unavailable in this environment: %v", err)
	}
	require.NotEmpty(t, h.PTYName())
	require.NoError(t, h.Close())
}
