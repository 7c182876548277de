package cmdregistry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupAndNamesPreserveRegistrationOrder(t *testing.T) {
	r := New()
	r.Register("gdb", func(args []string) int { return 0 })
	r.Register("setup", func(args []string) int { return 1 })

	require.Equal(t, []string{"gdb", "setup"}, r.Names())

	fn, ok := r.Lookup("setup")
	require.True(t, ok)
	require.Equal(t, 1, fn(nil))

	_, ok = r.Lookup("missing")
	require.False(t, ok)
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	r := New()
	r.Register("gdb", func(args []string) int { return 0 })
	require.Panics(t, func() {
		r.Register("gdb", func(args []string) int { return 0 })
	})
}
