package arm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeDPIDRZeroIsNotImplemented(t *testing.T) {
	d := DecodeDPIDR(0)
	require.Equal(t, uint8(0), d.Version)
	require.False(t, d.Implemented())
}

func TestDecodeDPIDRFields(t *testing.T) {
	// An ARM SW-DP DPIDR as reported by STM32 parts: version 1 (DPv1).
	v := uint32(0x2ba01477)
	d := DecodeDPIDR(v)
	require.Equal(t, v, d.Raw)
	require.Equal(t, uint8((v>>28)&0x0f), d.Revision)
	require.Equal(t, uint8((v>>20)&0xff), d.PartNo)
	require.Equal(t, (v>>16)&0x01 != 0, d.MinDP)
	require.Equal(t, uint8((v>>12)&0x0f), d.Version)
	require.Equal(t, uint16((v>>1)&0x7ff), d.Designer)
	require.True(t, d.Implemented())
}

func TestDecodeDPIDRTotal(t *testing.T) {
	for _, v := range []uint32{0x0bb11477, 0x0bc11477, 0x0bc12477, 0x1ba00477, 0x2ba01477, 0xffffffff} {
		d := DecodeDPIDR(v)
		require.Equal(t, uint8((v>>28)&0x0f), d.Revision)
		require.Equal(t, uint8((v>>20)&0xff), d.PartNo)
		require.Equal(t, uint8((v>>12)&0x0f), d.Version)
		require.Equal(t, uint16((v>>1)&0x7ff), d.Designer)
	}
}
