package daemonrpc

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// chunkedReader dribbles bytes out a few at a time, to exercise the
// partial-message carryover path.
type chunkedReader struct {
	data []byte
	pos  int
	size int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.pos >= len(c.data) {
		return 0, io.EOF
	}
	n := c.size
	if n > len(p) {
		n = len(p)
	}
	if c.pos+n > len(c.data) {
		n = len(c.data) - c.pos
	}
	copy(p, c.data[c.pos:c.pos+n])
	c.pos += n
	return n, nil
}

func TestFrameReaderSingleMessage(t *testing.T) {
	fr := newFrameReader(bytes.NewReader(encodeMessage("hello")))
	msg, err := fr.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "hello", msg)
}

func TestFrameReaderMultipleMessagesAcrossReads(t *testing.T) {
	raw := append(encodeMessage("one"), encodeMessage("two")...)
	fr := newFrameReader(&chunkedReader{data: raw, size: 3})

	msg, err := fr.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "one", msg)

	msg, err = fr.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "two", msg)
}

func TestFrameReaderPartialTailCarriesOver(t *testing.T) {
	raw := append(encodeMessage("abcdefghij"), encodeMessage("z")...)
	fr := newFrameReader(&chunkedReader{data: raw, size: 1})

	msg, err := fr.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "abcdefghij", msg)

	msg, err = fr.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "z", msg)
}
