package daemonrpc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPollParsesCommunicationFailure(t *testing.T) {
	// Poll itself needs a live connection; exercise the parsing helpers
	// directly the way the regexes are meant to be read.
	resp := "Polling target failed, trying to reexamine\ntarget halted due to debug-request, communication failure"
	require.True(t, reCommFailure.MatchString(resp))
}

func TestPollParsesHaltedStatusFields(t *testing.T) {
	resp := "target halted due to debug-request, current mode: Thread\nxPSR: 0x01000000 pc: 0x08000214 msp: 0x20001ff0"
	m := reCurrentMode.FindStringSubmatch(resp)
	require.Equal(t, "Thread", m[1])

	pc, err := parseHexWord(rePC.FindStringSubmatch(resp)[1])
	require.NoError(t, err)
	require.Equal(t, uint32(0x08000214), pc)

	msp, err := parseHexWord(reMSP.FindStringSubmatch(resp)[1])
	require.NoError(t, err)
	require.Equal(t, uint32(0x20001ff0), msp)
}

func TestParseHexWord(t *testing.T) {
	v, err := parseHexWord("0x4ba00477")
	require.NoError(t, err)
	require.Equal(t, uint32(0x4ba00477), v)

	_, err = parseHexWord("not-hex")
	require.Error(t, err)
}

func TestTclQuote(t *testing.T) {
	require.Equal(t, "{stm32f1x}", tclQuote("stm32f1x"))
}
