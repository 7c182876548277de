package stm32

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeIDCodeKnownParts(t *testing.T) {
	d := DecodeIDCode(0x10006437) // ST Nucleo L152RE board
	require.Equal(t, IDCode{DevID: 0x437, RevID: 0x1000, Device: "STM32L1 Cat.5", Revision: "Rev A"}, d)

	d = DecodeIDCode(0x10036419) // STM32F429I DISCOVERY board
	require.Equal(t, IDCode{DevID: 0x419, RevID: 0x1003, Device: "STM32F42xxx and STM32F43xxx", Revision: "Rev Y"}, d)
}

func TestDecodeIDCodeUnknownIsInformationalNotError(t *testing.T) {
	d := DecodeIDCode(0xffffffff)
	require.Empty(t, d.Device)
	require.Empty(t, d.Revision)
}

func TestFamilyFromDevice(t *testing.T) {
	require.Equal(t, "stm32l1", FamilyFromDevice("STM32L1 Cat.5"))
	require.Equal(t, "stm32f4", FamilyFromDevice("STM32F42xxx and STM32F43xxx"))
}

func TestFlashAlgorithm(t *testing.T) {
	cases := map[string]string{
		"stm32f0": "stm32f1x",
		"stm32f3": "stm32f1x",
		"stm32f4": "stm32f2x",
		"stm32l1": "stm32lx",
		"stm32l0": "stm32lx",
		"stm32l":  "stm32lx",
		"stm32f1": "stm32f1x",
		"stm32f2": "stm32f2x",
	}
	for family, want := range cases {
		got, err := FlashAlgorithm(family)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := FlashAlgorithm("stm32f7")
	require.Error(t, err)
}
