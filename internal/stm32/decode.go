// Package stm32 decodes ST's DBGMCU IDCODE register and maps STM32
// device families to their OpenOCD flash driver name.
package stm32

import (
	"fmt"
	"strings"
)

// IDCodeAddr is the address of the DBGMCU IDCODE register on most
// STM32 parts; it is readable even while the MCU is held in reset.
const IDCodeAddr = 0xe0042000

// IDCodeAddrL0F0 is the DBGMCU IDCODE address on the STM32 L0/F0
// sub-families, which relocate the debug component. Recorded per the
// original implementation but not probed by the detection state
// machine in this version (see DESIGN.md Open Questions).
const IDCodeAddrL0F0 = 0x40015800

// IDCode is the decoded STM32 "MCU device ID code" register.
type IDCode struct {
	DevID uint16
	RevID uint16
	// Device and Revision are human-readable strings; empty when the
	// device/revision pair is not in the known table. An unresolved
	// field is informational, not an error.
	Device   string
	Revision string
}

var deviceCategories = map[uint16]string{
	0x413: "STM32F405xx/07xx and STM32F415xx/17xx",
	0x419: "STM32F42xxx and STM32F43xxx",
	0x416: "STM32L1 Cat.1",
	0x429: "STM32L1 Cat.2",
	0x427: "STM32L1 Cat.3",
	0x436: "STM32L1 Cat.4 or Cat.3",
	0x437: "STM32L1 Cat.5",
	0x431: "STM32F411xC/E",
	0x417: "STM32L0x3",
	0x444: "STM32F030x4 and STM32F070x6",
	0x445: "STM32F070x6",
	0x440: "STM32F070x8",
	0x448: "STM32F070xB",
	0x442: "STM32F070xC",
	0x423: "STM32F401xB/C",
	0x433: "STM32F401xD/E",
	0x412: "STM32F1 low-density devices",
	0x410: "STM32F1 medium-density devices",
	0x414: "STM32F1 high-density devices",
	0x430: "STM32F1 XL-density devices",
	0x418: "STM32F1 connectivity devices",
	0x422: "STM32F303xB/C and STM32F358",
	0x438: "STM32F303x6/8 and STM32F328",
	0x446: "STM32F303xD/E and STM32F398xE",
}

var revisionTables = map[uint16]map[uint16]string{
	0x413: {0x1000: "Rev A", 0x1001: "Rev Z", 0x1003: "Rev Y", 0x1007: "Rev 1", 0x2001: "Rev 3"},
	0x419: {0x1000: "Rev A", 0x1001: "Rev Z", 0x1003: "Rev Y", 0x1007: "Rev 1", 0x2001: "Rev 3"},
	0x416: {0x1000: "Rev A", 0x1008: "Rev Y", 0x1038: "Rev W", 0x1078: "Rev V"},
	0x429: {0x1000: "Rev A", 0x1018: "Rev Z"},
	0x427: {0x1018: "Rev A", 0x1038: "Rev X"},
	0x436: {0x1000: "Rev A", 0x1008: "Rev Z", 0x1018: "Rev Y"},
	0x437: {0x1000: "Rev A"},
	0x431: {0x1000: "Rev A"},
	0x417: {0x1000: "Rev A", 0x1008: "Rev Z"},
	0x444: {0x1000: "Rev 1.0", 0x2000: "Rev 2.0"},
	0x445: {0x1000: "Rev 1.0", 0x2000: "Rev 2.0"},
	0x440: {0x1000: "Rev 1.0", 0x2000: "Rev 2.0"},
	0x448: {0x1000: "Rev 1.0", 0x2000: "Rev 2.0"},
	0x442: {0x1000: "Rev 1.0", 0x2000: "Rev 2.0"},
	0x423: {0x1000: "Rev Z", 0x1001: "Rev A"},
	0x433: {0x1000: "Rev A", 0x1001: "Rev Z"},
	0x412: {0x1000: "Rev A"},
	0x410: {0x0000: "Rev A", 0x2000: "Rev B", 0x2001: "Rev Z", 0x2003: "Rev Y, 1, 2 or X"},
	0x414: {0x1000: "Rev A or 1", 0x1001: "Rev Z", 0x1003: "Rev Y, 1, 2 or X"},
	0x430: {0x1000: "Rev A"},
	0x418: {0x1000: "Rev A", 0x1001: "Rev Z"},
	0x422: {0x1000: "Rev A"},
	0x438: {0x1000: "Rev A"},
	0x446: {0x1000: "Rev A"},
}

// DecodeIDCode decodes a raw DBGMCU IDCODE register value (the 32-bit
// word read from IDCodeAddr). See RM0090 38.6.1, RM0038 38.6.1, RM0383
// 23.6.1, RM0367 33.4.1 for the device tables encoded here.
func DecodeIDCode(v uint32) IDCode {
	devID := uint16(v & 0xfff)
	revID := uint16((v >> 16) & 0xffff)
	out := IDCode{DevID: devID, RevID: revID}
	out.Device = deviceCategories[devID]
	if revs, ok := revisionTables[devID]; ok {
		out.Revision = revs[revID]
	}
	return out
}

// flashAlgorithms maps a family token (lowercased first word of the
// decoded device string, truncated to "stm32xx") to the OpenOCD flash
// driver that programs it.
var flashAlgorithms = map[string]string{
	"stm32f0": "stm32f1x",
	"stm32l0": "stm32lx",
	"stm32l1": "stm32lx",
	"stm32f1": "stm32f1x",
	"stm32f2": "stm32f2x",
	"stm32f3": "stm32f1x",
	"stm32f4": "stm32f2x",
	"stm32l":  "stm32lx",
}

// familyPrefixLen is len("stm32xx"): the family token is the decoded
// device string's first word, lowercased and truncated to this length.
const familyPrefixLen = len("stm32xx")

// FamilyFromDevice derives the family token ("stm32f4", "stm32l1", ...)
// from a decoded device string such as "STM32F42xxx and STM32F43xxx".
func FamilyFromDevice(device string) string {
	first := strings.Fields(device)
	if len(first) == 0 {
		return ""
	}
	word := strings.ToLower(first[0])
	if len(word) > familyPrefixLen {
		word = word[:familyPrefixLen]
	}
	return word
}

// FlashAlgorithm returns the OpenOCD flash driver name for a family
// token such as "stm32f4". Unknown families fail with a value-domain
// error.
func FlashAlgorithm(family string) (string, error) {
	a, ok := flashAlgorithms[family]
	if !ok {
		return "", fmt.Errorf("stm32: unknown family %q", family)
	}
	return a, nil
}
