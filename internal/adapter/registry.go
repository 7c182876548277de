// Package adapter models the set of supported USB debug adapters and
// selects among connected devices.
package adapter

import "regexp"

// Profile describes one supported family of debug adapter: how to spot
// it on the USB bus and what OpenOCD interface configuration it needs.
type Profile struct {
	Name string

	// VID/PID match, when nonzero. Takes precedence over ProductRegexp.
	VID, PID uint16

	// ProductRegexp matches the USB product string when VID/PID is
	// zero, e.g. CMSIS-DAP probes which ship under many VID/PID pairs.
	ProductRegexp *regexp.Regexp

	// Interface is the OpenOCD "interface" driver token: "hla", "cmsis-dap",
	// "jlink", or "" when the adapter speaks raw JTAG/SWD without a
	// vendor HLA layer.
	Interface string

	// HLALayout is the "hla_layout" value (e.g. "stlink", "ti-icdi")
	// when Interface == "hla".
	HLALayout string

	// SupportsJTAG reports whether this adapter can drive JTAG in
	// addition to SWD.
	SupportsJTAG bool

	// SupportsSWD reports whether this adapter can drive SWD. Defaults
	// to true for every profile below except JTAG-only adapters like the
	// TI ICDI.
	SupportsSWD bool

	// HasResetLine reports whether the adapter wires a hardware nSRST
	// line to the target. Every profile in Registry below has one; it
	// exists as a field (rather than being hardcoded true) because the
	// original implementation tracks it per-adapter and some CMSIS-DAP
	// clones do not expose it.
	HasResetLine bool
}

// IsHLA reports whether the profile uses OpenOCD's high-level adapter
// layer, which changes how flash banks and reset handlers are declared.
func (p Profile) IsHLA() bool {
	return p.Interface == "hla"
}

// Registry is the static table of supported debug adapters, ported from
// the original implementation's debug adapter list.
var Registry = []Profile{
	{
		Name:         "ST-Link/V2-1",
		VID:          0x0483,
		PID:          0x374b,
		Interface:    "hla",
		HLALayout:    "stlink",
		SupportsJTAG: false,
		SupportsSWD:  true,
		HasResetLine: true,
	},
	{
		Name:         "ST-Link/V2",
		VID:          0x0483,
		PID:          0x3748,
		Interface:    "hla",
		HLALayout:    "stlink",
		SupportsJTAG: true,
		SupportsSWD:  true,
		HasResetLine: true,
	},
	{
		Name:          "CMSIS-DAP",
		ProductRegexp: regexp.MustCompile(`.*CMSIS-DAP.*`),
		Interface:     "cmsis-dap",
		SupportsJTAG:  false,
		SupportsSWD:   true,
		HasResetLine:  true,
	},
	{
		Name:         "TI ICDI",
		VID:          0x1cbe,
		PID:          0x00fd,
		Interface:    "hla",
		HLALayout:    "ti-icdi",
		SupportsJTAG: true,
		SupportsSWD:  false,
		HasResetLine: true,
	},
	{
		Name:         "J-Link",
		VID:          0x1366,
		PID:          0x0101,
		Interface:    "jlink",
		SupportsJTAG: true,
		SupportsSWD:  true,
		HasResetLine: true,
	},
}
