// Package arm decodes ARM Debug Access Port registers (ADIv5.0-ADIv5.2).
package arm

// DPIDR is a decoded ARM Debug Port Identification Register.
//
// Bit layout (ADIv5): revision[31:28], partno[27:20], reserved[19:17],
// mindp[16], version[15:12], designer[11:1], RAO[0].
type DPIDR struct {
	Raw      uint32
	Revision uint8
	PartNo   uint8
	MinDP    bool
	// Version is the DP architecture version: 0 (not implemented),
	// 1 (DPv1) or 2 (DPv2).
	Version  uint8
	Designer uint16
}

// DecodeDPIDR decodes a 32-bit DPIDR word. It is total: every input
// produces a DPIDR, and Version == 0 signals that the debug port does
// not implement DPIDR (the caller should treat the rest of the fields
// as meaningless in that case).
func DecodeDPIDR(v uint32) DPIDR {
	return DPIDR{
		Raw:      v,
		Revision: uint8((v >> 28) & 0x0f),
		PartNo:   uint8((v >> 20) & 0xff),
		MinDP:    (v>>16)&0x01 != 0,
		Version:  uint8((v >> 12) & 0x0f),
		Designer: uint16((v >> 1) & 0x7ff),
	}
}

// Implemented reports whether the decoded DPIDR corresponds to an
// implemented debug port (Version != 0).
func (d DPIDR) Implemented() bool {
	return d.Version != 0
}
