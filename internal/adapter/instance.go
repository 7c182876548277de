package adapter

import (
	"fmt"
	"regexp"
)

// Instance is one connected debug adapter, as enumerated on the USB bus.
type Instance struct {
	Profile Profile

	Bus, Address int
	VID, PID     uint16
	Serial       string
	Product      string
}

// String renders the instance the way candidate lists and log lines show it.
func (a Instance) String() string {
	return fmt.Sprintf("%s (bus %d addr %d, serial %q)", a.Profile.Name, a.Bus, a.Address, a.Serial)
}

var pathUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// PathSafeStr collapses a free-form adapter name into a string usable as
// a filename component: spaces and slashes (and anything else outside
// the safe set) are stripped, not replaced, so "ST-Link/V2-1" becomes
// "ST-LinkV2-1".
func PathSafeStr(s string) string {
	return pathUnsafe.ReplaceAllString(s, "")
}

// RendezvousName returns the filename this adapter's daemon rendezvous
// file is stored under. Identity is (profile name, bus, address) per
// §3's data model, not the USB serial number, since not every adapter
// reports one and bus:address is always available once enumerated.
func (a Instance) RendezvousName() string {
	return fmt.Sprintf("easierocd-%s-usb-%d-%d", PathSafeStr(a.Profile.Name), a.Bus, a.Address)
}
