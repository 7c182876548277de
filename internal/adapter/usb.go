package adapter

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/gousb"

	"eocd/internal/eocderr"
)

// Criteria narrows adapter selection. Zero-value fields are "don't care".
// When both VIDPID and Serial/BusAddr are given, VID:PID takes precedence,
// mirroring the original selection order.
type Criteria struct {
	VID, PID   uint16
	HaveVIDPID bool

	Serial string

	Bus, Address int
	HaveBusAddr  bool
}

// Enumerate opens every USB device on the bus, keeps the ones that match
// a known Profile (by VID:PID or by product-string regexp), and returns
// them as candidate Instances. A single device's permission error is not
// fatal and the device is simply skipped, matching the original
// implementation's EACCES-is-not-fatal stance.
func Enumerate(ctx *gousb.Context) ([]Instance, error) {
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return true
	})
	for _, d := range devs {
		defer d.Close()
	}
	if err != nil && !errors.Is(err, os.ErrPermission) && !errors.Is(err, gousb.ErrorAccess) {
		return nil, eocderr.Wrap(eocderr.AdapterOpenFailed, "usb enumeration failed", err)
	}

	var out []Instance
	for _, dev := range devs {
		desc := dev.Desc
		vid, pid := uint16(desc.Vendor), uint16(desc.Product)

		profile, ok := matchByVIDPID(vid, pid)
		if !ok {
			product, perr := dev.Product()
			if perr != nil {
				continue
			}
			profile, ok = matchProduct(product)
			if !ok {
				continue
			}
		}

		inst := Instance{
			Profile: profile,
			Bus:     desc.Bus,
			Address: desc.Address,
			VID:     vid,
			PID:     pid,
		}
		if s, err := dev.SerialNumber(); err == nil {
			inst.Serial = s
		}
		if p, err := dev.Product(); err == nil {
			inst.Product = p
		}
		out = append(out, inst)
	}
	return out, nil
}

// rawUSBDevice is a minimal view of one connected USB device, kept
// regardless of whether any registry rule matches it. Select consults
// this to tell a device that is simply absent apart from one that is
// physically connected but unsupported (§4.2's {NotSupported} case),
// which Enumerate's registry-filtered result can't distinguish on its
// own.
type rawUSBDevice struct {
	Bus, Address int
	VID, PID     uint16
	Serial       string
}

// enumerateAllDevices lists every USB device on the bus without
// filtering by the adapter registry. A single device's permission error
// is skipped rather than failing the whole enumeration, matching
// Enumerate's EACCES-is-not-fatal stance.
func enumerateAllDevices(ctx *gousb.Context) ([]rawUSBDevice, error) {
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return true
	})
	for _, d := range devs {
		defer d.Close()
	}
	if err != nil && !errors.Is(err, os.ErrPermission) && !errors.Is(err, gousb.ErrorAccess) {
		return nil, eocderr.Wrap(eocderr.AdapterOpenFailed, "usb enumeration failed", err)
	}

	out := make([]rawUSBDevice, 0, len(devs))
	for _, dev := range devs {
		desc := dev.Desc
		r := rawUSBDevice{Bus: desc.Bus, Address: desc.Address, VID: uint16(desc.Vendor), PID: uint16(desc.Product)}
		if s, err := dev.SerialNumber(); err == nil {
			r.Serial = s
		}
		out = append(out, r)
	}
	return out, nil
}

func matchByVIDPID(vid, pid uint16) (Profile, bool) {
	for _, p := range Registry {
		if p.VID != 0 && vid == p.VID && pid == p.PID {
			return p, true
		}
	}
	return Profile{}, false
}

func matchProduct(product string) (Profile, bool) {
	for _, p := range Registry {
		if p.VID == 0 && p.ProductRegexp != nil && p.ProductRegexp.MatchString(product) {
			return p, true
		}
	}
	return Profile{}, false
}

// Select finds the one connected adapter matching the given criteria.
// Per the original's adapter_info_find precedence, VID:PID wins over
// Serial, which wins over bus:address. When criteria is the zero value
// and exactly one adapter is connected, that adapter is returned; more
// than one with no criteria is MultipleAdaptersMatch.
func Select(ctx *gousb.Context, c Criteria) (Instance, error) {
	all, err := Enumerate(ctx)
	if err != nil {
		return Instance{}, err
	}

	var filtered []Instance
	switch {
	case c.HaveVIDPID:
		for _, a := range all {
			if a.VID == c.VID && a.PID == c.PID {
				filtered = append(filtered, a)
			}
		}
	case c.Serial != "":
		for _, a := range all {
			if a.Serial == c.Serial {
				filtered = append(filtered, a)
			}
		}
	case c.HaveBusAddr:
		for _, a := range all {
			if a.Bus == c.Bus && a.Address == c.Address {
				filtered = append(filtered, a)
			}
		}
	default:
		if len(all) == 0 {
			return Instance{}, eocderr.New(eocderr.AdapterNotFound, "no supported debug adapters connected")
		}
		filtered = all
	}

	if len(filtered) == 0 {
		return Instance{}, notFoundOrUnsupported(ctx, c)
	}
	if len(filtered) > 1 {
		lines := make([]string, len(filtered))
		for i, a := range filtered {
			lines[i] = a.String()
		}
		return Instance{}, &eocderr.Error{
			Kind:       eocderr.MultipleAdaptersMatch,
			Message:    multipleAdapterMsg(filtered),
			Candidates: lines,
		}
	}
	return filtered[0], nil
}

// notFoundOrUnsupported distinguishes §4.2's {NotFound} from
// {NotSupported}: when a selector was given and some connected USB
// device actually matches it but no registry rule recognizes that
// device, the device exists but isn't a supported adapter.
func notFoundOrUnsupported(ctx *gousb.Context, c Criteria) error {
	raw, err := enumerateAllDevices(ctx)
	if err == nil {
		for _, r := range raw {
			switch {
			case c.HaveVIDPID && r.VID == c.VID && r.PID == c.PID:
				return eocderr.New(eocderr.AdapterNotSupported,
					fmt.Sprintf("usb device %04x:%04x is connected but is not a supported debug adapter", c.VID, c.PID))
			case c.Serial != "" && r.Serial == c.Serial:
				return eocderr.New(eocderr.AdapterNotSupported,
					fmt.Sprintf("usb device with serial %q is connected but is not a supported debug adapter", c.Serial))
			case c.HaveBusAddr && r.Bus == c.Bus && r.Address == c.Address:
				return eocderr.New(eocderr.AdapterNotSupported,
					fmt.Sprintf("usb device at bus %d addr %d is connected but is not a supported debug adapter", c.Bus, c.Address))
			}
		}
	}
	return eocderr.New(eocderr.AdapterNotFound, "no connected adapter matches the given criteria")
}

func multipleAdapterMsg(cands []Instance) string {
	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.String()
	}
	return fmt.Sprintf("multiple debug adapters match: %s", strings.Join(names, "; "))
}
