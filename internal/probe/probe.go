// Package probe implements the target probe state machine: given a
// live daemon handle for an adapter, it determines whether the daemon
// is already initialized against the right chip (the fast path), or
// walks the detection sequence and reinitializes the daemon for
// production use against the detected chip (the slow path).
package probe

import (
	"fmt"
	"strings"

	"eocd/internal/adapter"
	"eocd/internal/arm"
	"eocd/internal/daemonrpc"
	"eocd/internal/eocderr"
	"eocd/internal/stm32"
)

// detectionTAP is the TAP name used while the chip identity is still
// unknown; production init renames the TAP to the detected chip.
const detectionTAP = "EASIEROCD_DETECT"

// workAreaAddr and workAreaSize describe the RAM scratch region OpenOCD
// uses for fast flash algorithms, matching the original implementation's
// fixed choice for Cortex-M parts with at least 10KiB of SRAM.
const (
	workAreaAddr = 0x20000000
	workAreaSize = 10 * 1024
)

// adapterClockKHz is the conservative detection-phase adapter clock
// (§4.5 step 2); production init runs at whatever speed the daemon's
// target config later chooses, since the chip identity is known by then.
const adapterClockKHz = 300

// DapInfo is the decoded ARM Debug Port identity read during detection.
type DapInfo struct {
	IDCodeRaw uint32
	arm.DPIDR
}

// McuInfo is the decoded vendor MCU identity read during detection.
type McuInfo struct {
	stm32.IDCode
	Family         string
	FlashAlgorithm string
}

// Outcome summarizes a completed probe, whichever path reached it.
type Outcome struct {
	Transport string // "swd" or "jtag"
	ChipName  string
	Dap       DapInfo
	Mcu       McuInfo
	// Reinitialized is true when the daemon was shut down and respawned
	// with a production init during this probe (the slow path); false
	// when a still-valid daemon was reused as-is (the fast path).
	Reinitialized bool
}

// Daemon is the subset of the daemon RPC client the state machine needs.
// Probe depends on this interface, not *daemonrpc.Client directly, so
// the transport/reinit sequencing can be tested without a live daemon.
type Daemon interface {
	Command(cmd string) (string, error)
	Call(proc string, args ...string) (string, error)
	Initialized() (bool, error)
	TargetNames() ([]string, error)
	Poll() (daemonrpc.PollStatus, error)
	GetTransport() (string, error)
	Idcode() (uint32, error)
	ReadWord(addr uint32) (uint32, error)
}

var _ Daemon = (*daemonrpc.Client)(nil)

// transports is the order in which transports are attempted during
// detection: SWD first (fewer wires, works on more boards), then JTAG.
var transports = []string{"swd", "jtag"}

// FastPath reuses an already-initialized daemon without touching its
// configuration, returning ok=false when the daemon isn't usable as-is
// and a full (re)detection is required. Per §4.5 it is reusable only
// when every one of initialized(), target_names(), poll(), DAP
// detection, and MCU detection succeeds against what's already
// configured.
func FastPath(d Daemon) (Outcome, bool, error) {
	init, err := d.Initialized()
	if err != nil || !init {
		return Outcome{}, false, nil
	}

	names, err := d.TargetNames()
	if err != nil || len(names) == 0 || containsPlaceholder(names) {
		return Outcome{}, false, nil
	}

	status, err := d.Poll()
	if err != nil || status.CommunicationFailure {
		return Outcome{}, false, nil
	}

	transport, err := d.GetTransport()
	if err != nil {
		return Outcome{}, false, nil
	}

	raw, err := d.Idcode()
	if err != nil {
		return Outcome{}, false, nil
	}
	dpidr := arm.DecodeDPIDR(raw)
	if !dpidr.Implemented() {
		return Outcome{}, false, nil
	}

	word, err := d.ReadWord(stm32.IDCodeAddr)
	if err != nil {
		return Outcome{}, false, nil
	}
	decoded := stm32.DecodeIDCode(word)
	family := stm32.FamilyFromDevice(decoded.Device)
	algorithm, _ := stm32.FlashAlgorithm(family)

	return Outcome{
		Transport: transport,
		ChipName:  names[0],
		Dap:       DapInfo{IDCodeRaw: raw, DPIDR: dpidr},
		Mcu:       McuInfo{IDCode: decoded, Family: family, FlashAlgorithm: algorithm},
	}, true, nil
}

func containsPlaceholder(names []string) bool {
	for _, n := range names {
		if n == detectionTAP || n == detectionTAP+".cpu" {
			return true
		}
	}
	return false
}

// transportAllowed reports whether inst's profile can drive the given
// low-level transport during detection. SWD is gated on
// Profile.SupportsSWD (true for every profile except adapters like the
// TI ICDI that are JTAG-only); JTAG is gated on Profile.SupportsJTAG,
// which also captures daemon-interface restrictions such as CMSIS-DAP's
// JTAG-less configuration in this system's target daemon version
// (§4.5 step 1).
func transportAllowed(inst adapter.Instance, transport string) bool {
	if transport == "jtag" {
		return inst.Profile.SupportsJTAG
	}
	return inst.Profile.SupportsSWD
}

// Detect runs the transport loop and identity reads (SWD then JTAG, each
// against the detection TAP) and returns the decoded DAP and MCU
// identity, without yet reconfiguring the daemon for production use.
func Detect(d Daemon, inst adapter.Instance) (string, DapInfo, McuInfo, error) {
	var lastErr error
	tried := false
	for _, transport := range transports {
		if !transportAllowed(inst, transport) {
			continue
		}
		tried = true
		dap, mcu, err := detectOnTransport(d, inst, transport)
		if err == nil {
			return transport, dap, mcu, nil
		}
		if eocderr.Is(err, eocderr.AdapterOpenFailed) || eocderr.Is(err, eocderr.ResetFailed) {
			// Fatal per §4.5 step 4/5: wiring/power or adapter-open
			// problems are not transport-specific, so trying the other
			// transport would not help.
			return "", DapInfo{}, McuInfo{}, err
		}
		lastErr = err
	}
	if !tried {
		lastErr = eocderr.New(eocderr.TargetDap, "adapter supports no transport usable for detection")
	}
	return "", DapInfo{}, McuInfo{}, eocderr.Wrap(eocderr.TargetDap, "no transport detected a target", lastErr)
}

func detectOnTransport(d Daemon, inst adapter.Instance, transport string) (DapInfo, McuInfo, error) {
	if err := configureDetection(d, inst, transport); err != nil {
		return DapInfo{}, McuInfo{}, err
	}

	if inst.Profile.HasResetLine {
		if _, err := d.Command("reset_config srst_only"); err != nil {
			return DapInfo{}, McuInfo{}, err
		}
		if _, err := d.Command("reset_config connect_assert_srst"); err != nil {
			return DapInfo{}, McuInfo{}, err
		}
	}

	resp, err := d.Call("init")
	if err != nil {
		return DapInfo{}, McuInfo{}, err
	}
	if strings.Contains(resp, "open failed") {
		return DapInfo{}, McuInfo{}, eocderr.New(eocderr.AdapterOpenFailed, "daemon reported open failed during detection init")
	}

	resp, err = d.Call("reset halt")
	if err != nil {
		return DapInfo{}, McuInfo{}, err
	}
	if isResetError(resp) {
		return DapInfo{}, McuInfo{}, eocderr.New(eocderr.ResetFailed, "reset-halt failed")
	}

	dap, err := readDap(d, transport)
	if err != nil {
		return DapInfo{}, McuInfo{}, err
	}

	idcodeWord, err := d.ReadWord(stm32.IDCodeAddr)
	if err != nil {
		return dap, McuInfo{}, eocderr.Wrap(eocderr.TargetMemoryAccess, "read vendor mcu idcode", err)
	}
	if idcodeWord == 0 || idcodeWord == 0xffffffff {
		return dap, McuInfo{}, eocderr.New(eocderr.TargetDap, "vendor idcode register read 0 or all-ones")
	}
	decoded := stm32.DecodeIDCode(idcodeWord)
	family := stm32.FamilyFromDevice(decoded.Device)
	algorithm, _ := stm32.FlashAlgorithm(family) // unknown family is informational, not fatal to detection

	mcu := McuInfo{IDCode: decoded, Family: family, FlashAlgorithm: algorithm}
	return dap, mcu, nil
}

func isResetError(resp string) bool {
	lower := strings.ToLower(resp)
	return strings.Contains(lower, "reset error") || strings.Contains(lower, "timed out")
}

// configureDetection issues §4.5 step 2's daemon configuration commands:
// the interface driver (and its hla_* parameters, when applicable), the
// transport selection, a conservative detection-phase adapter clock, and
// a placeholder TAP/target pair named detectionTAP.
func configureDetection(d Daemon, inst adapter.Instance, transport string) error {
	if inst.Profile.Interface != "" {
		if _, err := d.Command(fmt.Sprintf("interface %s", inst.Profile.Interface)); err != nil {
			return err
		}
	}

	if inst.Profile.IsHLA() {
		if _, err := d.Command(fmt.Sprintf("hla_layout %s", inst.Profile.HLALayout)); err != nil {
			return err
		}
		if _, err := d.Command(fmt.Sprintf("hla_device_desc {%s}", inst.Profile.Name)); err != nil {
			return err
		}
		if _, err := d.Command(fmt.Sprintf("hla_vid_pid 0x%04x 0x%04x", inst.VID, inst.PID)); err != nil {
			return err
		}
	}

	transportToken := transport
	if inst.Profile.IsHLA() {
		transportToken = "hla_" + transport
	}
	if _, err := d.Call(fmt.Sprintf("transport select %s", transportToken)); err != nil {
		return err
	}

	if _, err := d.Command(fmt.Sprintf("adapter speed %d", adapterClockKHz)); err != nil {
		return err
	}

	tap := detectionTAP + ".cpu"
	switch {
	case inst.Profile.IsHLA():
		if _, err := d.Call("hla newtap", detectionTAP, "cpu"); err != nil {
			return err
		}
	case transport == "jtag":
		if _, err := d.Call("jtag newtap", detectionTAP, "cpu", "-irlen", "4"); err != nil {
			return err
		}
	default:
		if _, err := d.Call("swd newdap", detectionTAP, "cpu"); err != nil {
			return err
		}
	}
	if _, err := d.Call("target create", tap, "cortex_m", "-chain-position", tap); err != nil {
		return err
	}
	return nil
}

// readDap reads and decodes the DAP IDCODE for transport. SWD detection
// issues the capture command appropriate to the currently selected
// transport (Idcode derives hla_idcode vs dap_idcode itself); JTAG DAP
// detection is architecturally absent from this daemon version and
// always signals "try the next transport" per §4.5 step 6/7.
func readDap(d Daemon, transport string) (DapInfo, error) {
	if transport == "jtag" {
		return DapInfo{}, eocderr.New(eocderr.TargetDap, "dap detection unavailable over jtag in this daemon version")
	}

	raw, err := d.Idcode()
	if err != nil {
		return DapInfo{}, eocderr.Wrap(eocderr.TargetDap, "read dap idcode", err)
	}
	dpidr := arm.DecodeDPIDR(raw)
	if !dpidr.Implemented() {
		return DapInfo{}, eocderr.New(eocderr.TargetDap, "dap not implemented on this transport")
	}
	return DapInfo{IDCodeRaw: raw, DPIDR: dpidr}, nil
}

// chipName derives the TAP/target name used for production init from
// the decoded MCU identity, lowercasing and stripping whitespace the way
// the original implementation derives its target nicknames.
func chipName(mcu McuInfo) string {
	if mcu.Device == "" {
		return "unknown"
	}
	fields := strings.Fields(mcu.Device)
	return strings.ToLower(fields[0])
}

// ProductionInit reconfigures an already shut-down-and-respawned daemon
// for ongoing use against the detected chip: a chip-named TAP, a RAM
// work area, the flash bank, and reset configuration. It must only be
// called on a daemon that has not yet run "init" this session — running
// init twice against the same daemon instance is invalid.
func ProductionInit(d Daemon, transport string, inst adapter.Instance, mcu McuInfo) (string, error) {
	chip := chipName(mcu)
	tap := chip + ".cpu"
	hla := inst.Profile.IsHLA()

	transportToken := transport
	if hla {
		transportToken = "hla_" + transport
	}
	if _, err := d.Call(fmt.Sprintf("transport select %s", transportToken)); err != nil {
		return "", err
	}

	switch {
	case hla:
		if _, err := d.Call("hla newtap", chip, "cpu"); err != nil {
			return "", err
		}
	case transport == "jtag":
		if _, err := d.Call("jtag newtap", chip, "cpu"); err != nil {
			return "", err
		}
	default:
		if _, err := d.Call("swd newdap", chip, "cpu"); err != nil {
			return "", err
		}
	}

	if _, err := d.Call("target create", tap, "cortex_m", "-chain-position", tap); err != nil {
		return "", err
	}
	if _, err := d.Call("work_area_phys", fmt.Sprintf("0x%x", workAreaAddr)); err != nil {
		return "", err
	}
	if _, err := d.Call("work_area_size", fmt.Sprintf("0x%x", workAreaSize)); err != nil {
		return "", err
	}
	if _, err := d.Call("work_area_backup", "0"); err != nil {
		return "", err
	}

	if mcu.FlashAlgorithm != "" {
		if _, err := d.Call("flash bank", chip, mcu.FlashAlgorithm, "0x08000000", "0", "0", "0", tap); err != nil {
			return "", err
		}
	}

	// §4.5's production-init reset configuration: non-hla interfaces
	// additionally need the Cortex-M-specific sysresetreq request, and
	// srst_only/srst_nogate is only meaningful when the adapter actually
	// wires a reset line.
	if !hla {
		if _, err := d.Command("cortex_m reset_config sysresetreq"); err != nil {
			return "", err
		}
	}
	if inst.Profile.HasResetLine {
		if _, err := d.Call("reset_config", "srst_only", "srst_nogate"); err != nil {
			return "", err
		}
	}

	if strings.HasPrefix(mcu.Family, "stm32l1") {
		if _, err := d.Command("source [find target/stm32l1.cfg]"); err != nil {
			return "", err
		}
	}

	resp, err := d.Call("init")
	if err != nil {
		return "", err
	}
	if strings.Contains(resp, "open failed") {
		return "", eocderr.New(eocderr.AdapterOpenFailed, "daemon reported open failed during production init")
	}

	return tap, nil
}
