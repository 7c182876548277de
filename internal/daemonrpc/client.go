package daemonrpc

import (
	"fmt"
	"log"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"eocd/internal/eocderr"
)

// verbose gates wire-level tracing of every command sent and response
// received, mirroring the original implementation's logging.debug calls
// in its OpenOcdRpc wrapper. It is process-global, set once at startup
// from the --eocd-verbose flag, since every daemon connection in a
// single invocation shares the same verbosity.
var verbose bool

// SetVerbose enables or disables wire-level RPC tracing for every
// Client in the process.
func SetVerbose(v bool) { verbose = v }

// Client is a connection to a running daemon's Tcl RPC port.
type Client struct {
	conn net.Conn
	fr   *frameReader
}

// Dial connects to the daemon's Tcl RPC port at addr (host:port).
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return nil, eocderr.Wrap(eocderr.ConnectionRefused, "dial daemon rpc port", err)
	}
	return &Client{conn: conn, fr: newFrameReader(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// rawCommand writes cmd and returns whatever the daemon sends back,
// without judging its content. Command and Call are both built on this;
// they differ only in what they expect the response to look like.
func (c *Client) rawCommand(cmd string) (string, error) {
	if verbose {
		log.Printf("OpenOcdRpc <- %s", cmd)
	}
	if _, err := c.conn.Write(encodeMessage(cmd)); err != nil {
		return "", eocderr.Wrap(eocderr.ConnectionReset, "write to daemon rpc", err)
	}
	resp, err := c.fr.ReadMessage()
	if err != nil {
		return "", eocderr.Wrap(eocderr.ConnectionReset, "read from daemon rpc", err)
	}
	if verbose {
		log.Printf("OpenOcdRpc -> %s", resp)
	}
	return resp, nil
}

// Command sends a raw Tcl command expected to produce an empty response
// (the daemon's configuration-style commands: "interface", "hla_layout",
// "reset_config", ...). A non-empty response means something unexpected
// happened and fails with {ProtocolError} carrying cmd and response.
func (c *Client) Command(cmd string) (string, error) {
	resp, err := c.rawCommand(cmd)
	if err != nil {
		return resp, err
	}
	if strings.TrimSpace(resp) != "" {
		return resp, eocderr.New(eocderr.ProtocolError, fmt.Sprintf("command %q: unexpected response %q", cmd, resp))
	}
	return resp, nil
}

// Call invokes a Tcl proc with positional arguments, Tcl-quoted, and
// returns whatever the daemon sends back regardless of content.
func (c *Client) Call(proc string, args ...string) (string, error) {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, proc)
	for _, a := range args {
		parts = append(parts, tclQuote(a))
	}
	return c.rawCommand(strings.Join(parts, " "))
}

func tclQuote(s string) string {
	return "{" + s + "}"
}

// GetPid returns the daemon process's own PID, used by the supervisor
// to confirm an adopted rendezvous file really names a live daemon.
func (c *Client) GetPid() (int, error) {
	resp, err := c.Call("pid")
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(resp))
	if err != nil {
		return 0, eocderr.Wrap(eocderr.ValueError, "parse pid response", err)
	}
	return pid, nil
}

// Shutdown asks the daemon to exit.
func (c *Client) Shutdown() error {
	_, err := c.Call("shutdown")
	return err
}

// Initialized reports whether the daemon has completed target init.
func (c *Client) Initialized() (bool, error) {
	resp, err := c.Call("targets")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(resp) != "", nil
}

// TargetNames returns the configured target names.
func (c *Client) TargetNames() ([]string, error) {
	resp, err := c.Call("target names")
	if err != nil {
		return nil, err
	}
	return strings.Fields(resp), nil
}

// GdbPort, TclPort, TelnetPort return the daemon's advertised ports for
// each service.
func (c *Client) GdbPort() (int, error)    { return c.portQuery("gdb_port") }
func (c *Client) TclPort() (int, error)    { return c.portQuery("tcl_port") }
func (c *Client) TelnetPort() (int, error) { return c.portQuery("telnet_port") }

func (c *Client) portQuery(cmd string) (int, error) {
	resp, err := c.Call(cmd)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(resp))
	if err != nil {
		return 0, eocderr.Wrap(eocderr.ValueError, fmt.Sprintf("parse %s response", cmd), err)
	}
	return n, nil
}

// GetTransport returns the active transport ("swd" or "jtag", optionally
// "hla_"-prefixed).
func (c *Client) GetTransport() (string, error) {
	resp, err := c.Call("transport select")
	if err != nil {
		return "", err
	}
	fields := strings.Fields(resp)
	if len(fields) == 0 {
		return "", eocderr.New(eocderr.ValueError, "empty transport response")
	}
	return fields[len(fields)-1], nil
}

// Idcode reads the ARM DAP IDCODE, choosing the capture command the
// currently active transport needs ("capture hla_idcode" for an
// hla_-prefixed transport, "capture dap_idcode" otherwise) rather than
// taking one as an argument, mirroring the daemon's own idcode() deriving
// the command from its recorded transport.
func (c *Client) Idcode() (uint32, error) {
	transport, err := c.GetTransport()
	if err != nil {
		return 0, err
	}
	cmd := "capture dap_idcode"
	if strings.HasPrefix(transport, "hla_") {
		cmd = "capture hla_idcode"
	}
	resp, err := c.Call(cmd)
	if err != nil {
		return 0, err
	}
	return parseHexWord(resp)
}

// ReadWord reads a single 32-bit word at addr via mdw.
func (c *Client) ReadWord(addr uint32) (uint32, error) {
	resp, err := c.Call("mdw", fmt.Sprintf("0x%x", addr))
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(resp)
	if len(fields) < 2 {
		return 0, eocderr.New(eocderr.TargetMemoryAccess, "malformed mdw response: "+resp)
	}
	return parseHexWord(fields[len(fields)-1])
}

// ReadMemInto reads count words starting at addr into dst.
func (c *Client) ReadMemInto(addr uint32, dst []uint32) error {
	resp, err := c.Call("read_memory", fmt.Sprintf("0x%x", addr), "32", strconv.Itoa(len(dst)))
	if err != nil {
		return err
	}
	words := strings.Fields(resp)
	if len(words) != len(dst) {
		return eocderr.New(eocderr.TargetMemoryAccess, "read_memory returned unexpected word count")
	}
	for i, w := range words {
		v, err := parseHexWord(w)
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

// WriteMem writes words to memory starting at addr.
func (c *Client) WriteMem(addr uint32, words []uint32) error {
	args := make([]string, 0, len(words)+3)
	args = append(args, fmt.Sprintf("0x%x", addr), "32", strconv.Itoa(len(words)))
	for _, w := range words {
		args = append(args, fmt.Sprintf("0x%x", w))
	}
	_, err := c.Call("write_memory", args...)
	return err
}

// SetArmSemihosting enables or disables ARM semihosting on the target.
func (c *Client) SetArmSemihosting(enable bool) error {
	v := "disable"
	if enable {
		v = "enable"
	}
	_, err := c.Call("arm semihosting", v)
	return err
}

func parseHexWord(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, eocderr.Wrap(eocderr.ValueError, "parse hex word "+s, err)
	}
	return uint32(v), nil
}

// PollStatus is the parsed result of a "poll" command.
type PollStatus struct {
	CurrentMode string
	XPSR        uint32
	PC          uint32
	MSP         uint32
	// CommunicationFailure is set when the daemon reports it has lost
	// contact with the target. It is reported as a field, not an error;
	// FastPath treats it as a reason not to reuse the daemon as-is.
	CommunicationFailure bool
}

var (
	reCurrentMode = regexp.MustCompile(`current mode:\s*(\w+)`)
	reXPSR        = regexp.MustCompile(`xPSR:\s*(0x[0-9a-fA-F]+)`)
	rePC          = regexp.MustCompile(`pc:\s*(0x[0-9a-fA-F]+)`)
	reMSP         = regexp.MustCompile(`msp:\s*(0x[0-9a-fA-F]+)`)
	reCommFailure = regexp.MustCompile(`(?i)communication failure`)
)

// Poll issues "poll" and parses the daemon's free-text target status
// line, the same shape the original implementation scraped with regexes.
func (c *Client) Poll() (PollStatus, error) {
	resp, err := c.Call("poll")
	if err != nil {
		return PollStatus{}, err
	}
	var st PollStatus
	if reCommFailure.MatchString(resp) {
		st.CommunicationFailure = true
		return st, nil
	}
	if m := reCurrentMode.FindStringSubmatch(resp); m != nil {
		st.CurrentMode = m[1]
	}
	if m := reXPSR.FindStringSubmatch(resp); m != nil {
		st.XPSR, _ = parseHexWord(m[1])
	}
	if m := rePC.FindStringSubmatch(resp); m != nil {
		st.PC, _ = parseHexWord(m[1])
	}
	if m := reMSP.FindStringSubmatch(resp); m != nil {
		st.MSP, _ = parseHexWord(m[1])
	}
	return st, nil
}
