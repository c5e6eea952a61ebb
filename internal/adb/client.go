package adb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/apkdrop/internal/logging"
)

const (
	// DefaultAddress is where a local adb server listens.
	DefaultAddress = "127.0.0.1:5037"

	// DefaultDialTimeout bounds connecting to the adb server.
	DefaultDialTimeout = 5 * time.Second

	// DefaultIOTimeout bounds each read or write on an exchange.
	DefaultIOTimeout = 30 * time.Second
)

// Client talks to an adb server over its host protocol. The zero value is
// not usable; create one with New.
type Client struct {
	Addr        string
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

// New creates a client for the adb server at addr.
func New(addr string) *Client {
	if addr == "" {
		addr = DefaultAddress
	}
	return &Client{
		Addr:        addr,
		DialTimeout: DefaultDialTimeout,
		IOTimeout:   DefaultIOTimeout,
	}
}

// DeviceInfo is one line of "adb devices -l".
type DeviceInfo struct {
	Serial      string
	State       string
	Product     string
	Model       string
	Device      string
	TransportID string
}

// conn is one exchange with the server. Closing the context closes the
// socket, which unblocks any pending read or write.
type conn struct {
	net.Conn
	ioTimeout time.Duration
	stop      func() bool
}

func (c *conn) Close() error {
	c.stop()
	return c.Conn.Close()
}

// touch extends the current I/O deadline.
func (c *conn) touch() {
	if c.ioTimeout > 0 {
		_ = c.SetDeadline(time.Now().Add(c.ioTimeout))
	}
}

func (c *Client) dial(ctx context.Context) (*conn, error) {
	d := net.Dialer{Timeout: c.DialTimeout}
	nc, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return nil, fmt.Errorf("adb: connecting to server at %s: %w", c.Addr, err)
	}
	cn := &conn{
		Conn:      nc,
		ioTimeout: c.IOTimeout,
		stop:      context.AfterFunc(ctx, func() { _ = nc.Close() }),
	}
	cn.touch()
	return cn, nil
}

// request sends a host request and checks the status reply.
func (cn *conn) request(payload string) error {
	cn.touch()
	if err := writeRequest(cn, payload); err != nil {
		return err
	}
	return readStatus(cn)
}

// ctxErr prefers the context error when the socket was closed because the
// context ended.
func ctxErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%w (%v)", cerr, err)
	}
	return err
}

// openTransport dials the server and switches the connection to serial.
func (c *Client) openTransport(ctx context.Context, serial string) (*conn, error) {
	cn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	if err := cn.request("host:transport:" + serial); err != nil {
		cn.Close()
		return nil, ctxErr(ctx, fmt.Errorf("adb: selecting device %s: %w", serial, err))
	}
	return cn, nil
}

// Devices lists every device the server knows about, in any state.
func (c *Client) Devices(ctx context.Context) ([]DeviceInfo, error) {
	cn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer cn.Close()

	if err := cn.request("host:devices-l"); err != nil {
		return nil, ctxErr(ctx, err)
	}
	body, err := readHexPrefixed(cn)
	if err != nil {
		return nil, ctxErr(ctx, fmt.Errorf("adb: reading device list: %w", err))
	}
	return parseDevices(body), nil
}

// parseDevices parses "serial state key:value ..." lines.
func parseDevices(body string) []DeviceInfo {
	var devices []DeviceInfo
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		d := DeviceInfo{Serial: fields[0], State: fields[1]}
		for _, f := range fields[2:] {
			key, value, ok := strings.Cut(f, ":")
			if !ok {
				continue
			}
			switch key {
			case "product":
				d.Product = value
			case "model":
				d.Model = value
			case "device":
				d.Device = value
			case "transport_id":
				d.TransportID = value
			}
		}
		devices = append(devices, d)
	}
	return devices
}

// Connect asks the server to attach a network device at hostport.
func (c *Client) Connect(ctx context.Context, hostport string) error {
	cn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer cn.Close()

	if err := cn.request("host:connect:" + hostport); err != nil {
		return ctxErr(ctx, err)
	}
	msg, err := readHexPrefixed(cn)
	if err != nil {
		return ctxErr(ctx, fmt.Errorf("adb: reading connect reply: %w", err))
	}
	lower := strings.ToLower(msg)
	if strings.HasPrefix(lower, "failed") || strings.HasPrefix(lower, "unable") || strings.Contains(lower, "cannot") {
		return &ServerError{Message: strings.TrimSpace(msg)}
	}
	logging.Debug("adb connect", zap.String("target", hostport), zap.String("reply", strings.TrimSpace(msg)))
	return nil
}

// Shell runs a command on the device and returns its combined output. The
// arguments are quoted for the device shell. When ctx has a deadline the
// output is awaited until that deadline rather than IOTimeout per read.
func (c *Client) Shell(ctx context.Context, serial string, args ...string) (string, error) {
	if len(args) == 0 {
		return "", errors.New("adb: empty shell command")
	}
	cn, err := c.openTransport(ctx, serial)
	if err != nil {
		return "", err
	}
	defer cn.Close()

	cmd := quoteArgs(args)
	if err := cn.request("shell:" + cmd); err != nil {
		return "", ctxErr(ctx, fmt.Errorf("adb: starting %q: %w", cmd, err))
	}

	// A command may print nothing until it exits. With a context deadline
	// that deadline bounds the whole read instead of the per-read timeout.
	if deadline, ok := ctx.Deadline(); ok {
		cn.ioTimeout = 0
		_ = cn.SetDeadline(deadline)
	}

	var out strings.Builder
	buf := make([]byte, 4096)
	for {
		cn.touch()
		n, rerr := cn.Read(buf)
		out.Write(buf[:n])
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return out.String(), ctxErr(ctx, fmt.Errorf("adb: reading output of %q: %w", cmd, rerr))
		}
	}
	return out.String(), nil
}

// quoteArgs joins args into a single shell command line.
func quoteArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("-_./:=,+@%", r):
		default:
			safe = false
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
