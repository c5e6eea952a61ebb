// Package adbtest provides an in-process adb server for tests.
//
// The server speaks enough of the host and sync protocols to exercise device
// listing, transport selection, shell commands, pushes and stat. Behaviour is
// scripted through setters that are safe to call while connections are open.
package adbtest

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Device is a device the fake server reports.
type Device struct {
	Serial  string
	State   string
	Model   string
	Product string
}

// File is a file pushed to the fake server.
type File struct {
	Data []byte
	Mode uint32
}

// Server is a scripted adb server listening on a loopback port.
type Server struct {
	Addr string

	ln net.Listener
	wg sync.WaitGroup

	mu            sync.Mutex
	devices       []Device
	files         map[string]File
	commands      []string
	connected     []string
	shell         func(serial, cmd string) string
	pushFailAfter int64
	pushFailMsg   string
	chunkDelay    time.Duration
	conns         map[net.Conn]struct{}
}

// NewServer starts a server reporting devices. It panics if it cannot
// listen, like httptest.NewServer.
func NewServer(devices ...Device) *Server {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(fmt.Sprintf("adbtest: failed to listen: %v", err))
	}
	s := &Server{
		Addr:    ln.Addr().String(),
		ln:      ln,
		devices: devices,
		files:   make(map[string]File),
		conns:   make(map[net.Conn]struct{}),
		shell:   func(string, string) string { return "" },
	}
	s.wg.Add(1)
	go s.serve()
	return s
}

// Close stops the listener and drops open connections.
func (s *Server) Close() {
	_ = s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// SetDevices replaces the reported device list.
func (s *Server) SetDevices(devices ...Device) {
	s.mu.Lock()
	s.devices = devices
	s.mu.Unlock()
}

// SetShell scripts shell command output.
func (s *Server) SetShell(fn func(serial, cmd string) string) {
	s.mu.Lock()
	s.shell = fn
	s.mu.Unlock()
}

// FailPushAfter drops the connection once n bytes of a push have arrived.
// Zero disables the failure.
func (s *Server) FailPushAfter(n int64) {
	s.mu.Lock()
	s.pushFailAfter = n
	s.mu.Unlock()
}

// RejectPush makes the device answer DONE with FAIL and msg.
func (s *Server) RejectPush(msg string) {
	s.mu.Lock()
	s.pushFailMsg = msg
	s.mu.Unlock()
}

// SetChunkDelay slows down every received DATA chunk.
func (s *Server) SetChunkDelay(d time.Duration) {
	s.mu.Lock()
	s.chunkDelay = d
	s.mu.Unlock()
}

// PutFile stores a file as if it had been pushed.
func (s *Server) PutFile(path string, data []byte) {
	s.mu.Lock()
	s.files[path] = File{Data: data, Mode: 0o100644}
	s.mu.Unlock()
}

// File returns a pushed file.
func (s *Server) File(path string) (File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[path]
	return f, ok
}

// Commands returns every shell command received, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Connected returns every host:connect target received.
func (s *Server) Connected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.connected...)
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, c)
				s.mu.Unlock()
				_ = c.Close()
			}()
			s.handle(c)
		}()
	}
}

func (s *Server) handle(c net.Conn) {
	serial := ""
	for {
		req, err := readRequest(c)
		if err != nil {
			return
		}
		switch {
		case req == "host:devices-l":
			okay(c)
			writeHex(c, s.deviceList())
			return

		case strings.HasPrefix(req, "host:connect:"):
			target := strings.TrimPrefix(req, "host:connect:")
			s.mu.Lock()
			s.connected = append(s.connected, target)
			s.mu.Unlock()
			okay(c)
			writeHex(c, "connected to "+target)
			return

		case strings.HasPrefix(req, "host:transport:"):
			serial = strings.TrimPrefix(req, "host:transport:")
			if !s.online(serial) {
				fail(c, fmt.Sprintf("device '%s' not found", serial))
				return
			}
			okay(c)

		case strings.HasPrefix(req, "shell:") && serial != "":
			cmd := strings.TrimPrefix(req, "shell:")
			s.mu.Lock()
			s.commands = append(s.commands, cmd)
			fn := s.shell
			s.mu.Unlock()
			okay(c)
			_, _ = io.WriteString(c, fn(serial, cmd))
			return

		case req == "sync:" && serial != "":
			okay(c)
			s.handleSync(c)
			return

		default:
			fail(c, "unknown host service")
			return
		}
	}
}

func (s *Server) handleSync(c net.Conn) {
	for {
		id, arg, err := readHeader(c)
		if err != nil {
			return
		}
		switch id {
		case "SEND":
			dest := make([]byte, arg)
			if _, err := io.ReadFull(c, dest); err != nil {
				return
			}
			if !s.receive(c, string(dest)) {
				return
			}
		case "STAT":
			path := make([]byte, arg)
			if _, err := io.ReadFull(c, path); err != nil {
				return
			}
			f, ok := s.File(string(path))
			var reply [16]byte
			copy(reply[:4], "STAT")
			if ok {
				binary.LittleEndian.PutUint32(reply[4:], f.Mode)
				binary.LittleEndian.PutUint32(reply[8:], uint32(len(f.Data)))
				binary.LittleEndian.PutUint32(reply[12:], uint32(time.Now().Unix()))
			}
			_, _ = c.Write(reply[:])
		case "QUIT":
			return
		default:
			return
		}
	}
}

// receive reads DATA frames until DONE and stores the file. It returns false
// when the connection should be dropped.
func (s *Server) receive(c net.Conn, dest string) bool {
	path, modeText, _ := strings.Cut(dest, ",")
	mode, _ := strconv.ParseUint(modeText, 10, 32)

	s.mu.Lock()
	failAfter := s.pushFailAfter
	failMsg := s.pushFailMsg
	delay := s.chunkDelay
	s.mu.Unlock()

	var data []byte
	for {
		id, arg, err := readHeader(c)
		if err != nil {
			return false
		}
		switch id {
		case "DATA":
			if arg > 64*1024 {
				sendFail(c, "data chunk too large")
				return false
			}
			chunk := make([]byte, arg)
			if _, err := io.ReadFull(c, chunk); err != nil {
				return false
			}
			data = append(data, chunk...)
			if failAfter > 0 && int64(len(data)) >= failAfter {
				return false
			}
			if delay > 0 {
				time.Sleep(delay)
			}
		case "DONE":
			if failMsg != "" {
				sendFail(c, failMsg)
				return false
			}
			s.mu.Lock()
			s.files[path] = File{Data: data, Mode: uint32(mode)}
			s.mu.Unlock()
			var reply [8]byte
			copy(reply[:4], "OKAY")
			_, _ = c.Write(reply[:])
			return true
		default:
			return false
		}
	}
}

func (s *Server) deviceList() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for _, d := range s.devices {
		fmt.Fprintf(&b, "%s\t%s", d.Serial, d.State)
		if d.Product != "" {
			fmt.Fprintf(&b, " product:%s", d.Product)
		}
		if d.Model != "" {
			fmt.Fprintf(&b, " model:%s", d.Model)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (s *Server) online(serial string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if d.Serial == serial {
			return d.State == "device"
		}
	}
	return false
}

func readRequest(r io.Reader) (string, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return "", err
	}
	n, err := strconv.ParseUint(string(head[:]), 16, 16)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readHeader(r io.Reader) (string, uint32, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return "", 0, err
	}
	return string(hdr[:4]), binary.LittleEndian.Uint32(hdr[4:]), nil
}

func okay(w io.Writer) {
	_, _ = io.WriteString(w, "OKAY")
}

func fail(w io.Writer, msg string) {
	_, _ = io.WriteString(w, "FAIL")
	writeHex(w, msg)
}

func writeHex(w io.Writer, msg string) {
	_, _ = fmt.Fprintf(w, "%04x%s", len(msg), msg)
}

func sendFail(w io.Writer, msg string) {
	var hdr [8]byte
	copy(hdr[:4], "FAIL")
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(msg)))
	_, _ = w.Write(hdr[:])
	_, _ = io.WriteString(w, msg)
}
