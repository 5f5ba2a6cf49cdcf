package hardware

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

var (
	// ErrReadTimeout is returned by ReadLine when no line arrived in time.
	ErrReadTimeout = errors.New("hardware: read timeout")
	// ErrTransportClosed means the link can no longer carry traffic.
	ErrTransportClosed = errors.New("hardware: transport closed")
)

// Transport carries newline-framed ASCII in both directions. ReadLine must
// return within timeout so a stop request is never stuck behind a read.
type Transport interface {
	io.Writer
	ReadLine(timeout time.Duration) (string, error)
	Close() error
}

// lineReader splits a byte stream into lines on a background goroutine so
// ReadLine can honour a timeout on readers that block.
type lineReader struct {
	lines chan string
	done  chan struct{}

	mu   sync.Mutex
	err  error
	once sync.Once
}

func newLineReader(r io.Reader) *lineReader {
	lr := &lineReader{
		lines: make(chan string, 64),
		done:  make(chan struct{}),
	}
	go lr.run(r)
	return lr
}

func (lr *lineReader) run(r io.Reader) {
	defer close(lr.lines)

	buf := make([]byte, 256)
	var pending []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				line := string(bytes.TrimRight(pending[:i], "\r"))
				pending = pending[i+1:]
				select {
				case lr.lines <- line:
				case <-lr.done:
					return
				}
			}
		}
		if err != nil {
			lr.setErr(err)
			return
		}
		select {
		case <-lr.done:
			return
		default:
		}
	}
}

func (lr *lineReader) setErr(err error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.err == nil {
		lr.err = err
	}
}

func (lr *lineReader) readLine(timeout time.Duration) (string, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case line, ok := <-lr.lines:
		if !ok {
			lr.mu.Lock()
			err := lr.err
			lr.mu.Unlock()
			if err == nil || errors.Is(err, io.EOF) {
				return "", ErrTransportClosed
			}
			return "", fmt.Errorf("%w: %v", ErrTransportClosed, err)
		}
		return line, nil
	case <-lr.done:
		return "", ErrTransportClosed
	case <-timer:
		return "", ErrReadTimeout
	}
}

func (lr *lineReader) stop() {
	lr.once.Do(func() { close(lr.done) })
}

// StreamTransport runs the protocol over arbitrary streams, for example
// stdin/stdout when no serial port is configured.
type StreamTransport struct {
	w  io.Writer
	c  io.Closer
	lr *lineReader

	mu     sync.Mutex
	closed bool
}

// NewStreamTransport reads lines from r and writes commands to w. If r
// implements io.Closer it is closed by Close.
func NewStreamTransport(r io.Reader, w io.Writer) *StreamTransport {
	t := &StreamTransport{w: w, lr: newLineReader(r)}
	if c, ok := r.(io.Closer); ok {
		t.c = c
	}
	return t
}

func (t *StreamTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrTransportClosed
	}
	n, err := t.w.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return n, nil
}

// ReadLine returns the next line without its terminator.
func (t *StreamTransport) ReadLine(timeout time.Duration) (string, error) {
	return t.lr.readLine(timeout)
}

// Close stops the reader and closes the input if it is closable.
func (t *StreamTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.lr.stop()
	if t.c != nil {
		return t.c.Close()
	}
	return nil
}

// SerialConfig selects a serial device.
type SerialConfig struct {
	Port     string
	BaudRate int
	// PollTimeout bounds each low-level read so Close is noticed promptly.
	PollTimeout time.Duration
}

// DefaultBaudRate matches the controller firmware.
const DefaultBaudRate = 115200

// SerialTransport talks to the mount controller over a serial port.
type SerialTransport struct {
	port serial.Port
	lr   *lineReader

	mu     sync.Mutex
	closed bool
}

// OpenSerial opens and configures the port.
func OpenSerial(cfg SerialConfig) (*SerialTransport, error) {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 100 * time.Millisecond
	}
	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(cfg.PollTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Port, err)
	}
	return &SerialTransport{port: port, lr: newLineReader(port)}, nil
}

// ListSerialPorts returns the serial devices present on the host.
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

func (t *SerialTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrTransportClosed
	}
	n, err := t.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return n, nil
}

// ReadLine returns the next line without its terminator.
func (t *SerialTransport) ReadLine(timeout time.Duration) (string, error) {
	return t.lr.readLine(timeout)
}

// Close stops the reader and releases the port.
func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.lr.stop()
	return t.port.Close()
}
