package runtime

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/dshills/luadap/internal/logging"
)

// DefaultAddress is where the engine listens for a debugger.
const DefaultAddress = "127.0.0.1:19542"

// MaxRecordLength bounds a single inbound record (1MB).
const MaxRecordLength = 1024 * 1024

// Config configures a Transport.
type Config struct {
	// Address is the runtime's host:port.
	Address string

	// DialTimeout bounds Connect. Zero means no timeout beyond ctx.
	DialTimeout time.Duration
}

// DefaultConfig returns the engine's default endpoint.
func DefaultConfig() Config {
	return Config{
		Address:     DefaultAddress,
		DialTimeout: 5 * time.Second,
	}
}

// Transport owns the single socket to the runtime. Commands are written
// fire-and-forget; inbound records are decoded on a separate read goroutine
// and handed, in arrival order, to the one registered handler.
type Transport struct {
	cfg Config
	log *logging.Logger

	mu        sync.Mutex
	conn      net.Conn
	closed    bool
	onMessage func(Message)
	onClose   func(error)

	closeOnce sync.Once
	done      chan struct{}
}

// NewTransport creates an unconnected transport.
func NewTransport(cfg Config, log *logging.Logger) *Transport {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if log == nil {
		log = logging.Null()
	}
	return &Transport{
		cfg:  cfg,
		log:  log.WithComponent("runtime"),
		done: make(chan struct{}),
	}
}

// Address returns the configured runtime endpoint.
func (t *Transport) Address() string {
	return t.cfg.Address
}

// SetLogger replaces the logger, keeping the runtime component field. Call
// it before Connect.
func (t *Transport) SetLogger(log *logging.Logger) {
	if log == nil {
		log = logging.Null()
	}
	t.mu.Lock()
	t.log = log.WithComponent("runtime")
	t.mu.Unlock()
}

func (t *Transport) logger() *logging.Logger {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.log
}

// OnMessage registers the consumer of decoded messages. It must be set
// before Connect; later calls replace the handler.
func (t *Transport) OnMessage(handler func(Message)) {
	t.mu.Lock()
	t.onMessage = handler
	t.mu.Unlock()
}

// OnClose registers a callback run once when the read path ends for any
// reason other than Close. The error is io.EOF for an orderly shutdown by
// the runtime.
func (t *Transport) OnClose(handler func(error)) {
	t.mu.Lock()
	t.onClose = handler
	t.mu.Unlock()
}

// Connect dials the runtime and starts the read goroutine.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if t.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.DialTimeout)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", t.cfg.Address)
	if err != nil {
		return &ConnectionError{Op: "dial", Address: t.cfg.Address, Err: err}
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	t.conn = conn
	t.mu.Unlock()

	t.logger().Info("connected to runtime at %s", t.cfg.Address)
	go t.readLoop(conn)
	return nil
}

// Connected reports whether the socket is open.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil && !t.closed
}

// Send encodes cmd and writes it followed by a newline. It does not wait for
// any reply. A write failure is returned as a ConnectionError.
func (t *Transport) Send(cmd Command) error {
	record, err := cmd.Encode()
	if err != nil {
		return err
	}
	record = append(record, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.conn == nil {
		return &ConnectionError{Op: "write", Address: t.cfg.Address, Err: errors.New("not connected")}
	}

	if _, err := t.conn.Write(record); err != nil {
		return &ConnectionError{Op: "write", Address: t.cfg.Address, Err: err}
	}

	if t.log.Enabled(logging.LevelDebug) {
		t.log.Debug("-> %s", record[:len(record)-1])
	}
	return nil
}

// Close closes the socket. It is safe to call more than once.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		conn := t.conn
		t.mu.Unlock()

		if conn != nil {
			err = conn.Close()
		}
		close(t.done)
	})
	return err
}

// Done is closed once Close has been called.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

func (t *Transport) readLoop(conn net.Conn) {
	log := t.logger()
	reader := bufio.NewReaderSize(conn, 64*1024)

	var err error
	for {
		var line []byte
		line, err = readRecord(reader)
		if err != nil {
			var decodeErr *ProtocolDecodeError
			if errors.As(err, &decodeErr) {
				log.Warn("dropping record: %v", err)
				continue
			}
			break
		}
		if len(line) == 0 {
			continue
		}

		if log.Enabled(logging.LevelDebug) {
			log.Debug("<- %s", line)
		}

		msg, decodeErr := Decode(line)
		if decodeErr != nil {
			log.Warn("dropping record: %v", decodeErr)
			continue
		}

		t.mu.Lock()
		handler := t.onMessage
		t.mu.Unlock()

		if handler != nil {
			handler(msg)
		}
	}

	t.mu.Lock()
	closedByUs := t.closed
	handler := t.onClose
	t.mu.Unlock()

	if closedByUs {
		return
	}

	log.Warn("runtime connection lost: %v", err)
	if handler != nil {
		if !errors.Is(err, io.EOF) {
			err = &ConnectionError{Op: "read", Address: t.cfg.Address, Err: err}
		}
		handler(err)
	}
}

// readRecord returns the next record without its line ending. A record
// longer than MaxRecordLength is consumed up to its newline and reported as a
// ProtocolDecodeError so the caller can keep reading. A final record with no
// newline is returned before io.EOF.
func readRecord(r *bufio.Reader) ([]byte, error) {
	var record []byte
	tooLong := false

	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			n := len(record) + len(chunk)
			if bytes.HasSuffix(chunk, []byte{'\n'}) {
				n--
			}
			if n > MaxRecordLength {
				tooLong = true
			} else {
				record = append(record, chunk...)
			}
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(record) > 0 && !tooLong {
				return trimLineEnding(record), nil
			}
			return nil, err
		}
		break
	}

	if tooLong {
		return nil, decodeError(record, fmt.Sprintf("record exceeds %d bytes", MaxRecordLength))
	}
	return trimLineEnding(record), nil
}

func trimLineEnding(record []byte) []byte {
	record = bytes.TrimSuffix(record, []byte{'\n'})
	return bytes.TrimSuffix(record, []byte{'\r'})
}

// String describes the transport for log lines.
func (t *Transport) String() string {
	return fmt.Sprintf("runtime(%s)", t.cfg.Address)
}
