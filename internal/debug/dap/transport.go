// Package dap carries Debug Adapter Protocol messages between the bridge and
// a front end. Messages are framed with Content-Length headers on byte
// streams (stdio, TCP) or sent one per text frame over a WebSocket.
package dap

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	godap "github.com/google/go-dap"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// Conn is a front-end connection carrying decoded DAP messages.
type Conn interface {
	// ReadMessage returns the next message from the front end. Requests
	// go-dap cannot decode are reported as *UnsupportedRequestError so the
	// caller can answer them and keep reading; other undecodable bodies are
	// reported as *DecodeError.
	ReadMessage() (godap.Message, error)

	// WriteMessage sends a message to the front end. It is safe for
	// concurrent use.
	WriteMessage(msg godap.Message) error

	// Close closes the connection.
	Close() error
}

// UnsupportedRequestError reports a well-formed request whose command is not
// known to go-dap.
type UnsupportedRequestError struct {
	Seq     int
	Command string
	Err     error
}

func (e *UnsupportedRequestError) Error() string {
	return fmt.Sprintf("unsupported request %q (seq %d): %v", e.Command, e.Seq, e.Err)
}

func (e *UnsupportedRequestError) Unwrap() error {
	return e.Err
}

// DecodeError reports a message body that is not a valid DAP message. The
// framing is intact, so reading can continue.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// decode turns one message body into a typed message.
func decode(content []byte) (godap.Message, error) {
	msg, err := godap.DecodeProtocolMessage(content)
	if err != nil {
		doc := gjson.ParseBytes(content)
		if doc.Get("type").String() == "request" && doc.Get("command").Exists() {
			return nil, &UnsupportedRequestError{
				Seq:     int(doc.Get("seq").Int()),
				Command: doc.Get("command").String(),
				Err:     err,
			}
		}
		return nil, &DecodeError{Err: err}
	}

	// DAP defaults both bases to 1 when the client omits them; go-dap
	// decodes a missing bool as false.
	if init, ok := msg.(*godap.InitializeRequest); ok {
		args := gjson.GetBytes(content, "arguments")
		if !args.Get("linesStartAt1").Exists() {
			init.Arguments.LinesStartAt1 = true
		}
		if !args.Get("columnsStartAt1").Exists() {
			init.Arguments.ColumnsStartAt1 = true
		}
	}
	return msg, nil
}

// StreamConn implements Conn over a byte stream.
type StreamConn struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer
	mu     sync.Mutex
}

// NewStreamConn creates a connection over rwc.
func NewStreamConn(rwc io.ReadWriteCloser) *StreamConn {
	return &StreamConn{
		reader: bufio.NewReader(rwc),
		writer: rwc,
		closer: rwc,
	}
}

// NewSocketConn creates a connection over an accepted TCP connection.
func NewSocketConn(conn net.Conn) *StreamConn {
	return NewStreamConn(conn)
}

type stdio struct {
	in  *os.File
	out *os.File
}

func (s stdio) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s stdio) Write(p []byte) (int, error) { return s.out.Write(p) }
func (s stdio) Close() error                { return s.in.Close() }

// NewStdioConn creates a connection over the process's stdin and stdout.
func NewStdioConn() *StreamConn {
	return NewStreamConn(stdio{in: os.Stdin, out: os.Stdout})
}

// ReadMessage implements Conn.
func (c *StreamConn) ReadMessage() (godap.Message, error) {
	content, err := godap.ReadBaseMessage(c.reader)
	if err != nil {
		return nil, err
	}
	return decode(content)
}

// WriteMessage implements Conn.
func (c *StreamConn) WriteMessage(msg godap.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := godap.WriteProtocolMessage(c.writer, msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close implements Conn.
func (c *StreamConn) Close() error {
	return c.closer.Close()
}

// writeWait bounds a single WebSocket write.
const writeWait = 10 * time.Second

// WebSocketConn implements Conn over a WebSocket, one message per text frame.
type WebSocketConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// NewWebSocketConn wraps an established WebSocket connection.
func NewWebSocketConn(ws *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{ws: ws}
}

// ReadMessage implements Conn.
func (c *WebSocketConn) ReadMessage() (godap.Message, error) {
	for {
		kind, content, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		return decode(content)
	}
}

// WriteMessage implements Conn.
func (c *WebSocketConn) WriteMessage(msg godap.Message) error {
	content, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, content); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close implements Conn. It sends a close frame before closing the socket.
func (c *WebSocketConn) Close() error {
	c.mu.Lock()
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.ws.Close()
}

// IsClosed reports whether err means the front end went away.
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}
