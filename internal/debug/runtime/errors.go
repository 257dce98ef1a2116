package runtime

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("runtime transport closed")

// maxRecordPreview bounds how much of a bad record is kept in an error.
const maxRecordPreview = 120

// ProtocolDecodeError reports an inbound record that could not be decoded.
// The record is dropped; the session continues.
type ProtocolDecodeError struct {
	Record string
	Reason string
}

func (e *ProtocolDecodeError) Error() string {
	return fmt.Sprintf("decode runtime record: %s: %q", e.Reason, e.Record)
}

func decodeError(record []byte, reason string) error {
	preview := string(record)
	if len(preview) > maxRecordPreview {
		preview = preview[:maxRecordPreview] + "..."
	}
	return &ProtocolDecodeError{Record: preview, Reason: reason}
}

// ConnectionError reports a socket failure. It is fatal for the session.
type ConnectionError struct {
	Op      string // "dial", "write" or "read"
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("runtime %s %s: %v", e.Op, e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err is a ConnectionError.
func IsConnectionError(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}
