package protocol

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies protocol client failures
type Kind string

// Error kinds for the Kaspa wRPC client
const (
	KindTransport   Kind = "TRANSPORT_ERROR"
	KindHandshake   Kind = "HANDSHAKE_ERROR"
	KindTimeout     Kind = "TIMEOUT"
	KindDecode      Kind = "DECODE_ERROR"
	KindUnreachable Kind = "UPSTREAM_UNREACHABLE"
	KindRPC         Kind = "RPC_ERROR"
	KindNotOpen     Kind = "NOT_OPEN"
	KindClosed      Kind = "CLOSED"
)

// Sentinels for errors.Is checks. Every *Error matches the sentinel of its kind.
var (
	ErrTransport   = &Error{Kind: KindTransport}
	ErrHandshake   = &Error{Kind: KindHandshake}
	ErrTimeout     = &Error{Kind: KindTimeout}
	ErrDecode      = &Error{Kind: KindDecode}
	ErrUnreachable = &Error{Kind: KindUnreachable}
	ErrRPC         = &Error{Kind: KindRPC}
	ErrNotOpen     = &Error{Kind: KindNotOpen}
	ErrClosed      = &Error{Kind: KindClosed}
)

// Codec errors. All of them are decode-kind errors.
var (
	ErrIncomplete        = &Error{Kind: KindDecode, Op: "decode", Err: errors.New("incomplete frame")}
	ErrMaskedFrame       = &Error{Kind: KindDecode, Op: "decode", Err: errors.New("server frame has mask bit set")}
	ErrUnsupportedLength = &Error{Kind: KindDecode, Op: "decode", Err: errors.New("64-bit extended payload length not supported")}
	ErrPayloadTooLarge   = &Error{Kind: KindDecode, Op: "encode", Err: fmt.Errorf("payload exceeds %d bytes", MaxShortPayload)}
	ErrEmptyResponse     = &Error{Kind: KindDecode, Op: "response", Err: errors.New("response carries neither result nor params")}
)

// Error is a classified protocol failure
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the bare sentinel of the same kind, or the
// exact same error value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t == e {
		return true
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of err, or "" if err is not a protocol error.
// Used as the outcome label for call metrics.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// Outcome returns a metrics label for the result of an operation
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "CANCELLED"
	}
	return "UNKNOWN"
}
