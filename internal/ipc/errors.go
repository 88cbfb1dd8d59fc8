package ipc

import (
	"errors"
	"fmt"
)

// Code classifies a failure so that both ends of the socket can tell error
// kinds apart after the error has crossed the wire.
type Code string

const (
	CodeInternal      Code = "internal"
	CodeNoHandler     Code = "no_handler"
	CodeBadRequest    Code = "bad_request"
	CodeConstruction  Code = "construction_failure"
	CodeStaleIdentity Code = "stale_identity"
	CodeRelay         Code = "relay_failure"
)

// Error is a coded failure. Handlers return it (usually wrapped with
// fmt.Errorf and %w) and clients receive it back with Channel set to the
// channel the request addressed.
//
// errors.Is matches any two *Error values with the same Code, so a sentinel
// such as ErrNoHandler matches the reconstructed error on the peer side.
type Error struct {
	Code    Code
	Channel string
	Message string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Channel != "" {
		return fmt.Sprintf("%s: %s", e.Channel, msg)
	}
	return msg
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError returns a coded error with the given message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	// ErrNoHandler is returned for invokes on a channel nobody handles.
	ErrNoHandler = NewError(CodeNoHandler, "no handler registered")

	// ErrBadRequest is returned when a handler cannot decode its arguments.
	ErrBadRequest = NewError(CodeBadRequest, "bad request")

	// ErrChannelInUse is returned by Router.Handle for a name that already
	// has a handler.
	ErrChannelInUse = errors.New("ipc: channel already handled")

	// ErrConnClosed settles every request still pending when the
	// connection goes away.
	ErrConnClosed = errors.New("ipc: connection closed")
)

// toWire flattens err for transmission. The code comes from the first *Error
// in the chain; the message is the full wrapped text.
func toWire(err error) *WireError {
	if err == nil {
		return nil
	}
	code := CodeInternal
	var coded *Error
	if errors.As(err, &coded) {
		code = coded.Code
	}
	return &WireError{Code: code, Message: err.Error()}
}

func fromWire(channel string, w *WireError) error {
	if w == nil {
		return nil
	}
	return &Error{Code: w.Code, Channel: channel, Message: w.Message}
}
