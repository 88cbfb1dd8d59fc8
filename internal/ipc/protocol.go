package ipc

import (
	"fmt"

	"github.com/1broseidon/winbridge/internal/codec"
)

// FrameKind identifies what a frame carries.
type FrameKind uint8

const (
	// FrameInvoke is a request that expects exactly one FrameResult.
	FrameInvoke FrameKind = iota + 1
	// FrameResult answers the FrameInvoke with the same ID.
	FrameResult
	// FrameSend is fire-and-forget in either direction.
	FrameSend
)

func (k FrameKind) String() string {
	switch k {
	case FrameInvoke:
		return "invoke"
	case FrameResult:
		return "result"
	case FrameSend:
		return "send"
	default:
		return fmt.Sprintf("frame(%d)", uint8(k))
	}
}

// Frame is the unit written to the socket. Each frame is one CBOR item.
type Frame struct {
	Kind    FrameKind          `cbor:"k"`
	ID      uint64             `cbor:"i,omitempty"`
	Channel string             `cbor:"c,omitempty"`
	Args    []codec.RawMessage `cbor:"a,omitempty"`
	Result  codec.RawMessage   `cbor:"r,omitempty"`
	Error   *WireError         `cbor:"e,omitempty"`
}

// WireError is the encoded form of a handler failure.
type WireError struct {
	Code    Code   `cbor:"code"`
	Message string `cbor:"message"`
}

// Args are the positional arguments of an invoke or send. Each argument is
// encoded on its own so receivers decode them individually into typed
// targets, preserving order and type.
type Args []codec.RawMessage

// EncodeArgs encodes values into Args.
func EncodeArgs(values ...any) (Args, error) {
	if len(values) == 0 {
		return nil, nil
	}
	args := make(Args, len(values))
	for i, v := range values {
		data, err := codec.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode argument %d: %w", i, err)
		}
		args[i] = data
	}
	return args, nil
}

// Len returns the number of arguments.
func (a Args) Len() int { return len(a) }

// Decode decodes argument i into v.
func (a Args) Decode(i int, v any) error {
	if i < 0 || i >= len(a) {
		return fmt.Errorf("%w: missing argument %d", ErrBadRequest, i)
	}
	if err := codec.Unmarshal(a[i], v); err != nil {
		return fmt.Errorf("%w: argument %d: %v", ErrBadRequest, i, err)
	}
	return nil
}

// Values decodes every argument into an untyped value.
func (a Args) Values() ([]any, error) {
	out := make([]any, len(a))
	for i := range a {
		if err := a.Decode(i, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Tail returns the arguments from index i on.
func (a Args) Tail(i int) Args {
	if i >= len(a) {
		return nil
	}
	return a[i:]
}

// Raw returns the arguments as values that encode back to the same bytes,
// for relaying a call without interpreting it.
func (a Args) Raw() []any {
	out := make([]any, len(a))
	for i, arg := range a {
		out[i] = arg
	}
	return out
}

// Result is the encoded value a handler returned. It is empty when the
// handler returned nil.
type Result codec.RawMessage

// Decode decodes the result into v. An empty result leaves v untouched.
func (r Result) Decode(v any) error {
	if len(r) == 0 {
		return nil
	}
	if err := codec.Unmarshal(r, v); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// IsEmpty reports whether the handler returned no value.
func (r Result) IsEmpty() bool { return len(r) == 0 }
