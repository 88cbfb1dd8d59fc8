// Package codec holds the CBOR configuration shared by the coordinator and
// its peers. Every frame on the winbridge socket is a single CBOR item, so no
// extra framing is needed on the stream.
package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Arguments decoded into any must look like JSON-shaped data so
		// they can be printed and re-encoded by the CLI and MCP peers.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// RawMessage is an encoded CBOR value whose decoding is delayed.
type RawMessage = cbor.RawMessage

// Encoder writes a stream of CBOR items.
type Encoder = cbor.Encoder

// Decoder reads a stream of CBOR items.
type Decoder = cbor.Decoder

// Marshal encodes v using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder returns a stream encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
