package encoding

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v5"
)

// Marshaler interface specifies encoding to a stream or byte array and back to the object.
type Marshaler interface {
	// Encode writes one self-contained payload for v to w.
	Encode(w io.Writer, v any) error
	// Decode reads one payload from r into v, which must be a pointer.
	Decode(r io.Reader, v any) error
	// Marshal encodes any object to byte array.
	Marshal(v any) ([]byte, error)
	// Unmarshal decodes byte array back to its Object type.
	Unmarshal(data []byte, v any) error
}

// Global Default marshaller, MessagePack compressed with snappy.
var DefaultMarshaler = NewMarshaler()

type packMarshaler struct{}

// NewMarshaler returns the default marshaller: MessagePack keeps field names so records stay
// readable across struct changes and generic values (index keys, audit values) round trip,
// and each payload is wrapped in a snappy framed stream which compresses it in blocks.
func NewMarshaler() Marshaler {
	return packMarshaler{}
}

func (m packMarshaler) Encode(w io.Writer, v any) error {
	sw := snappy.NewBufferedWriter(w)
	if err := msgpack.NewEncoder(sw).Encode(v); err != nil {
		_ = sw.Close()
		return err
	}
	// Close flushes the last block; it doesn't close w.
	return sw.Close()
}

func (m packMarshaler) Decode(r io.Reader, v any) error {
	return msgpack.NewDecoder(snappy.NewReader(r)).Decode(v)
}

func (m packMarshaler) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := m.Encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m packMarshaler) Unmarshal(data []byte, v any) error {
	return m.Decode(bytes.NewReader(data), v)
}

type jsonMarshaler struct{}

// NewJSONMarshaler returns a marshaller which uses the golang's json package. Files stay
// human readable at the cost of size; numbers in generic values decode as float64.
func NewJSONMarshaler() Marshaler {
	return jsonMarshaler{}
}

func (m jsonMarshaler) Encode(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func (m jsonMarshaler) Decode(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

func (m jsonMarshaler) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (m jsonMarshaler) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
