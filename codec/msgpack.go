package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack serializes snapshots with vmihailenco/msgpack/v5. The zero value is
// ready to use.
//
// Struct fields are named by their `json` tag when no `msgpack` tag is set, so
// one item type can be switched between JSON and Msgpack without re-tagging.
type Msgpack[V any] struct{}

var _ Codec[[]int] = Msgpack[[]int]{}

func (Msgpack[V]) Encode(v V) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	err := dec.Decode(&v)
	return v, err
}
