// Package codec converts snapshot values to and from bytes.
//
// A snapshot is persisted as a single payload, so stores are usually configured
// with a Codec over the slice type, e.g. codec.JSON[[]Todo]{}.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
