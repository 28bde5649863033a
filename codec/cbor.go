package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOR is a Codec that serializes values using fxamacker/cbor.
// The zero value is NOT ready to use. Construct with NewCBOR or MustCBOR.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[[]struct{}] = CBOR[[]struct{}]{}

// CBOROptions tunes the CBOR codec.
type CBOROptions struct {
	// Deterministic selects RFC 8949 Core Deterministic encoding, which gives
	// byte-for-byte stable snapshots (and stable size statistics).
	// Otherwise PreferredUnsortedEncOptions are used.
	Deterministic bool
	// MaxItems caps array length accepted on decode. 0 keeps the library default.
	MaxItems int
}

// NewCBOR constructs a CBOR codec. Time values are encoded as RFC3339Nano.
func NewCBOR[V any](o CBOROptions) (CBOR[V], error) {
	var eo cbor.EncOptions
	if o.Deterministic {
		eo = cbor.CoreDetEncOptions()
	} else {
		eo = cbor.PreferredUnsortedEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	var do cbor.DecOptions
	if o.MaxItems > 0 {
		do.MaxArrayElements = o.MaxItems
	}
	dm, err := do.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

// MustCBOR is like NewCBOR but panics on error.
// Handy for package-level variables in tests/examples.
func MustCBOR[V any](o CBOROptions) CBOR[V] {
	c, err := NewCBOR[V](o)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR[V]) Encode(v V) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	err := c.dec.Unmarshal(b, &v)
	return v, err
}
