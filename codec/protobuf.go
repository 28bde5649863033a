package codec

import (
	"bytes"
	"errors"
	"io"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/proto"
)

// ProtobufList encodes a snapshot of proto messages as a sequence of
// size-delimited messages, preserving order.
type ProtobufList[M proto.Message] struct {
	new     func() M // constructor for a concrete message, e.g. func() *todov1.Todo { return &todov1.Todo{} }
	maxSize int
}

// NewProtobufList returns a list codec. maxSize bounds a single message on
// decode; 0 uses the protodelim default.
func NewProtobufList[M proto.Message](ctor func() M, maxSize int) ProtobufList[M] {
	return ProtobufList[M]{new: ctor, maxSize: maxSize}
}

func (c ProtobufList[M]) Encode(items []M) ([]byte, error) {
	var buf bytes.Buffer
	for _, m := range items {
		if _, err := protodelim.MarshalTo(&buf, m); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (c ProtobufList[M]) Decode(b []byte) ([]M, error) {
	r := bytes.NewReader(b)
	opts := protodelim.UnmarshalOptions{MaxSize: int64(c.maxSize)}
	out := []M{}
	for r.Len() > 0 {
		m := c.new()
		if err := opts.UnmarshalFrom(r, m); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
