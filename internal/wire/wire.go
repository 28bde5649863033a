package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	version      byte = 1
	kindSnapshot byte = 1
	kindMeta     byte = 2
)

var (
	ErrCorrupt = errors.New("snapcache: corrupt record")
	magic4     = [...]byte{'S', 'N', 'A', 'P'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Snapshot: magic(4) | ver(1) | kind(1=snapshot) | count(u32 be) | plen(u32 be) | payload(plen)
//
// count is the number of items the codec payload must decode into; a mismatch on
// read means the record and payload disagree and the entry is treated as corrupt.
func EncodeSnapshot(count int, payload []byte) ([]byte, error) {
	if count < 0 || uint64(count) > math.MaxUint32 {
		return nil, fmt.Errorf("snapcache: item count out of range: %d", count)
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("snapcache: payload too large: %d", len(payload))
	}

	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 4 + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindSnapshot)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(count))
	buf.Write(u4[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes(), nil
}

func DecodeSnapshot(b []byte) (count int, payload []byte, err error) {
	const hdr = 4 + 1 + 1 + 4 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindSnapshot {
		return 0, nil, ErrCorrupt
	}
	off := 6

	count = int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4

	plen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if plen != len(b)-off { // strict: no short reads, no trailing bytes
		return 0, nil, ErrCorrupt
	}
	return count, b[off:], nil
}

// Meta is the decoded form of a metadata record.
type Meta struct {
	StorageKey    string
	Owner         string
	Timestamp     int64 // unix millis
	SchemaVersion int
	ItemCount     int
}

// Meta:
//
//	magic(4) | ver(1) | kind(2=meta) | ts(i64 be) | schema(u32 be) | count(u32 be)
//	keyLen(u16 be) | key(keyLen) | ownerLen(u16 be) | owner(ownerLen)
func EncodeMeta(m Meta) ([]byte, error) {
	if l := len(m.StorageKey); l == 0 || l > math.MaxUint16 {
		return nil, fmt.Errorf("snapcache: invalid storage key length %d", l)
	}
	if len(m.Owner) > math.MaxUint16 {
		return nil, fmt.Errorf("snapcache: invalid owner length %d", len(m.Owner))
	}
	if m.SchemaVersion < 0 || uint64(m.SchemaVersion) > math.MaxUint32 {
		return nil, fmt.Errorf("snapcache: schema version out of range: %d", m.SchemaVersion)
	}
	if m.ItemCount < 0 || uint64(m.ItemCount) > math.MaxUint32 {
		return nil, fmt.Errorf("snapcache: item count out of range: %d", m.ItemCount)
	}

	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 8 + 4 + 4 + 2 + len(m.StorageKey) + 2 + len(m.Owner))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindMeta)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], uint64(m.Timestamp))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(m.SchemaVersion))
	buf.Write(u4[:])

	binary.BigEndian.PutUint32(u4[:], uint32(m.ItemCount))
	buf.Write(u4[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(m.StorageKey)))
	buf.Write(u2[:])
	buf.WriteString(m.StorageKey)

	binary.BigEndian.PutUint16(u2[:], uint16(len(m.Owner)))
	buf.Write(u2[:])
	buf.WriteString(m.Owner)

	return buf.Bytes(), nil
}

func DecodeMeta(b []byte) (Meta, error) {
	const hdr = 4 + 1 + 1 + 8 + 4 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindMeta {
		return Meta{}, ErrCorrupt
	}
	off := 6

	var m Meta
	m.Timestamp = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	m.SchemaVersion = int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	m.ItemCount = int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4

	key, off, ok := readString16(b, off)
	if !ok || key == "" {
		return Meta{}, ErrCorrupt
	}
	owner, off, ok := readString16(b, off)
	if !ok || off != len(b) {
		return Meta{}, ErrCorrupt
	}
	m.StorageKey = key
	m.Owner = owner
	return m, nil
}

func readString16(b []byte, off int) (string, int, bool) {
	if off+2 > len(b) {
		return "", off, false
	}
	l := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if l > len(b)-off {
		return "", off, false
	}
	return string(b[off : off+l]), off + l, true
}
