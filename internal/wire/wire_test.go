package wire

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func mustEncodeSnapshot(t *testing.T, count int, payload []byte) []byte {
	t.Helper()
	b, err := EncodeSnapshot(count, payload)
	if err != nil {
		t.Fatalf("EncodeSnapshot error: %v", err)
	}
	return b
}

func mustEncodeMeta(t *testing.T, m Meta) []byte {
	t.Helper()
	b, err := EncodeMeta(m)
	if err != nil {
		t.Fatalf("EncodeMeta error: %v", err)
	}
	return b
}

func TestSnapshotRTEmptyAndNonEmpty(t *testing.T) {
	cases := []struct {
		count   int
		payload []byte
	}{
		{0, nil},
		{3, []byte(`[1,2,3]`)},
		{1, []byte{0, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		enc := mustEncodeSnapshot(t, tc.count, tc.payload)
		n, p, err := DecodeSnapshot(enc)
		if err != nil {
			t.Fatalf("DecodeSnapshot error: %v", err)
		}
		if n != tc.count {
			t.Fatalf("count mismatch: got %d want %d", n, tc.count)
		}
		if !bytes.Equal(p, tc.payload) {
			t.Fatalf("payload mismatch: got %x want %x", p, tc.payload)
		}
	}
}

func TestSnapshotRejectsTrailingBytes(t *testing.T) {
	enc := mustEncodeSnapshot(t, 1, []byte("x"))
	enc = append(enc, 0xDE, 0xAD)
	if _, _, err := DecodeSnapshot(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestSnapshotCorruptHeadersAndLengths(t *testing.T) {
	enc := mustEncodeSnapshot(t, 2, []byte("abc"))

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, _, err := DecodeSnapshot(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, _, err := DecodeSnapshot(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	badKind := append([]byte(nil), enc...)
	badKind[5] = kindMeta
	if _, _, err := DecodeSnapshot(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// plen is at offset 10..13 (4 magic +1 ver +1 kind +4 count)
	tooLong := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(tooLong[10:14], uint32(len("abc")+1))
	if _, _, err := DecodeSnapshot(tooLong); err == nil {
		t.Fatalf("expected error on plen beyond buffer")
	}

	if _, _, err := DecodeSnapshot(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}
	if _, _, err := DecodeSnapshot(nil); err == nil {
		t.Fatalf("expected error on empty buffer")
	}
}

func TestSnapshotRejectsNegativeCount(t *testing.T) {
	if _, err := EncodeSnapshot(-1, nil); err == nil {
		t.Fatalf("expected error on negative count")
	}
}

func TestMetaRoundTrip(t *testing.T) {
	cases := []Meta{
		{StorageKey: "todos", Timestamp: 1700000000123, SchemaVersion: 1, ItemCount: 0},
		{StorageKey: "todos:u1", Owner: "u1", Timestamp: 42, SchemaVersion: 7, ItemCount: 12},
	}
	for _, m := range cases {
		got, err := DecodeMeta(mustEncodeMeta(t, m))
		if err != nil {
			t.Fatalf("DecodeMeta error: %v", err)
		}
		if got != m {
			t.Fatalf("meta mismatch: got=%+v want=%+v", got, m)
		}
	}
}

func TestMetaKeyLengthValidation(t *testing.T) {
	if _, err := EncodeMeta(Meta{StorageKey: ""}); err == nil {
		t.Fatalf("expected error on empty key")
	}
	if _, err := EncodeMeta(Meta{StorageKey: strings.Repeat("a", 0x10000)}); err == nil {
		t.Fatalf("expected error on key length > 0xFFFF")
	}
	if _, err := EncodeMeta(Meta{StorageKey: strings.Repeat("b", 0xFFFF)}); err != nil {
		t.Fatalf("boundary key length should succeed: %v", err)
	}
	if _, err := EncodeMeta(Meta{StorageKey: "k", SchemaVersion: -1}); err == nil {
		t.Fatalf("expected error on negative schema version")
	}
}

func TestMetaCorruptAndTrailing(t *testing.T) {
	enc := mustEncodeMeta(t, Meta{StorageKey: "k", Owner: "o", Timestamp: 1, SchemaVersion: 1, ItemCount: 1})

	trailing := append(append([]byte(nil), enc...), 0xBE, 0xEF)
	if _, err := DecodeMeta(trailing); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}

	badKind := append([]byte(nil), enc...)
	badKind[5] = kindSnapshot
	if _, err := DecodeMeta(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// keyLen is at offset 22 (4+1+1+8+4+4); announce more than available
	badKlen := append([]byte(nil), enc...)
	binary.BigEndian.PutUint16(badKlen[22:24], uint16(50))
	if _, err := DecodeMeta(badKlen); err == nil {
		t.Fatalf("expected error on klen beyond buffer")
	}

	if _, err := DecodeMeta(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated owner")
	}

	// a snapshot frame is never a valid meta frame
	snap := mustEncodeSnapshot(t, 1, []byte("x"))
	if _, err := DecodeMeta(snap); err == nil {
		t.Fatalf("expected error decoding snapshot frame as meta")
	}
}
