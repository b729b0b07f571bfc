package tlv

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/edgelink/internal/testutil/testlog"
)

func TestEncodeDecodeFieldsRoundTripPreservesUnknown(t *testing.T) {
	testlog.Start(t)
	in := []Field{
		String(1, "intent-1"),
		{ID: 9999, Type: TypeBytes, Value: []byte{0xAA, 0xBB}}, // unknown field id
	}
	b := EncodeFields(in)
	out, err := DecodeFields(b)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(out))
	}
	if out[1].ID != 9999 || out[1].Type != TypeBytes || !bytes.Equal(out[1].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[1])
	}
}

func TestEncodeFieldWireLayout(t *testing.T) {
	testlog.Start(t)
	got := EncodeField(U16(0x0102, 0xBEEF))
	want := []byte{0x01, 0x02, TypeU16, 0, 0, 0, 2, 0xBE, 0xEF}
	if !bytes.Equal(got, want) {
		t.Fatalf("wire mismatch got=% x want=% x", got, want)
	}
}

func TestTypedAccessors(t *testing.T) {
	testlog.Start(t)
	fields, err := DecodeFields(EncodeFields([]Field{
		U8(1, 7),
		U32(2, 0xDEADBEEF),
		U64(3, 1<<40),
		Bool(4, true),
		String(5, "edge"),
		Bytes(6, []byte{1, 2}),
	}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	f, _ := GetField(fields, 1)
	if v, err := f.AsU8(); err != nil || v != 7 {
		t.Fatalf("u8 got=%d err=%v", v, err)
	}
	f, _ = GetField(fields, 2)
	if v, err := f.AsU32(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("u32 got=%x err=%v", v, err)
	}
	f, _ = GetField(fields, 3)
	if v, err := f.AsU64(); err != nil || v != 1<<40 {
		t.Fatalf("u64 got=%d err=%v", v, err)
	}
	f, _ = GetField(fields, 4)
	if v, err := f.AsBool(); err != nil || !v {
		t.Fatalf("bool got=%v err=%v", v, err)
	}
	f, _ = GetField(fields, 5)
	if v, err := f.AsString(); err != nil || v != "edge" {
		t.Fatalf("string got=%q err=%v", v, err)
	}
	f, _ = GetField(fields, 6)
	if v, err := f.AsBytes(); err != nil || !bytes.Equal(v, []byte{1, 2}) {
		t.Fatalf("bytes got=%v err=%v", v, err)
	}
	if _, ok := GetField(fields, 42); ok {
		t.Fatalf("unexpected field 42")
	}
}

func TestAccessorRejectsWrongTypeAndLength(t *testing.T) {
	testlog.Start(t)
	if _, err := String(1, "x").AsU32(); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
	bad := Field{ID: 2, Type: TypeU32, Value: []byte{1, 2}}
	if _, err := bad.AsU32(); err == nil {
		t.Fatalf("expected length error")
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	testlog.Start(t)
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	testlog.Start(t)
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}
