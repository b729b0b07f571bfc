package octet

import (
	"bytes"
	"math"
	"testing"

	"github.com/danmuck/edgelink/internal/testutil/testlog"
)

func flavors(capacity int) map[string]func() *Buffer {
	return map[string]func() *Buffer{
		"growable": func() *Buffer { return NewBuffer(8) },
		"fixed":    func() *Buffer { return Fixed(make([]byte, capacity)) },
	}
}

func roundTrip[T Integer](t *testing.T, b *Buffer, offset int, v T) {
	t.Helper()
	n := SetNumber(b, offset, v)
	if n != width[T]() {
		t.Fatalf("set %T wrote %d bytes", v, n)
	}
	if got := GetNumber[T](b, offset); got != v {
		t.Fatalf("round trip %T at %d: got=%v want=%v", v, offset, got, v)
	}
}

func TestNumberRoundTripAllWidthsBothFlavors(t *testing.T) {
	testlog.Start(t)
	for name, mk := range flavors(64) {
		t.Run(name, func(t *testing.T) {
			for _, offset := range []int{0, 3, 17} {
				b := mk()
				roundTrip(t, b, offset, uint8(0xAB))
				roundTrip(t, b, offset, int8(math.MinInt8))
				roundTrip(t, b, offset, uint16(0xBEEF))
				roundTrip(t, b, offset, int16(-2))
				roundTrip(t, b, offset, uint32(0xDEADBEEF))
				roundTrip(t, b, offset, int32(math.MinInt32))
				roundTrip(t, b, offset, uint64(math.MaxUint64))
				roundTrip(t, b, offset, int64(-1234567890123))
			}
		})
	}
}

func TestNumberWireOrderIsBigEndian(t *testing.T) {
	testlog.Start(t)
	b := NewBuffer(0)
	SetNumber(b, 0, uint32(0x01020304))
	if !bytes.Equal(b.Bytes(), []byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected wire bytes: % x", b.Bytes())
	}
	SetNumber(b, 4, int16(-2))
	if !bytes.Equal(b.Bytes()[4:], []byte{0xFF, 0xFE}) {
		t.Fatalf("unexpected signed wire bytes: % x", b.Bytes()[4:])
	}
}

func TestAllocateGrowthPreservesPrefix(t *testing.T) {
	testlog.Start(t)
	b := NewBuffer(4)
	if !b.Growable() {
		t.Fatalf("NewBuffer should be growable")
	}
	for i := 0; i < 10; i++ {
		SetNumber(b, i, uint8(i+1))
	}
	before := append([]byte(nil), b.Bytes()...)
	b.Allocate(1000)
	if b.Capacity() != 1000 {
		t.Fatalf("expected block-aligned capacity 1000, got %d", b.Capacity())
	}
	if !bytes.Equal(b.Bytes(), before) {
		t.Fatalf("prefix changed across growth: % x != % x", b.Bytes(), before)
	}
	SetNumber(b, 1001, uint16(7))
	if b.Capacity() != 1004 {
		t.Fatalf("expected capacity 1004, got %d", b.Capacity())
	}
	if !bytes.Equal(b.Bytes()[:10], before) {
		t.Fatalf("prefix changed after write growth")
	}
}

func TestFixedBufferNeverGrows(t *testing.T) {
	testlog.Start(t)
	mem := make([]byte, 4)
	b := Fixed(mem)
	if b.Growable() || Wrap(mem).Growable() {
		t.Fatalf("fixed buffers must not report growable")
	}
	SetNumber(b, 0, uint32(0xCAFEBABE))
	if !bytes.Equal(mem, []byte{0xCA, 0xFE, 0xBA, 0xBE}) {
		t.Fatalf("fixed buffer did not write through caller memory: % x", mem)
	}
	mustPanic(t, func() { SetNumber(b, 1, uint32(1)) })
	mustPanic(t, func() { b.Allocate(5) })
}

func TestGetNumberPastSizePanics(t *testing.T) {
	testlog.Start(t)
	b := Wrap([]byte{1, 2, 3})
	mustPanic(t, func() { GetNumber[uint32](b, 0) })
	mustPanic(t, func() { GetNumber[uint16](b, 2) })
	if got := GetNumber[uint16](b, 1); got != 0x0203 {
		t.Fatalf("unexpected value %#x", got)
	}
}

func TestGetBufferTruncatesDeclaredOverrun(t *testing.T) {
	testlog.Start(t)
	// declared length 10, only 3 bytes follow
	b := Wrap([]byte{0, 10, 'a', 'b', 'c'})
	data, consumed := GetBuffer[uint16](b, 0, 64)
	if string(data) != "abc" {
		t.Fatalf("unexpected data %q", data)
	}
	if consumed != 5 {
		t.Fatalf("unexpected consumed %d", consumed)
	}
}

func TestGetBufferMaxLengthKeepsCursorAligned(t *testing.T) {
	testlog.Start(t)
	b := NewBuffer(0)
	w := NewWriter(b, 0)
	w.PutBytes([]byte("hello"))
	w.PutUint8(9)

	r := NewReader(b, 0)
	if got := r.Bytes(2); string(got) != "he" {
		t.Fatalf("unexpected clipped bytes %q", got)
	}
	if got := r.Uint8(); got != 9 {
		t.Fatalf("cursor misaligned, got %d", got)
	}
	if r.HasData() {
		t.Fatalf("expected no remaining data")
	}
}

func TestBufferLengthWidths(t *testing.T) {
	testlog.Start(t)
	b := NewBuffer(0)
	n := SetBuffer[uint8](b, 0, []byte{1, 2})
	n += SetBuffer[uint32](b, n, []byte{3})
	if n != 1+2+4+1 {
		t.Fatalf("unexpected total %d", n)
	}
	first, c1 := GetBuffer[uint8](b, 0, -1)
	second, c2 := GetBuffer[uint32](b, c1, -1)
	if !bytes.Equal(first, []byte{1, 2}) || !bytes.Equal(second, []byte{3}) || c1+c2 != n {
		t.Fatalf("unexpected decode first=%v second=%v consumed=%d", first, second, c1+c2)
	}
	mustPanic(t, func() { SetBuffer[uint8](b, 0, make([]byte, 256)) })
}

func TestTextVariants(t *testing.T) {
	testlog.Start(t)
	b := NewBuffer(0)
	w := NewWriter(b, 0)
	w.PutText("plugin")
	w.PutNullTerminatedText("line one")
	w.PutBoolean(true)
	w.PutNullTerminatedText("tail")

	r := NewReader(b, 0)
	if got := r.Text(); got != "plugin" {
		t.Fatalf("text got %q", got)
	}
	if got := r.NullTerminatedText(); got != "line one" {
		t.Fatalf("nul text got %q", got)
	}
	if !r.Boolean() {
		t.Fatalf("expected true")
	}
	if got := r.NullTerminatedText(); got != "tail" {
		t.Fatalf("nul tail got %q", got)
	}
	if r.Offset() != b.Size() {
		t.Fatalf("reader offset %d != size %d", r.Offset(), b.Size())
	}
}

func TestNullTerminatedTextWithoutTerminator(t *testing.T) {
	testlog.Start(t)
	b := Wrap([]byte("abc"))
	s, n := GetNullTerminatedText(b, 0)
	if s != "abc" || n != 3 {
		t.Fatalf("got %q/%d", s, n)
	}
}

func TestZeroLengthBufferYieldsEmptyReads(t *testing.T) {
	testlog.Start(t)
	b := Wrap(nil)
	if data, n := GetBuffer[uint16](b, 0, 10); len(data) != 0 || n != 0 {
		t.Fatalf("expected empty read, got %v/%d", data, n)
	}
	if s, n := GetText(b, 0); s != "" || n != 0 {
		t.Fatalf("expected empty text, got %q/%d", s, n)
	}
	if s, n := GetNullTerminatedText(b, 0); s != "" || n != 0 {
		t.Fatalf("expected empty nul text, got %q/%d", s, n)
	}
	r := NewReader(b, 0)
	if r.HasData() || len(r.Raw(4)) != 0 {
		t.Fatalf("expected empty reader")
	}
}

func TestReaderAndWriterAreIndependent(t *testing.T) {
	testlog.Start(t)
	b := NewBuffer(0)
	w := NewWriter(b, 0)
	r := NewReader(b, 0)
	w.PutUint16(1)
	if got := r.Uint16(); got != 1 {
		t.Fatalf("got %d", got)
	}
	w.PutUint16(2)
	if r.Offset() != 2 || w.Offset() != 4 {
		t.Fatalf("cursor offsets coupled: r=%d w=%d", r.Offset(), w.Offset())
	}
	if got := r.Uint16(); got != 2 {
		t.Fatalf("got %d", got)
	}
}

func mustPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	fn()
}
