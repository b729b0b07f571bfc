package octet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unsafe"
)

// Integer is the closed set of fixed-width integers the codec carries.
type Integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Length is the set of length-prefix widths for SetBuffer/GetBuffer.
type Length interface {
	~uint8 | ~uint16 | ~uint32
}

// TextLength is the length prefix used by SetText and GetText.
type TextLength = uint16

func width[T Integer]() int {
	var v T
	return int(unsafe.Sizeof(v))
}

func put[T Integer](dst []byte, v T) {
	switch len(dst) {
	case 1:
		dst[0] = byte(v)
	case 2:
		binary.BigEndian.PutUint16(dst, uint16(v))
	case 4:
		binary.BigEndian.PutUint32(dst, uint32(v))
	case 8:
		binary.BigEndian.PutUint64(dst, uint64(v))
	}
}

func get[T Integer](src []byte) T {
	switch len(src) {
	case 1:
		return T(src[0])
	case 2:
		return T(binary.BigEndian.Uint16(src))
	case 4:
		return T(binary.BigEndian.Uint32(src))
	default:
		return T(binary.BigEndian.Uint64(src))
	}
}

// SetNumber writes v at offset in wire order and returns the bytes written.
func SetNumber[T Integer](b *Buffer, offset int, v T) int {
	n := width[T]()
	put(b.extend(offset, n), v)
	return n
}

// GetNumber reads a T at offset. Reading past the logical size panics.
func GetNumber[T Integer](b *Buffer, offset int) T {
	return get[T](b.view(offset, width[T]()))
}

func SetBoolean(b *Buffer, offset int, v bool) int {
	var raw uint8
	if v {
		raw = 1
	}
	return SetNumber(b, offset, raw)
}

func GetBoolean(b *Buffer, offset int) bool {
	return GetNumber[uint8](b, offset) != 0
}

// SetBuffer writes an L-wide length followed by data and returns the bytes written.
func SetBuffer[L Length](b *Buffer, offset int, data []byte) int {
	n := width[L]()
	if limit := uint64(1)<<(8*n) - 1; uint64(len(data)) > limit {
		panic(fmt.Sprintf("octet: %d bytes do not fit a %d-byte length", len(data), n))
	}
	put(b.extend(offset, n), L(len(data)))
	copy(b.extend(offset+n, len(data)), data)
	return n + len(data)
}

// GetBuffer reads an L-prefixed byte range at offset. At most maxLength bytes
// are copied out; a declared length running past the buffer is truncated to
// what is present. consumed covers the prefix plus every declared byte that
// exists, so a cursor stays aligned when maxLength clips the copy.
func GetBuffer[L Length](b *Buffer, offset int, maxLength int) (data []byte, consumed int) {
	n := width[L]()
	if b.remaining(offset) < n {
		return nil, 0
	}
	declared := uint64(get[L](b.view(offset, n)))
	present := uint64(b.remaining(offset + n))
	if declared > present {
		declared = present
	}
	copied := declared
	if maxLength >= 0 && copied > uint64(maxLength) {
		copied = uint64(maxLength)
	}
	data = make([]byte, copied)
	if copied > 0 {
		copy(data, b.view(offset+n, int(copied)))
	}
	return data, n + int(declared)
}

// SetText writes s with a 2-byte length prefix.
func SetText(b *Buffer, offset int, s string) int {
	return SetBuffer[TextLength](b, offset, []byte(s))
}

func GetText(b *Buffer, offset int) (string, int) {
	data, consumed := GetBuffer[TextLength](b, offset, -1)
	return string(data), consumed
}

// SetNullTerminatedText writes s followed by a single NUL.
func SetNullTerminatedText(b *Buffer, offset int, s string) int {
	dst := b.extend(offset, len(s)+1)
	copy(dst, s)
	dst[len(s)] = 0
	return len(s) + 1
}

// GetNullTerminatedText reads up to the next NUL or the end of the buffer.
// consumed includes the NUL when one was found.
func GetNullTerminatedText(b *Buffer, offset int) (string, int) {
	left := b.remaining(offset)
	if left == 0 {
		return "", 0
	}
	src := b.view(offset, left)
	if i := bytes.IndexByte(src, 0); i >= 0 {
		return string(src[:i]), i + 1
	}
	return string(src), left
}
