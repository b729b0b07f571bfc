// Package octet owns the byte store and positional codec every message is built
// from and parsed with.
//
// Ownership boundary:
// - growable and fixed byte buffers
// - typed offset access in canonical (big-endian) wire order
// - Reader/Writer cursors over a borrowed buffer
package octet

import "fmt"

// DefaultBlockSize is the growth increment used by NewBuffer when blockSize <= 0.
const DefaultBlockSize = 64

// Buffer is a contiguous byte region with a logical size.
// A growable buffer reallocates in blockSize increments; a fixed buffer wraps
// caller memory and never grows.
type Buffer struct {
	data  []byte
	size  int
	block int
}

// NewBuffer creates an empty growable buffer.
func NewBuffer(blockSize int) *Buffer {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Buffer{block: blockSize}
}

// Fixed wraps dst as an empty fixed buffer; writes land in dst directly.
func Fixed(dst []byte) *Buffer {
	return &Buffer{data: dst[:len(dst):len(dst)]}
}

// Wrap wraps src as a fixed buffer whose logical size is len(src).
func Wrap(src []byte) *Buffer {
	return &Buffer{data: src[:len(src):len(src)], size: len(src)}
}

func (b *Buffer) Size() int      { return b.size }
func (b *Buffer) Capacity() int  { return len(b.data) }
func (b *Buffer) Growable() bool { return b.block > 0 }

// Bytes returns the logical contents. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.size]
}

// Reset drops the logical contents and keeps the capacity.
func (b *Buffer) Reset() {
	b.size = 0
}

// Truncate shrinks the logical size to n.
func (b *Buffer) Truncate(n int) {
	if n < 0 || n > b.size {
		panic(fmt.Sprintf("octet: truncate %d outside size %d", n, b.size))
	}
	b.size = n
}

// Allocate ensures the capacity is at least required. A growable buffer moves
// to the next block multiple and keeps every existing byte; a fixed buffer
// panics because writing past caller memory is a programming error.
func (b *Buffer) Allocate(required int) {
	if required <= len(b.data) {
		return
	}
	if b.block == 0 {
		panic(fmt.Sprintf("octet: fixed buffer capacity %d, %d required", len(b.data), required))
	}
	grown := make([]byte, ((required+b.block-1)/b.block)*b.block)
	copy(grown, b.data[:b.size])
	b.data = grown
}

// extend makes [offset, end) writable and moves the logical size to cover it.
func (b *Buffer) extend(offset, n int) []byte {
	if offset < 0 || n < 0 {
		panic(fmt.Sprintf("octet: invalid write offset=%d len=%d", offset, n))
	}
	end := offset + n
	b.Allocate(end)
	if end > b.size {
		b.size = end
	}
	return b.data[offset:end]
}

// view returns [offset, offset+n) or panics when it is not inside the logical size.
func (b *Buffer) view(offset, n int) []byte {
	if offset < 0 || n < 0 || offset+n > b.size {
		panic(fmt.Sprintf("octet: read offset=%d len=%d outside size %d", offset, n, b.size))
	}
	return b.data[offset : offset+n]
}

// remaining returns the readable bytes from offset, or 0 when offset is out of range.
func (b *Buffer) remaining(offset int) int {
	if offset < 0 || offset >= b.size {
		return 0
	}
	return b.size - offset
}
