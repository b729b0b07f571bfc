package octet

// Reader is a read cursor over a borrowed Buffer. It must not outlive the
// buffer, and it never synchronizes with a Writer over the same buffer.
type Reader struct {
	buf    *Buffer
	offset int
}

func NewReader(b *Buffer, offset int) Reader {
	return Reader{buf: b, offset: offset}
}

func (r *Reader) Offset() int    { return r.offset }
func (r *Reader) Remaining() int { return r.buf.remaining(r.offset) }
func (r *Reader) HasData() bool  { return r.Remaining() > 0 }

// Skip advances past n bytes, clamped to what remains.
func (r *Reader) Skip(n int) {
	if left := r.Remaining(); n > left {
		n = left
	}
	r.offset += n
}

// ReadNumber decodes a T at the cursor and advances past it.
func ReadNumber[T Integer](r *Reader) T {
	v := GetNumber[T](r.buf, r.offset)
	r.offset += width[T]()
	return v
}

// ReadBuffer decodes an L-prefixed range at the cursor; see GetBuffer.
func ReadBuffer[L Length](r *Reader, maxLength int) []byte {
	data, n := GetBuffer[L](r.buf, r.offset, maxLength)
	r.offset += n
	return data
}

func (r *Reader) Uint8() uint8   { return ReadNumber[uint8](r) }
func (r *Reader) Uint16() uint16 { return ReadNumber[uint16](r) }
func (r *Reader) Uint32() uint32 { return ReadNumber[uint32](r) }
func (r *Reader) Uint64() uint64 { return ReadNumber[uint64](r) }
func (r *Reader) Int8() int8     { return ReadNumber[int8](r) }
func (r *Reader) Int16() int16   { return ReadNumber[int16](r) }
func (r *Reader) Int32() int32   { return ReadNumber[int32](r) }
func (r *Reader) Int64() int64   { return ReadNumber[int64](r) }

func (r *Reader) Boolean() bool {
	v := GetBoolean(r.buf, r.offset)
	r.offset++
	return v
}

func (r *Reader) Text() string {
	s, n := GetText(r.buf, r.offset)
	r.offset += n
	return s
}

func (r *Reader) NullTerminatedText() string {
	s, n := GetNullTerminatedText(r.buf, r.offset)
	r.offset += n
	return s
}

// Bytes reads a 2-byte length-prefixed range, copying at most maxLength bytes.
func (r *Reader) Bytes(maxLength int) []byte {
	return ReadBuffer[uint16](r, maxLength)
}

// Raw copies the next n bytes without a length prefix, clamped to what remains.
func (r *Reader) Raw(n int) []byte {
	if left := r.Remaining(); n > left {
		n = left
	}
	out := make([]byte, n)
	if n > 0 {
		copy(out, r.buf.view(r.offset, n))
	}
	r.offset += n
	return out
}

// Writer is a write cursor over a borrowed Buffer.
type Writer struct {
	buf    *Buffer
	offset int
}

func NewWriter(b *Buffer, offset int) Writer {
	return Writer{buf: b, offset: offset}
}

func (w *Writer) Offset() int { return w.offset }

// WriteNumber encodes v at the cursor and advances past it.
func WriteNumber[T Integer](w *Writer, v T) {
	w.offset += SetNumber(w.buf, w.offset, v)
}

// WriteBuffer encodes an L-prefixed range at the cursor.
func WriteBuffer[L Length](w *Writer, data []byte) {
	w.offset += SetBuffer[L](w.buf, w.offset, data)
}

func (w *Writer) PutUint8(v uint8)   { WriteNumber(w, v) }
func (w *Writer) PutUint16(v uint16) { WriteNumber(w, v) }
func (w *Writer) PutUint32(v uint32) { WriteNumber(w, v) }
func (w *Writer) PutUint64(v uint64) { WriteNumber(w, v) }
func (w *Writer) PutInt8(v int8)     { WriteNumber(w, v) }
func (w *Writer) PutInt16(v int16)   { WriteNumber(w, v) }
func (w *Writer) PutInt32(v int32)   { WriteNumber(w, v) }
func (w *Writer) PutInt64(v int64)   { WriteNumber(w, v) }

func (w *Writer) PutBoolean(v bool) {
	w.offset += SetBoolean(w.buf, w.offset, v)
}

func (w *Writer) PutText(s string) {
	w.offset += SetText(w.buf, w.offset, s)
}

func (w *Writer) PutNullTerminatedText(s string) {
	w.offset += SetNullTerminatedText(w.buf, w.offset, s)
}

// PutBytes writes data with a 2-byte length prefix.
func (w *Writer) PutBytes(data []byte) {
	WriteBuffer[uint16](w, data)
}

// PutRaw writes data with no prefix.
func (w *Writer) PutRaw(data []byte) {
	copy(w.buf.extend(w.offset, len(data)), data)
	w.offset += len(data)
}
