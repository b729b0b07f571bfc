// Package tlv encodes frame payloads as id/type/length/value fields.
package tlv

import (
	"errors"
	"fmt"

	"github.com/danmuck/edgelink/internal/protocol/octet"
)

const HeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrTypeMismatch     = errors.New("tlv: field type mismatch")
)

// Type IDs on the wire.
const (
	TypeU8     uint8 = 1
	TypeU16    uint8 = 2
	TypeU32    uint8 = 3
	TypeU64    uint8 = 4
	TypeBool   uint8 = 5
	TypeString uint8 = 6
	TypeBytes  uint8 = 7
)

// Field is one decoded TLV field. Value holds the big-endian encoding of
// numeric types.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func scalar[T octet.Integer](id uint16, typ uint8, v T) Field {
	b := octet.NewBuffer(8)
	octet.SetNumber(b, 0, v)
	return Field{ID: id, Type: typ, Value: b.Bytes()}
}

func U8(id uint16, v uint8) Field   { return scalar(id, TypeU8, v) }
func U16(id uint16, v uint16) Field { return scalar(id, TypeU16, v) }
func U32(id uint16, v uint32) Field { return scalar(id, TypeU32, v) }
func U64(id uint16, v uint64) Field { return scalar(id, TypeU64, v) }

func Bool(id uint16, v bool) Field {
	var b uint8
	if v {
		b = 1
	}
	return scalar(id, TypeBool, b)
}

func String(id uint16, v string) Field {
	return Field{ID: id, Type: TypeString, Value: []byte(v)}
}

func Bytes(id uint16, v []byte) Field {
	return Field{ID: id, Type: TypeBytes, Value: append([]byte(nil), v...)}
}

func number[T octet.Integer](f Field, typ uint8) (T, error) {
	var zero T
	if err := MustType(f, typ); err != nil {
		return zero, err
	}
	if want := len(scalar(0, typ, zero).Value); len(f.Value) != want {
		return zero, fmt.Errorf("tlv: field %d invalid length: got %d want %d", f.ID, len(f.Value), want)
	}
	return octet.GetNumber[T](octet.Wrap(f.Value), 0), nil
}

func (f Field) AsU8() (uint8, error)   { return number[uint8](f, TypeU8) }
func (f Field) AsU16() (uint16, error) { return number[uint16](f, TypeU16) }
func (f Field) AsU32() (uint32, error) { return number[uint32](f, TypeU32) }
func (f Field) AsU64() (uint64, error) { return number[uint64](f, TypeU64) }

func (f Field) AsBool() (bool, error) {
	v, err := number[uint8](f, TypeBool)
	return v != 0, err
}

func (f Field) AsString() (string, error) {
	if err := MustType(f, TypeString); err != nil {
		return "", err
	}
	return string(f.Value), nil
}

func (f Field) AsBytes() ([]byte, error) {
	if err := MustType(f, TypeBytes); err != nil {
		return nil, err
	}
	return f.Value, nil
}

// Append writes f at w.
func Append(w *octet.Writer, f Field) {
	w.PutUint16(f.ID)
	w.PutUint8(f.Type)
	w.PutUint32(uint32(len(f.Value)))
	w.PutRaw(f.Value)
}

func EncodeField(f Field) []byte {
	return EncodeFields([]Field{f})
}

func EncodeFields(fields []Field) []byte {
	size := 0
	for _, f := range fields {
		size += HeaderLen + len(f.Value)
	}
	buf := octet.Fixed(make([]byte, size))
	w := octet.NewWriter(buf, 0)
	for _, f := range fields {
		Append(&w, f)
	}
	return buf.Bytes()
}

// DecodeFields parses every field in payload. Unknown ids and types are kept.
func DecodeFields(payload []byte) ([]Field, error) {
	fields := make([]Field, 0)
	r := octet.NewReader(octet.Wrap(payload), 0)
	for r.HasData() {
		if r.Remaining() < HeaderLen {
			return nil, ErrShortFieldHeader
		}
		id := r.Uint16()
		typeID := r.Uint8()
		l := r.Uint32()
		if uint64(r.Remaining()) < uint64(l) {
			return nil, ErrShortFieldValue
		}
		fields = append(fields, Field{ID: id, Type: typeID, Value: r.Raw(int(l))})
	}
	return fields, nil
}

func GetField(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

func MustType(f Field, expected uint8) error {
	if f.Type != expected {
		return fmt.Errorf("%w: field %d got %d want %d", ErrTypeMismatch, f.ID, f.Type, expected)
	}
	return nil
}
