package frame

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/edgelink/internal/protocol/octet"
)

const (
	Magic          uint32 = 0xEDC11A4B
	Version        uint16 = 1
	FixedHeaderLen uint16 = 32
	FlagHasAuth    uint32 = 0x01
	FlagIsResponse uint32 = 0x02
	FlagIsError    uint32 = 0x04
	// FlagResend asks the requester to transmit the same request again.
	FlagResend uint32 = 0x08
)

var (
	ErrShortHeader       = errors.New("frame: short fixed header")
	ErrHeaderLenTooSmall = errors.New("frame: header_len smaller than fixed header")
	ErrHeaderLenMismatch = errors.New("frame: auth present but header_len has no auth bytes")
	ErrPayloadTooLarge   = errors.New("frame: payload too large")
	ErrAuthTooLarge      = errors.New("frame: auth too large")
	ErrBadMagic          = errors.New("frame: bad magic")
	ErrCorrelation       = errors.New("frame: reply does not match request")
)

// Header is the fixed wire header.
type Header struct {
	Magic       uint32
	Version     uint16
	HeaderLen   uint16
	MessageID   uint64
	MessageType uint32
	Flags       uint32
	PayloadLen  uint64
}

// Frame is one complete wire message.
type Frame struct {
	Header  Header
	Auth    []byte
	Payload []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxAuthBytes    uint64
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{
		MaxAuthBytes:    64 * 1024,
		MaxPayloadBytes: 8 * 1024 * 1024,
	}
}

// check validates a decoded header against limits and returns the auth length.
func (l Limits) check(h Header) (uint64, error) {
	if h.Magic != Magic {
		return 0, fmt.Errorf("%w: 0x%08x", ErrBadMagic, h.Magic)
	}
	if h.HeaderLen < FixedHeaderLen {
		return 0, ErrHeaderLenTooSmall
	}
	authLen := uint64(h.HeaderLen - FixedHeaderLen)
	if h.Flags&FlagHasAuth != 0 && authLen == 0 {
		return 0, ErrHeaderLenMismatch
	}
	if authLen > l.MaxAuthBytes {
		return 0, ErrAuthTooLarge
	}
	if h.PayloadLen > l.MaxPayloadBytes {
		return 0, ErrPayloadTooLarge
	}
	return authLen, nil
}

func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	authLen, err := limits.check(h)
	if err != nil {
		return Frame{}, err
	}

	auth := make([]byte, authLen)
	if authLen > 0 {
		if _, err := io.ReadFull(r, auth); err != nil {
			return Frame{}, err
		}
	}
	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Header: h, Auth: auth, Payload: payload}, nil
}

func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	b, err := Encode(f, limits)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Encode renders f as wire bytes. Magic, version and both length fields are
// filled in; FlagHasAuth follows the auth block.
func Encode(f Frame, limits Limits) ([]byte, error) {
	authLen := uint64(len(f.Auth))
	payloadLen := uint64(len(f.Payload))
	if authLen > limits.MaxAuthBytes || authLen > uint64(^uint16(0)-FixedHeaderLen) {
		return nil, ErrAuthTooLarge
	}
	if payloadLen > limits.MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}

	h := f.Header
	h.Magic = Magic
	if h.Version == 0 {
		h.Version = Version
	}
	h.HeaderLen = FixedHeaderLen + uint16(authLen)
	h.PayloadLen = payloadLen
	if authLen > 0 {
		h.Flags |= FlagHasAuth
	} else {
		h.Flags &^= FlagHasAuth
	}

	buf := octet.Fixed(make([]byte, int(h.HeaderLen)+len(f.Payload)))
	w := octet.NewWriter(buf, 0)
	putHeader(&w, h)
	w.PutRaw(f.Auth)
	w.PutRaw(f.Payload)
	return buf.Bytes(), nil
}

func EncodeHeader(h Header) []byte {
	buf := octet.Fixed(make([]byte, FixedHeaderLen))
	w := octet.NewWriter(buf, 0)
	putHeader(&w, h)
	return buf.Bytes()
}

func putHeader(w *octet.Writer, h Header) {
	w.PutUint32(h.Magic)
	w.PutUint16(h.Version)
	w.PutUint16(h.HeaderLen)
	w.PutUint64(h.MessageID)
	w.PutUint32(h.MessageType)
	w.PutUint32(h.Flags)
	w.PutUint64(h.PayloadLen)
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != int(FixedHeaderLen) {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	r := octet.NewReader(octet.Wrap(b), 0)
	return Header{
		Magic:       r.Uint32(),
		Version:     r.Uint16(),
		HeaderLen:   r.Uint16(),
		MessageID:   r.Uint64(),
		MessageType: r.Uint32(),
		Flags:       r.Uint32(),
		PayloadLen:  r.Uint64(),
	}, nil
}
