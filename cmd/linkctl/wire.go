package main

import (
	"time"

	"github.com/danmuck/edgelink/internal/protocol/frame"
	"github.com/danmuck/edgelink/internal/protocol/tlv"
)

const (
	msgPing uint32 = 1

	fieldSeq      uint16 = 1
	fieldPayload  uint16 = 2
	fieldSentAt   uint16 = 3
	fieldServedAt uint16 = 4
	fieldError    uint16 = 5
)

func newPing(seq uint64, payload string, limits frame.Limits) (*frame.Request, error) {
	return frame.NewRequest(frame.Frame{
		Header: frame.Header{MessageID: seq, MessageType: msgPing},
		Payload: tlv.EncodeFields([]tlv.Field{
			tlv.U64(fieldSeq, seq),
			tlv.String(fieldPayload, payload),
			tlv.U64(fieldSentAt, uint64(time.Now().UnixNano())),
		}),
	}, limits)
}

// echo answers a ping with its own fields plus the time it was served.
func echo(req frame.Frame, now time.Time) frame.Frame {
	h := frame.Header{
		MessageID:   req.Header.MessageID,
		MessageType: req.Header.MessageType,
		Flags:       frame.FlagIsResponse,
	}
	fields, err := tlv.DecodeFields(req.Payload)
	if err != nil {
		h.Flags |= frame.FlagIsError
		return frame.Frame{Header: h, Payload: tlv.EncodeFields([]tlv.Field{tlv.String(fieldError, err.Error())})}
	}
	fields = append(fields, tlv.U64(fieldServedAt, uint64(now.UnixNano())))
	return frame.Frame{Header: h, Payload: tlv.EncodeFields(fields)}
}

// pong is what a ping reply carries back.
type pong struct {
	seq      uint64
	payload  string
	sentAt   time.Time
	servedAt time.Time
}

func parsePong(f frame.Frame) (pong, error) {
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return pong{}, err
	}
	if f.Header.Flags&frame.FlagIsError != 0 {
		msg := "remote error"
		if field, ok := tlv.GetField(fields, fieldError); ok {
			msg, _ = field.AsString()
		}
		return pong{}, &remoteError{msg: msg}
	}
	var p pong
	for _, field := range fields {
		switch field.ID {
		case fieldSeq:
			p.seq, err = field.AsU64()
		case fieldPayload:
			p.payload, err = field.AsString()
		case fieldSentAt:
			var ns uint64
			ns, err = field.AsU64()
			p.sentAt = time.Unix(0, int64(ns))
		case fieldServedAt:
			var ns uint64
			ns, err = field.AsU64()
			p.servedAt = time.Unix(0, int64(ns))
		}
		if err != nil {
			return pong{}, err
		}
	}
	return p, nil
}

type remoteError struct{ msg string }

func (e *remoteError) Error() string { return "linkctl: peer error: " + e.msg }
