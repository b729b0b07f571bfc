package frame

import (
	"fmt"

	"github.com/danmuck/edgelink/internal/exchange"
	"github.com/danmuck/edgelink/internal/protocol/octet"
)

// Request streams one encoded frame to the channel engine in whatever chunk
// sizes the transport offers.
type Request struct {
	header Header
	wire   []byte
	sent   int
}

func NewRequest(f Frame, limits Limits) (*Request, error) {
	wire, err := Encode(f, limits)
	if err != nil {
		return nil, err
	}
	h, _ := DecodeHeader(wire[:FixedHeaderLen])
	return &Request{header: h, wire: wire}, nil
}

func (r *Request) Header() Header    { return r.header }
func (r *Request) MessageID() uint64 { return r.header.MessageID }
func (r *Request) Len() int          { return len(r.wire) }

func (r *Request) Serialize(buf []byte) int {
	n := copy(buf, r.wire[r.sent:])
	r.sent += n
	return n
}

// Reload rewinds to the first header byte.
func (r *Request) Reload() { r.sent = 0 }

// Reply assembles the frame answering one request from arbitrary chunks.
//
// Message IDs are expected to increase along a link. A frame with an older
// MessageID is a late answer to an exchange that already gave up: it is
// drained and skipped, and parsing continues with the next frame. A frame
// with a newer MessageID is drained and completes the exchange with
// ErrCorrelation. A frame carrying FlagResend resets the Reply and reports
// exchange.Resend. A header that fails validation completes the exchange at
// once, since its lengths cannot be trusted; Err reports why.
type Reply struct {
	id     uint64
	limits Limits

	buf     *octet.Buffer
	header  Header
	total   int
	state   exchange.Completion
	err     error
	frame   Frame
	skipped int
}

func NewReply(messageID uint64, limits Limits) *Reply {
	return &Reply{
		id:     messageID,
		limits: limits,
		buf:    octet.NewBuffer(int(FixedHeaderLen) * 2),
		state:  exchange.InProgress,
	}
}

// For builds the Reply correlated with req.
func For(req *Request, limits Limits) *Reply {
	return NewReply(req.MessageID(), limits)
}

func (r *Reply) IsCompleted() exchange.Completion { return r.state }

// Frame is the assembled reply once IsCompleted reports Completed with a nil Err.
func (r *Reply) Frame() Frame { return r.frame }
func (r *Reply) Err() error   { return r.err }

// Skipped counts stale frames drained while waiting for the correlated one.
func (r *Reply) Skipped() int { return r.skipped }

func (r *Reply) Deserialize(data []byte) int {
	if r.state == exchange.Resend {
		r.state = exchange.InProgress
	}
	consumed := 0
	for consumed < len(data) && r.state == exchange.InProgress {
		want := int(FixedHeaderLen)
		if r.total > 0 {
			want = r.total
		}
		n := min(want-r.buf.Size(), len(data)-consumed)
		w := octet.NewWriter(r.buf, r.buf.Size())
		w.PutRaw(data[consumed : consumed+n])
		consumed += n

		if r.buf.Size() < want {
			continue
		}
		if r.total == 0 {
			r.parseHeader()
			continue
		}
		r.finish()
	}
	return consumed
}

func (r *Reply) parseHeader() {
	h, _ := DecodeHeader(r.buf.Bytes()[:FixedHeaderLen])
	authLen, err := r.limits.check(h)
	if err != nil {
		r.fail(err)
		return
	}
	r.header = h
	r.total = int(FixedHeaderLen) + int(authLen) + int(h.PayloadLen)
	if r.total == int(FixedHeaderLen) {
		r.finish()
	}
}

func (r *Reply) finish() {
	h := r.header
	switch {
	case h.MessageID < r.id:
		r.skipped++
		r.reset()
	case h.MessageID > r.id:
		r.fail(fmt.Errorf("%w: got message %d want %d", ErrCorrelation, h.MessageID, r.id))
	case h.Flags&FlagResend != 0:
		r.reset()
		r.state = exchange.Resend
	default:
		rd := octet.NewReader(r.buf, int(FixedHeaderLen))
		auth := rd.Raw(int(h.HeaderLen - FixedHeaderLen))
		payload := rd.Raw(int(h.PayloadLen))
		r.frame = Frame{Header: h, Auth: auth, Payload: payload}
		r.state = exchange.Completed
	}
}

func (r *Reply) fail(err error) {
	r.err = err
	r.state = exchange.Completed
}

func (r *Reply) reset() {
	r.buf.Reset()
	r.header = Header{}
	r.total = 0
	r.err = nil
	r.frame = Frame{}
}
