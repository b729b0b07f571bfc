// Package exchangetest provides scripted Outbound/Inbound/Callback doubles.
package exchangetest

import (
	"sync"
	"sync/atomic"

	"github.com/danmuck/edgelink/internal/exchange"
)

// Message is an Outbound that emits Data in chunks of at most Chunk bytes.
type Message struct {
	Data    []byte
	Chunk   int
	offset  int
	reloads atomic.Int32
	pulled  atomic.Int64
}

func NewMessage(data string, chunk int) *Message {
	return &Message{Data: []byte(data), Chunk: chunk}
}

func (m *Message) Serialize(buf []byte) int {
	if m.Chunk > 0 && len(buf) > m.Chunk {
		buf = buf[:m.Chunk]
	}
	n := copy(buf, m.Data[m.offset:])
	m.offset += n
	m.pulled.Add(int64(n))
	return n
}

func (m *Message) Reload() {
	m.offset = 0
	m.reloads.Add(1)
}

func (m *Message) Reloads() int { return int(m.reloads.Load()) }

// Pulled is the total bytes handed out across every attempt.
func (m *Message) Pulled() int { return int(m.pulled.Load()) }

// Reply is an Inbound that completes after Want bytes. With ResendAfter > 0 the
// first attempt is abandoned once that many bytes arrived.
type Reply struct {
	Want        int
	ResendAfter int
	got         []byte
	resent      bool
	state       exchange.Completion
}

func NewReply(want int) *Reply {
	return &Reply{Want: want}
}

func (r *Reply) Deserialize(buf []byte) int {
	need := r.Want - len(r.got)
	if need > len(buf) {
		need = len(buf)
	}
	r.got = append(r.got, buf[:need]...)
	switch {
	case r.ResendAfter > 0 && !r.resent && len(r.got) >= r.ResendAfter:
		r.got = nil
		r.resent = true
		r.state = exchange.Resend
	case len(r.got) == r.Want:
		r.state = exchange.Completed
	default:
		r.state = exchange.InProgress
	}
	return need
}

func (r *Reply) IsCompleted() exchange.Completion { return r.state }

func (r *Reply) Bytes() []byte { return append([]byte(nil), r.got...) }

// Outcome is one recorded callback invocation.
type Outcome struct {
	Out exchange.Outbound
	Err error
}

// Recorder is a Callback that keeps every invocation.
type Recorder struct {
	mu    sync.Mutex
	calls []Outcome
	fired chan Outcome
}

func NewRecorder() *Recorder {
	return &Recorder{fired: make(chan Outcome, 64)}
}

func (r *Recorder) Updated(out exchange.Outbound, err error) {
	r.mu.Lock()
	r.calls = append(r.calls, Outcome{Out: out, Err: err})
	r.mu.Unlock()
	r.fired <- Outcome{Out: out, Err: err}
}

func (r *Recorder) Calls() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.calls...)
}

// Fired delivers each invocation as it happens.
func (r *Recorder) Fired() <-chan Outcome { return r.fired }
