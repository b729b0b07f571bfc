package exchange

import (
	"time"

	"github.com/google/uuid"
)

// State is the position of a Pending in its send/receive cycle.
type State uint8

const (
	StateIdle State = iota
	StateInbound
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInbound:
		return "inbound"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Pending correlates one Outbound with its optional Inbound, Callback and
// expiry. Transitions happen only on the pump goroutine; the engine lock
// guards every access.
type Pending struct {
	id      uuid.UUID
	out     Outbound
	in      Inbound
	cb      Callback
	expiry  time.Time
	created time.Time
	state   State
	started bool
	resends int
}

// NewPending builds an Idle entry and reloads out for its first attempt. A
// zero expiry marks a blocking exchange whose waiter owns its removal.
func NewPending(out Outbound, in Inbound, cb Callback, expiry, now time.Time) *Pending {
	out.Reload()
	return &Pending{
		id:      uuid.New(),
		out:     out,
		in:      in,
		cb:      cb,
		expiry:  expiry,
		created: now,
		state:   StateIdle,
	}
}

func (p *Pending) ID() uuid.UUID       { return p.id }
func (p *Pending) Outbound() Outbound  { return p.out }
func (p *Pending) State() State        { return p.state }
func (p *Pending) Created() time.Time  { return p.created }
func (p *Pending) Expiry() time.Time   { return p.expiry }
func (p *Pending) Resends() int        { return p.resends }
func (p *Pending) HasInbound() bool    { return p.in != nil }
func (p *Pending) IsComplete() bool    { return p.state == StateComplete }
func (p *Pending) FireAndForget() bool { return !p.expiry.IsZero() }

// Transmitting reports whether the entry owns the wire: bytes of it have been
// pulled in the current attempt, or it is waiting on its reply.
func (p *Pending) Transmitting() bool {
	return (p.state == StateIdle && p.started) || p.state == StateInbound
}

// IsExpired reports whether an expiry is set and has elapsed at now.
func (p *Pending) IsExpired(now time.Time) bool {
	return !p.expiry.IsZero() && !now.Before(p.expiry)
}

// CanBeRemoved reports a completed fire-and-forget entry. Blocking entries
// are removed by their waiter, never by the engine.
func (p *Pending) CanBeRemoved() bool {
	return p.state == StateComplete && p.FireAndForget()
}

// Serialize pulls the next request bytes into buf. When the Outbound reports
// it is drained the entry moves to Inbound, or Complete if no reply is
// expected, and 0 is returned.
func (p *Pending) Serialize(buf []byte) int {
	if p.state != StateIdle {
		return 0
	}
	if n := p.out.Serialize(buf); n > 0 {
		p.started = true
		return n
	}
	if p.in == nil {
		p.state = StateComplete
	} else {
		p.state = StateInbound
	}
	return 0
}

// Deserialize feeds reply bytes to the Inbound and applies its verdict.
// Resend rewinds the Outbound and puts the entry back to Idle.
func (p *Pending) Deserialize(buf []byte) int {
	if p.state != StateInbound {
		return 0
	}
	n := p.in.Deserialize(buf)
	switch p.in.IsCompleted() {
	case Completed:
		p.state = StateComplete
	case Resend:
		p.out.Reload()
		p.started = false
		p.resends++
		p.state = StateIdle
	}
	return n
}

// TakeCallback hands out the callback once; later calls return nil.
func (p *Pending) TakeCallback() Callback {
	cb := p.cb
	p.cb = nil
	return cb
}
