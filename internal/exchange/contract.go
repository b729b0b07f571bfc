// Package exchange owns the request/reply correlation contracts and the
// per-request state machine driven by the channel engine.
//
// Ownership boundary:
// - Outbound/Inbound/Callback capability contracts
// - completion error taxonomy
// - Pending state transitions (Idle -> Inbound -> Complete)
package exchange

import "errors"

var (
	ErrTimedOut    = errors.New("exchange: timed out")
	ErrAborted     = errors.New("exchange: aborted")
	ErrUnavailable = errors.New("exchange: channel unavailable")
)

// Outbound produces the bytes of one request. Revoke matches entries by
// interface equality, so revocable implementations should be pointers or
// comparable values.
type Outbound interface {
	// Serialize fills buf and returns the bytes written. Returning 0 means the
	// message is fully sent.
	Serialize(buf []byte) int
	// Reload rewinds serialization. It runs before the first attempt and again
	// before every retransmission.
	Reload()
}

// Completion is the parse state reported by an Inbound.
type Completion uint8

const (
	InProgress Completion = iota
	// Resend asks for the outbound to be retransmitted. An Inbound returning
	// Resend must already have discarded its own partial parse state.
	Resend
	Completed
)

func (c Completion) String() string {
	switch c {
	case InProgress:
		return "in_progress"
	case Resend:
		return "resend"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Inbound consumes the bytes of one reply.
type Inbound interface {
	Deserialize(buf []byte) int
	IsCompleted() Completion
}

// Callback receives the single outcome of a fire-and-forget exchange: nil,
// ErrTimedOut or ErrAborted.
type Callback interface {
	Updated(out Outbound, err error)
}

// CallbackFunc adapts a plain function to Callback.
type CallbackFunc func(out Outbound, err error)

func (f CallbackFunc) Updated(out Outbound, err error) {
	f(out, err)
}

// Outcome maps a completion error to its metrics/log label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrTimedOut):
		return "timedout"
	case errors.Is(err, ErrAborted):
		return "async_aborted"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
