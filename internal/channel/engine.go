package channel

import (
	"errors"
	"reflect"
	"slices"
	"sync"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/danmuck/edgelink/internal/exchange"
	"github.com/danmuck/edgelink/internal/logging"
	"github.com/danmuck/edgelink/internal/observability"
)

var ErrInvalidExchange = errors.New("channel: invalid exchange")

const (
	kindBlocking = "blocking"
	kindAsync    = "async"
)

// Engine queues exchanges over one Transport and correlates each request
// with at most one reply.
type Engine struct {
	name      string
	transport Transport
	clock     clock.Clock
	log       zerolog.Logger

	mu     sync.Mutex
	signal *sync.Cond
	queue  []*exchange.Pending

	// waiting counts goroutines inside a blocking exchange. generation moves
	// on every close so waiters can tell a teardown happened while parked.
	waiting    atomix.Uint32
	generation atomix.Uint32
}

// settled is a resolved fire-and-forget entry whose callback runs after the
// lock is released.
type settled struct {
	p   *exchange.Pending
	cb  exchange.Callback
	err error
}

// New binds an Engine to t. Transports implementing Attacher receive the
// Engine as their Pump.
func New(t Transport, cfg Config) *Engine {
	cfg = cfg.normalized()
	e := &Engine{
		name:      cfg.Name,
		transport: t,
		clock:     cfg.Clock,
		log:       logging.For("channel").With().Str("channel", cfg.Name).Logger(),
	}
	e.signal = sync.NewCond(&e.mu)
	if a, ok := t.(Attacher); ok {
		a.Attach(e)
	}
	return e
}

func (e *Engine) Name() string { return e.name }

func (e *Engine) Open(timeout time.Duration) error  { return e.transport.Open(timeout) }
func (e *Engine) Close(timeout time.Duration) error { return e.transport.Close(timeout) }
func (e *Engine) IsOpen() bool                      { return e.transport.IsOpen() }

// Exchange sends out and blocks until it is fully transmitted, timeout
// elapses, or the channel closes.
func (e *Engine) Exchange(timeout time.Duration, out exchange.Outbound) error {
	return e.exchange(timeout, out, nil)
}

// ExchangeReply sends out and blocks until in has fully deserialized the
// correlated reply, timeout elapses, or the channel closes.
func (e *Engine) ExchangeReply(timeout time.Duration, out exchange.Outbound, in exchange.Inbound) error {
	if in == nil {
		return ErrInvalidExchange
	}
	return e.exchange(timeout, out, in)
}

func (e *Engine) exchange(timeout time.Duration, out exchange.Outbound, in exchange.Inbound) error {
	if out == nil {
		return ErrInvalidExchange
	}
	e.Cleanup()

	start := e.clock.Now()
	deadline := start.Add(timeout)
	p := exchange.NewPending(out, in, nil, time.Time{}, start)

	// The open check shares the lock with teardown's sweep, so an entry is
	// either queued before the sweep or refused after it.
	e.mu.Lock()
	if !e.transport.IsOpen() {
		e.mu.Unlock()
		observability.RecordExchange(e.name, kindBlocking, exchange.Outcome(exchange.ErrUnavailable), 0)
		return exchange.ErrUnavailable
	}
	gen := e.generation.Load()
	e.waiting.Add(1)
	head := e.push(p)
	e.mu.Unlock()
	if head {
		e.transport.Trigger()
	}

	e.mu.Lock()
	err := e.await(p, deadline, gen)
	trigger := e.remove(p)
	e.waiting.Add(^uint32(0))
	e.mu.Unlock()
	if trigger {
		e.transport.Trigger()
	}

	e.log.Debug().
		Str("exchange", p.ID().String()).
		Str("outcome", exchange.Outcome(err)).
		Int("resends", p.Resends()).
		Msg("channel.Engine.Exchange resolved")
	observability.RecordExchange(e.name, kindBlocking, exchange.Outcome(err), e.clock.Now().Sub(start))
	return err
}

// await parks on the shared signal until p completes, the channel goes away,
// or deadline passes. Every wake recomputes the remaining budget and
// rechecks p itself. Completion is checked first so it wins a tie with the
// deadline. Caller holds e.mu.
func (e *Engine) await(p *exchange.Pending, deadline time.Time, gen uint32) error {
	for {
		if p.IsComplete() {
			return nil
		}
		if e.generation.Load() != gen || !e.transport.IsOpen() {
			return exchange.ErrAborted
		}
		remaining := deadline.Sub(e.clock.Now())
		if remaining <= 0 {
			return exchange.ErrTimedOut
		}
		timer := e.clock.AfterFunc(remaining, e.wake)
		e.signal.Wait()
		timer.Stop()
	}
}

func (e *Engine) wake() {
	e.mu.Lock()
	e.signal.Broadcast()
	e.mu.Unlock()
}

// Send queues a fire-and-forget exchange that expires after timeout. Its
// outcome reaches cb exactly once: nil, ErrTimedOut or ErrAborted. in may be
// nil when no reply is expected. ErrUnavailable is returned, and cb is not
// called, when the transport is closed.
func (e *Engine) Send(timeout time.Duration, out exchange.Outbound, cb exchange.Callback, in exchange.Inbound) error {
	if out == nil {
		return ErrInvalidExchange
	}
	e.Cleanup()
	now := e.clock.Now()
	p := exchange.NewPending(out, in, cb, now.Add(timeout), now)

	e.mu.Lock()
	if !e.transport.IsOpen() {
		e.mu.Unlock()
		observability.RecordExchange(e.name, kindAsync, exchange.Outcome(exchange.ErrUnavailable), 0)
		return exchange.ErrUnavailable
	}
	head := e.push(p)
	e.mu.Unlock()
	if head {
		e.transport.Trigger()
	}
	return nil
}

// Revoke drops the fire-and-forget entry sending out. An entry that had not
// completed reports ErrAborted. Unknown or already resolved entries are
// ignored, as is an out whose dynamic type is not comparable.
func (e *Engine) Revoke(out exchange.Outbound) {
	if out == nil || !reflect.TypeOf(out).Comparable() {
		e.log.Warn().Type("outbound", out).Msg("channel.Engine.Revoke outbound has no identity")
		return
	}
	e.Cleanup()

	e.mu.Lock()
	idx := slices.IndexFunc(e.queue, func(p *exchange.Pending) bool {
		return p.FireAndForget() && p.Outbound() == out
	})
	if idx < 0 {
		e.mu.Unlock()
		return
	}
	p := e.queue[idx]
	e.queue = slices.Delete(e.queue, idx, idx+1)
	trigger := idx == 0 && len(e.queue) > 0
	var done []settled
	if !p.IsComplete() {
		done = append(done, e.settle(p, exchange.ErrAborted))
	}
	e.depth()
	e.signal.Broadcast()
	e.mu.Unlock()

	e.log.Debug().Str("exchange", p.ID().String()).Int("position", idx).Msg("channel.Engine.Revoke")
	e.fire(done)
	if trigger {
		e.transport.Trigger()
	}
}

// SendData fills buf from the queue front. A front that finishes sending is
// popped when nothing waits on it, and the next entry continues in the same
// call.
func (e *Engine) SendData(buf []byte) int {
	e.Cleanup()

	var done []settled
	written := 0
	e.mu.Lock()
	for len(e.queue) > 0 {
		head := e.queue[0]
		if head.State() != exchange.StateIdle {
			break
		}
		if written = head.Serialize(buf); written > 0 {
			break
		}
		e.signal.Broadcast()
		if !head.CanBeRemoved() {
			break
		}
		e.queue = slices.Delete(e.queue, 0, 1)
		done = append(done, e.settle(head, nil))
	}
	e.depth()
	e.mu.Unlock()

	e.fire(done)
	observability.RecordTransportBytes(e.name, "tx", written)
	return written
}

// ReceiveData feeds buf to the front's Inbound. Bytes are only accepted while
// the front is waiting on its reply; otherwise 0 is returned and the
// transport keeps them.
func (e *Engine) ReceiveData(buf []byte) int {
	e.Cleanup()

	e.mu.Lock()
	if len(e.queue) == 0 || e.queue[0].State() != exchange.StateInbound {
		e.mu.Unlock()
		return 0
	}
	head := e.queue[0]
	consumed := head.Deserialize(buf)

	var done []settled
	trigger, resend := false, false
	switch head.State() {
	case exchange.StateComplete:
		if head.CanBeRemoved() {
			e.queue = slices.Delete(e.queue, 0, 1)
			done = append(done, e.settle(head, nil))
			trigger = len(e.queue) > 0
		}
	case exchange.StateIdle:
		trigger, resend = true, true
	}
	e.depth()
	e.signal.Broadcast()
	e.mu.Unlock()

	e.fire(done)
	if resend {
		e.log.Debug().Str("exchange", head.ID().String()).Int("resends", head.Resends()).Msg("channel.Engine.ReceiveData resend")
		observability.RecordResend(e.name)
	}
	if trigger {
		e.transport.Trigger()
	}
	observability.RecordTransportBytes(e.name, "rx", consumed)
	return consumed
}

// StateChange re-evaluates every waiter. On close it waits until no waiter
// is inspecting the queue, then aborts whatever is left.
func (e *Engine) StateChange() {
	open := e.transport.IsOpen()

	e.mu.Lock()
	if !open {
		e.generation.Add(1)
	}
	e.signal.Broadcast()
	e.mu.Unlock()

	if open {
		e.log.Debug().Msg("channel.Engine.StateChange open")
		return
	}

	// Waiters observe the generation bump on their next check, drop their own
	// entry, and leave; the queue is only touched once all have left.
	var bo iox.Backoff
	for e.waiting.Load() != 0 {
		bo.Wait()
	}

	e.mu.Lock()
	left := e.queue
	e.queue = nil
	done := make([]settled, 0, len(left))
	for _, p := range left {
		if !p.IsComplete() {
			done = append(done, e.settle(p, exchange.ErrAborted))
		}
	}
	e.depth()
	e.mu.Unlock()

	e.log.Info().Int("aborted", len(done)).Msg("channel.Engine.StateChange closed")
	e.fire(done)
}

// Cleanup evicts the contiguous run of expired fire-and-forget entries at
// the front of the queue, reporting ErrTimedOut for each. Blocking entries
// stop the run; their waiters enforce their own deadline.
func (e *Engine) Cleanup() {
	now := e.clock.Now()

	e.mu.Lock()
	n := 0
	for n < len(e.queue) && e.queue[n].IsExpired(now) {
		n++
	}
	if n == 0 {
		e.mu.Unlock()
		return
	}
	done := make([]settled, 0, n)
	for _, p := range e.queue[:n] {
		done = append(done, e.settle(p, exchange.ErrTimedOut))
	}
	e.queue = slices.Delete(e.queue, 0, n)
	trigger := len(e.queue) > 0
	e.depth()
	e.signal.Broadcast()
	e.mu.Unlock()

	e.log.Debug().Int("expired", n).Msg("channel.Engine.Cleanup")
	e.fire(done)
	if trigger {
		e.transport.Trigger()
	}
}

// Entry is a point-in-time view of one queued exchange.
type Entry struct {
	ID            uuid.UUID
	State         exchange.State
	Transmitting  bool
	FireAndForget bool
}

// Snapshot returns the queue in order.
func (e *Engine) Snapshot() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Entry, 0, len(e.queue))
	for _, p := range e.queue {
		out = append(out, Entry{
			ID:            p.ID(),
			State:         p.State(),
			Transmitting:  p.Transmitting(),
			FireAndForget: p.FireAndForget(),
		})
	}
	return out
}

func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// push appends p and reports whether it became the front. Caller holds e.mu.
func (e *Engine) push(p *exchange.Pending) bool {
	e.queue = append(e.queue, p)
	e.depth()
	e.log.Debug().
		Str("exchange", p.ID().String()).
		Bool("async", p.FireAndForget()).
		Int("depth", len(e.queue)).
		Msg("channel.Engine.enqueue")
	return len(e.queue) == 1
}

// remove drops p wherever it sits and reports whether the transport needs a
// nudge for a new front. Caller holds e.mu.
func (e *Engine) remove(p *exchange.Pending) bool {
	idx := slices.Index(e.queue, p)
	if idx < 0 {
		return false
	}
	e.queue = slices.Delete(e.queue, idx, idx+1)
	e.depth()
	e.signal.Broadcast()
	return idx == 0 && len(e.queue) > 0
}

// settle claims p's callback. Caller holds e.mu.
func (e *Engine) settle(p *exchange.Pending, err error) settled {
	return settled{p: p, cb: p.TakeCallback(), err: err}
}

func (e *Engine) fire(done []settled) {
	now := e.clock.Now()
	for _, s := range done {
		outcome := exchange.Outcome(s.err)
		e.log.Debug().Str("exchange", s.p.ID().String()).Str("outcome", outcome).Msg("channel.Engine settled")
		observability.RecordExchange(e.name, kindAsync, outcome, now.Sub(s.p.Created()))
		if s.cb != nil {
			s.cb.Updated(s.p.Outbound(), s.err)
		}
	}
}

func (e *Engine) depth() {
	observability.SetQueueDepth(e.name, len(e.queue))
}
