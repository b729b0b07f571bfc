package exchange_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/danmuck/edgelink/internal/exchange"
	"github.com/danmuck/edgelink/internal/testutil/exchangetest"
	"github.com/danmuck/edgelink/internal/testutil/testlog"
)

func drain(p *exchange.Pending, chunk int) []byte {
	var out []byte
	buf := make([]byte, chunk)
	for {
		n := p.Serialize(buf)
		if n == 0 {
			return out
		}
		out = append(out, buf[:n]...)
	}
}

func TestPendingOutboundOnlyCompletesAfterDrain(t *testing.T) {
	testlog.Start(t)
	msg := exchangetest.NewMessage("request-bytes", 0)
	p := exchange.NewPending(msg, nil, nil, time.Time{}, time.Now())
	if msg.Reloads() != 1 {
		t.Fatalf("expected reload before first attempt, got %d", msg.Reloads())
	}
	if p.Transmitting() {
		t.Fatalf("fresh entry must not be transmitting")
	}
	got := drain(p, 3)
	if string(got) != "request-bytes" {
		t.Fatalf("unexpected bytes %q", got)
	}
	if p.State() != exchange.StateComplete {
		t.Fatalf("expected complete, got %s", p.State())
	}
	if p.CanBeRemoved() {
		t.Fatalf("blocking entry must not be removable by the engine")
	}
}

func TestPendingWithInboundWaitsForReply(t *testing.T) {
	testlog.Start(t)
	reply := exchangetest.NewReply(4)
	p := exchange.NewPending(exchangetest.NewMessage("req", 0), reply, nil, time.Now().Add(time.Second), time.Now())
	drain(p, 8)
	if p.State() != exchange.StateInbound || !p.Transmitting() {
		t.Fatalf("expected inbound+transmitting, got %s", p.State())
	}
	if n := p.Deserialize([]byte("ab")); n != 2 || p.State() != exchange.StateInbound {
		t.Fatalf("partial reply: n=%d state=%s", n, p.State())
	}
	if n := p.Deserialize([]byte("cdEXTRA")); n != 2 {
		t.Fatalf("expected 2 consumed, got %d", n)
	}
	if !p.IsComplete() || !p.CanBeRemoved() {
		t.Fatalf("expected removable complete entry, got %s", p.State())
	}
	if string(reply.Bytes()) != "abcd" {
		t.Fatalf("unexpected reply bytes %q", reply.Bytes())
	}
}

func TestPendingResendRewindsOutbound(t *testing.T) {
	testlog.Start(t)
	msg := exchangetest.NewMessage("hello", 2)
	reply := exchangetest.NewReply(4)
	reply.ResendAfter = 2
	p := exchange.NewPending(msg, reply, nil, time.Time{}, time.Now())
	drain(p, 16)
	p.Deserialize([]byte("xx"))
	if p.State() != exchange.StateIdle {
		t.Fatalf("expected idle after resend, got %s", p.State())
	}
	if msg.Reloads() != 2 || p.Resends() != 1 {
		t.Fatalf("reloads=%d resends=%d", msg.Reloads(), p.Resends())
	}
	if p.Transmitting() {
		t.Fatalf("rewound entry must not report transmitting before new bytes")
	}
	if got := drain(p, 16); string(got) != "hello" {
		t.Fatalf("retransmission must restart from byte 0, got %q", got)
	}
	p.Deserialize([]byte("okok"))
	if !p.IsComplete() {
		t.Fatalf("expected complete after second attempt")
	}
}

func TestPendingDeserializeIgnoredOutsideInbound(t *testing.T) {
	testlog.Start(t)
	p := exchange.NewPending(exchangetest.NewMessage("a", 0), exchangetest.NewReply(1), nil, time.Time{}, time.Now())
	if n := p.Deserialize([]byte("z")); n != 0 || p.State() != exchange.StateIdle {
		t.Fatalf("idle entry consumed reply bytes: n=%d state=%s", n, p.State())
	}
}

func TestPendingExpiry(t *testing.T) {
	testlog.Start(t)
	now := time.Unix(1700000000, 0)
	blocking := exchange.NewPending(exchangetest.NewMessage("a", 0), nil, nil, time.Time{}, now)
	if blocking.IsExpired(now.Add(time.Hour)) {
		t.Fatalf("entry without expiry must never expire")
	}
	async := exchange.NewPending(exchangetest.NewMessage("a", 0), nil, nil, now.Add(time.Second), now)
	if async.IsExpired(now.Add(999 * time.Millisecond)) {
		t.Fatalf("expired early")
	}
	if !async.IsExpired(now.Add(time.Second)) {
		t.Fatalf("expected expiry at deadline")
	}
}

func TestPendingCallbackTakenOnce(t *testing.T) {
	testlog.Start(t)
	calls := 0
	cb := exchange.CallbackFunc(func(exchange.Outbound, error) { calls++ })
	p := exchange.NewPending(exchangetest.NewMessage("a", 0), nil, cb, time.Now(), time.Now())
	if first := p.TakeCallback(); first == nil {
		t.Fatalf("expected callback")
	} else {
		first.Updated(p.Outbound(), nil)
	}
	if p.TakeCallback() != nil {
		t.Fatalf("callback handed out twice")
	}
	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestOutcomeLabels(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{exchange.ErrTimedOut, "timedout"},
		{fmt.Errorf("wrap: %w", exchange.ErrAborted), "async_aborted"},
		{exchange.ErrUnavailable, "unavailable"},
		{errors.New("other"), "error"},
	}
	for _, tc := range cases {
		if got := exchange.Outcome(tc.err); got != tc.want {
			t.Fatalf("Outcome(%v)=%q want %q", tc.err, got, tc.want)
		}
	}
}
