// Package transport drives a channel.Engine over a byte stream.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/edgelink/internal/channel"
	"github.com/danmuck/edgelink/internal/logging"
)

var (
	ErrNotAttached  = errors.New("transport: no pump attached")
	ErrDial         = errors.New("transport: dial failed")
	ErrCloseTimeout = errors.New("transport: close timed out")

	// ErrInboundOverflow drops a link whose peer sent more unclaimed bytes
	// than Config.MaxInbound.
	ErrInboundOverflow = errors.New("transport: inbound backlog overflow")
)

// Dialer produces the connection a Stream runs over.
type Dialer interface {
	Dial(ctx context.Context) (io.ReadWriteCloser, error)
}

type DialerFunc func(ctx context.Context) (io.ReadWriteCloser, error)

func (f DialerFunc) Dial(ctx context.Context) (io.ReadWriteCloser, error) { return f(ctx) }

// TCP dials address with the given per-attempt timeout.
func TCP(address string, timeout time.Duration) Dialer {
	return DialerFunc(func(ctx context.Context) (io.ReadWriteCloser, error) {
		d := net.Dialer{Timeout: timeout}
		return d.DialContext(ctx, "tcp", address)
	})
}

// Conn hands out an already established connection once.
func Conn(c io.ReadWriteCloser) Dialer {
	var used atomic.Bool
	return DialerFunc(func(context.Context) (io.ReadWriteCloser, error) {
		if used.Swap(true) {
			return nil, net.ErrClosed
		}
		return c, nil
	})
}

// Stream implements channel.Transport over an io.ReadWriteCloser. One pump
// goroutine makes every Pump call. A reader goroutine appends inbound bytes
// to a bounded backlog and wakes the pump, so reads keep flowing while the
// pump is blocked in a write.
type Stream struct {
	cfg    Config
	dialer Dialer
	log    zerolog.Logger
	rng    *rand.Rand

	pump channel.Pump
	kick chan struct{}
	open atomic.Bool

	mu   sync.Mutex
	conn *link
}

// link is one dialed connection and the goroutines serving it.
type link struct {
	rwc      io.ReadWriteCloser
	stop     chan struct{}
	arrived  chan struct{}
	readDone chan error
	group    errgroup.Group

	mu      sync.Mutex
	backlog []byte
}

// push appends p to the backlog unless that would exceed limit.
func (l *link) push(p []byte, limit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.backlog)+len(p) > limit {
		return false
	}
	l.backlog = append(l.backlog, p...)
	return true
}

// offer hands the backlog to the pump and drops what it consumed. Only the
// pump goroutine calls it; the reader may append concurrently past the
// snapshot's length.
func (l *link) offer(p channel.Pump) int {
	l.mu.Lock()
	data := l.backlog
	l.mu.Unlock()
	if len(data) == 0 {
		return 0
	}
	n := p.ReceiveData(data)
	if n > 0 {
		l.mu.Lock()
		l.backlog = l.backlog[n:]
		if len(l.backlog) == 0 {
			l.backlog = nil
		}
		l.mu.Unlock()
	}
	return n
}

func NewStream(d Dialer, cfg Config) (*Stream, error) {
	if d == nil {
		return nil, fmt.Errorf("transport: dialer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Stream{
		cfg:    cfg,
		dialer: d,
		log:    logging.For("transport"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		kick:   make(chan struct{}, 1),
	}, nil
}

// Attach binds the Pump served by this Stream. channel.New calls it.
func (s *Stream) Attach(p channel.Pump) { s.pump = p }

func (s *Stream) IsOpen() bool { return s.open.Load() }

// Trigger wakes the pump goroutine without blocking.
func (s *Stream) Trigger() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Open dials, retrying with backoff until timeout elapses, then starts the
// pump. An already open Stream returns nil.
func (s *Stream) Open(timeout time.Duration) error {
	if s.pump == nil {
		return ErrNotAttached
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open.Load() {
		return nil
	}
	if s.conn != nil {
		// Peer went away earlier; collect its goroutines first.
		s.reap(s.conn, 0)
		s.conn = nil
	}

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	rwc, err := s.dial(ctx)
	if err != nil {
		return err
	}

	l := &link{
		rwc:      rwc,
		stop:     make(chan struct{}),
		arrived:  make(chan struct{}, 1),
		readDone: make(chan error, 1),
	}
	s.conn = l
	s.open.Store(true)
	l.group.Go(func() error { return s.readLoop(l) })
	l.group.Go(func() error { return s.pumpLoop(l) })
	s.log.Info().Msg("transport.Stream.Open connected")
	return nil
}

func (s *Stream) dial(ctx context.Context) (io.ReadWriteCloser, error) {
	attempt := 0
	for {
		attempt++
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if s.cfg.ConnectTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		}
		rwc, err := s.dialer.Dial(attemptCtx)
		cancel()
		if err == nil {
			return rwc, nil
		}
		s.log.Debug().Err(err).Int("attempt", attempt).Msg("transport.Stream.dial retry")
		if errors.Is(err, net.ErrClosed) {
			return nil, fmt.Errorf("%w: %v", ErrDial, err)
		}

		timer := time.NewTimer(s.cfg.Backoff.Delay(attempt, s.rng))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %v", ErrDial, err)
		case <-timer.C:
		}
	}
}

// Close stops the pump, closes the connection and waits up to timeout for
// both goroutines to exit. A non-positive timeout waits indefinitely.
func (s *Stream) Close(timeout time.Duration) error {
	s.mu.Lock()
	l := s.conn
	s.conn = nil
	s.mu.Unlock()
	if l == nil {
		return nil
	}
	return s.reap(l, timeout)
}

func (s *Stream) reap(l *link, timeout time.Duration) error {
	s.open.Store(false)
	close(l.stop)
	_ = l.rwc.Close()

	done := make(chan error, 1)
	go func() { done <- l.group.Wait() }()
	var wait <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		wait = timer.C
	}
	select {
	case err := <-done:
		if err != nil && !isClosedErr(err) {
			s.log.Warn().Err(err).Msg("transport.Stream.Close")
			return err
		}
		s.log.Info().Msg("transport.Stream.Close done")
		return nil
	case <-wait:
		return ErrCloseTimeout
	}
}

func (s *Stream) readLoop(l *link) error {
	buf := make([]byte, s.cfg.ReadBuffer)
	for {
		n, err := l.rwc.Read(buf)
		if n > 0 {
			if !l.push(buf[:n], s.cfg.MaxInbound) {
				l.readDone <- ErrInboundOverflow
				return nil
			}
			select {
			case l.arrived <- struct{}{}:
			default:
			}
		}
		if err != nil {
			l.readDone <- err
			return nil
		}
	}
}

func (s *Stream) pumpLoop(l *link) error {
	s.pump.StateChange()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	out := make([]byte, s.cfg.ChunkSize)
	var (
		ended   bool
		readErr error
	)
	for {
		if err := s.flush(l, out); err != nil {
			s.lost(l, err)
			return err
		}
		if l.offer(s.pump) > 0 {
			continue
		}
		// Bytes read before the reader stopped have been offered above.
		if ended {
			s.lost(l, readErr)
			return readErr
		}

		select {
		case <-l.stop:
			s.pump.StateChange()
			return nil
		case <-s.kick:
		case <-ticker.C:
		case <-l.arrived:
		case err := <-l.readDone:
			if errors.Is(err, io.EOF) {
				err = nil
			}
			ended, readErr = true, err
		}
	}
}

// flush writes everything the engine is willing to send right now.
func (s *Stream) flush(l *link, out []byte) error {
	for {
		n := s.pump.SendData(out)
		if n == 0 {
			return nil
		}
		if dc, ok := l.rwc.(interface{ SetWriteDeadline(time.Time) error }); ok && s.cfg.WriteTimeout > 0 {
			_ = dc.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		}
		if _, err := l.rwc.Write(out[:n]); err != nil {
			return err
		}
	}
}

// lost handles a connection that failed underneath the pump.
func (s *Stream) lost(l *link, err error) {
	select {
	case <-l.stop:
	default:
		if err != nil {
			s.log.Warn().Err(err).Msg("transport.Stream connection lost")
		} else {
			s.log.Info().Msg("transport.Stream peer closed")
		}
	}
	s.open.Store(false)
	_ = l.rwc.Close()
	s.pump.StateChange()
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF)
}
