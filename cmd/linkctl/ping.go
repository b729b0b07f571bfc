package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/edgelink/internal/channel"
	"github.com/danmuck/edgelink/internal/config"
	"github.com/danmuck/edgelink/internal/exchange"
	"github.com/danmuck/edgelink/internal/logging"
	"github.com/danmuck/edgelink/internal/protocol/frame"
	"github.com/danmuck/edgelink/internal/transport"
)

// runPing opens an engine to cfg.Transport.Address and issues the configured
// blocking and fire-and-forget pings.
func runPing(ctx context.Context, cfg config.LinkConfig) error {
	log := logging.For("linkctl.ping")
	stream, err := transport.NewStream(
		transport.TCP(cfg.Transport.Address, cfg.Transport.Stream.ConnectTimeout),
		cfg.Transport.Stream,
	)
	if err != nil {
		return err
	}
	eng := channel.New(stream, channel.Config{Name: cfg.Channel.Name})
	if err := eng.Open(cfg.Channel.ExchangeTimeout); err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(time.Second); err != nil {
			log.Warn().Err(err).Msg("linkctl ping close")
		}
	}()

	p := pinger{eng: eng, cfg: cfg, limits: cfg.Frame.Limits(), log: log}
	failed := 0
	for i := 0; i < cfg.Ping.Count && ctx.Err() == nil; i++ {
		if err := p.blocking(); err != nil {
			failed++
		}
	}
	failed += p.async(ctx, cfg.Ping.Async)

	log.Info().
		Int("sent", cfg.Ping.Count+cfg.Ping.Async).
		Int("failed", failed).
		Msg("linkctl ping done")
	if failed > 0 {
		return errors.New("some pings failed")
	}
	return nil
}

type pinger struct {
	eng    *channel.Engine
	cfg    config.LinkConfig
	limits frame.Limits
	log    zerolog.Logger
	seq    uint64
}

func (p *pinger) next() (*frame.Request, *frame.Reply, error) {
	p.seq++
	req, err := newPing(p.seq, p.cfg.Ping.Payload, p.limits)
	if err != nil {
		return nil, nil, err
	}
	return req, frame.For(req, p.limits), nil
}

func (p *pinger) blocking() error {
	req, reply, err := p.next()
	if err != nil {
		return err
	}
	start := time.Now()
	if err := p.eng.ExchangeReply(p.cfg.Channel.ExchangeTimeout, req, reply); err != nil {
		p.log.Warn().Err(err).Uint64("seq", req.MessageID()).Msg("linkctl ping exchange failed")
		return err
	}
	return p.report(req, reply, time.Since(start))
}

func (p *pinger) report(req *frame.Request, reply *frame.Reply, rtt time.Duration) error {
	if err := reply.Err(); err != nil {
		p.log.Warn().Err(err).Uint64("seq", req.MessageID()).Msg("linkctl ping bad reply")
		return err
	}
	pg, err := parsePong(reply.Frame())
	if err != nil {
		p.log.Warn().Err(err).Uint64("seq", req.MessageID()).Msg("linkctl ping bad payload")
		return err
	}
	p.log.Info().
		Uint64("seq", pg.seq).
		Str("payload", pg.payload).
		Dur("rtt", rtt).
		Dur("to_peer", pg.servedAt.Sub(pg.sentAt)).
		Msg("linkctl pong")
	return nil
}

// async queues n fire-and-forget pings and returns how many failed.
func (p *pinger) async(ctx context.Context, n int) int {
	if n == 0 {
		return 0
	}
	type result struct {
		out exchange.Outbound
		err error
	}
	results := make(chan result, n)
	cb := exchange.CallbackFunc(func(out exchange.Outbound, err error) {
		results <- result{out: out, err: err}
	})

	replies := make(map[exchange.Outbound]*frame.Reply, n)
	started := time.Now()
	failed := 0
	for i := 0; i < n; i++ {
		req, reply, err := p.next()
		if err == nil {
			err = p.eng.Send(p.cfg.Channel.ExchangeTimeout, req, cb, reply)
		}
		if err != nil {
			p.log.Warn().Err(err).Msg("linkctl ping send failed")
			failed++
			continue
		}
		replies[req] = reply
	}

	for pending := len(replies); pending > 0; pending-- {
		select {
		case <-ctx.Done():
			for out := range replies {
				p.eng.Revoke(out)
			}
			return failed + pending
		case r := <-results:
			req := r.out.(*frame.Request)
			if r.err != nil {
				p.log.Warn().Err(r.err).Str("outcome", exchange.Outcome(r.err)).Uint64("seq", req.MessageID()).Msg("linkctl async ping failed")
				failed++
				continue
			}
			if err := p.report(req, replies[req], time.Since(started)); err != nil {
				failed++
			}
		}
	}
	return failed
}
