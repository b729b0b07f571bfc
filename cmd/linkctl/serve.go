package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danmuck/edgelink/internal/config"
	"github.com/danmuck/edgelink/internal/logging"
	"github.com/danmuck/edgelink/internal/protocol/frame"
)

// runServe answers every ping frame on every accepted connection until ctx ends.
func runServe(ctx context.Context, cfg config.LinkConfig) error {
	log := logging.For("linkctl.serve")
	ln, err := net.Listen("tcp", cfg.Transport.Listen)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	log.Info().Str("addr", ln.Addr().String()).Msg("linkctl serve listening")

	limits := cfg.Frame.Limits()
	var g errgroup.Group
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			serveConn(ctx, conn, limits)
			return nil
		})
	}
	return g.Wait()
}

func serveConn(ctx context.Context, conn net.Conn, limits frame.Limits) {
	log := logging.For("linkctl.serve").With().Str("peer", conn.RemoteAddr().String()).Logger()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	r := bufio.NewReader(conn)
	served := 0
	for {
		req, err := frame.ReadFrame(r, limits)
		if err != nil {
			if !errors.Is(err, frame.ErrShortHeader) && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn().Err(err).Msg("linkctl serve read failed")
			}
			log.Info().Int("served", served).Msg("linkctl serve connection closed")
			return
		}
		if err := frame.WriteFrame(conn, echo(req, time.Now()), limits); err != nil {
			log.Warn().Err(err).Msg("linkctl serve write failed")
			return
		}
		served++
	}
}
