// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/rpy_stream/internal/config"
	"github.com/relabs-tech/rpy_stream/internal/imu"
	"github.com/relabs-tech/rpy_stream/internal/sensors"
	"github.com/relabs-tech/rpy_stream/internal/stream"
	"github.com/relabs-tech/rpy_stream/internal/transport"
)

// maxSourceFailures is how many consecutive source errors the producer
// tolerates before giving up on the device.
const maxSourceFailures = 50

// Produce reads samples from src, remaps them into the body frame and
// publishes them on ch. It returns nil when src is exhausted or ctx is
// cancelled.
func Produce(ctx context.Context, src imu.Source, ch *stream.Conflated[imu.Sample]) error {
	var failures int
	for ctx.Err() == nil {
		s, err := src.Next()
		if errors.Is(err, io.EOF) {
			if ctx.Err() == nil {
				log.Println("producer: source exhausted")
			}
			return nil
		}
		if err != nil {
			failures++
			if failures >= maxSourceFailures {
				return fmt.Errorf("producer: %d consecutive source errors: %w", failures, err)
			}
			if failures == 1 || failures%10 == 0 {
				log.Printf("producer: %v", err)
			}
			continue
		}
		failures = 0
		ch.Publish(imu.Remap(s))
	}
	return nil
}

// RunProducer binds the streaming endpoint, opens the configured sample
// source and publishes until ctx is cancelled or the source ends. A bind
// failure is returned as *transport.BindError before any sample is read.
func RunProducer(ctx context.Context, cfg *config.Config) error {
	log.Printf("producer: starting (source=%s)", cfg.Source)

	ch := stream.New[imu.Sample]()
	pub, err := transport.NewPublisher(cfg.StreamListenAddr, cfg.StreamPath, ch)
	if err != nil {
		return err
	}
	log.Printf("producer: bound to %s, path %s", pub.Addr(), cfg.StreamPath)

	src, err := sensors.Open(cfg)
	if err != nil {
		pub.Close()
		return fmt.Errorf("open source: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// closing unblocks a source stuck in a device read
	if c, ok := src.(sensors.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer func() {
			if stop() {
				c.Close()
			}
		}()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pub.Serve(ctx) })
	g.Go(func() error {
		defer cancel()
		defer ch.Close()
		return Produce(ctx, src, ch)
	})
	return g.Wait()
}
