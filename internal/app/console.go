// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/rpy_stream/internal/config"
	"github.com/relabs-tech/rpy_stream/internal/imu"
	"github.com/relabs-tech/rpy_stream/internal/orientation"
	"github.com/relabs-tech/rpy_stream/internal/sensors"
	"github.com/relabs-tech/rpy_stream/internal/sink"
	"github.com/relabs-tech/rpy_stream/internal/stream"
)

// Pipeline runs every estimator side by side on one in-process channel,
// without the network hop.
type Pipeline struct {
	ch        *stream.Conflated[imu.Sample]
	consumers []*Consumer
	cursors   []*stream.Cursor[imu.Sample]
}

// NewPipeline builds one consumer per estimator kind. out returns the
// sink for a given estimator name.
func NewPipeline(opts orientation.Options, out func(name string) sink.Sink) (*Pipeline, error) {
	p := &Pipeline{ch: stream.New[imu.Sample]()}
	for _, kind := range orientation.Kinds {
		est, err := orientation.New(kind, opts)
		if err != nil {
			return nil, err
		}
		p.consumers = append(p.consumers, NewConsumer(est, out(kind)))
		p.cursors = append(p.cursors, p.ch.Subscribe())
	}
	return p, nil
}

// Consumers returns the pipeline's consumers in orientation.Kinds order.
func (p *Pipeline) Consumers() []*Consumer { return p.consumers }

// Run produces from src until it is exhausted or ctx is cancelled, then
// lets every consumer drain the last sample.
func (p *Pipeline) Run(ctx context.Context, src imu.Source) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range p.consumers {
		g.Go(func() error { return c.RunSamples(gctx, p.cursors[i]) })
	}
	g.Go(func() error {
		defer p.ch.Close()
		return Produce(gctx, src, p.ch)
	})
	return g.Wait()
}

// RunConsole prints the three estimators' output for the configured
// source, one line per estimator per console interval.
func RunConsole(ctx context.Context, cfg *config.Config, w io.Writer) error {
	src, err := sensors.Open(cfg)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	if c, ok := src.(sensors.Closer); ok {
		defer c.Close()
	}

	interval := time.Duration(cfg.ConsoleLogInterval) * time.Millisecond
	p, err := NewPipeline(orientation.Options{Beta: cfg.MadgwickBeta}, func(name string) sink.Sink {
		return sink.NewConsole(w, name, interval)
	})
	if err != nil {
		return err
	}

	log.Printf("console: running %v on source %s", orientation.Kinds, cfg.Source)
	return p.Run(ctx, src)
}
