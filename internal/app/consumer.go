// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"github.com/relabs-tech/rpy_stream/internal/imu"
	"github.com/relabs-tech/rpy_stream/internal/orientation"
	"github.com/relabs-tech/rpy_stream/internal/sink"
	"github.com/relabs-tech/rpy_stream/internal/stream"
	"github.com/relabs-tech/rpy_stream/internal/wire"
)

// Consumer runs one estimator over a stream of samples and hands every
// estimate to a sink. Bad records and degenerate samples are dropped and
// counted; they never stop the consumer.
type Consumer struct {
	est orientation.Estimator
	out sink.Sink

	handled    atomic.Uint64
	malformed  atomic.Uint64
	degenerate atomic.Uint64
	sinkErrors atomic.Uint64
}

// ConsumerStats is a snapshot of a consumer's counters.
type ConsumerStats struct {
	Handled    uint64
	Malformed  uint64
	Degenerate uint64
	SinkErrors uint64
}

// NewConsumer returns a consumer feeding est and writing to out.
func NewConsumer(est orientation.Estimator, out sink.Sink) *Consumer {
	return &Consumer{est: est, out: out}
}

// Estimator returns the consumer's estimator.
func (c *Consumer) Estimator() orientation.Estimator { return c.est }

// Stats returns the current counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Handled:    c.handled.Load(),
		Malformed:  c.malformed.Load(),
		Degenerate: c.degenerate.Load(),
		SinkErrors: c.sinkErrors.Load(),
	}
}

// HandleRecord decodes one wire record and runs it through the estimator.
func (c *Consumer) HandleRecord(record string) (orientation.Orientation, error) {
	s, err := wire.Decode(record)
	if err != nil {
		c.malformed.Add(1)
		return orientation.Orientation{}, err
	}
	return c.HandleSample(s)
}

// HandleSample runs one already remapped sample through the estimator.
func (c *Consumer) HandleSample(s imu.Sample) (orientation.Orientation, error) {
	o, err := c.est.Update(s)
	if err != nil {
		if errors.Is(err, orientation.ErrDegenerateInput) {
			c.degenerate.Add(1)
		}
		return orientation.Orientation{}, err
	}
	c.handled.Add(1)

	if err := c.out.Emit(o); err != nil {
		c.sinkErrors.Add(1)
		return o, err
	}
	return o, nil
}

// Run consumes wire records until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context, cur *stream.Cursor[string]) error {
	return drain(ctx, c.est.Name(), cur, func(rec string) error {
		_, err := c.HandleRecord(rec)
		return err
	})
}

// RunSamples consumes samples directly from an in-process channel.
func (c *Consumer) RunSamples(ctx context.Context, cur *stream.Cursor[imu.Sample]) error {
	return drain(ctx, c.est.Name(), cur, func(s imu.Sample) error {
		_, err := c.HandleSample(s)
		return err
	})
}

// errorLogEvery limits repeated per-sample error logs.
const errorLogEvery = 100

func drain[T any](ctx context.Context, name string, cur *stream.Cursor[T], handle func(T) error) error {
	var failures uint64
	for {
		v, err := cur.Receive(ctx)
		if err != nil {
			if errors.Is(err, stream.ErrClosed) || ctx.Err() != nil {
				log.Printf("consumer %s: stopped (%d values skipped)", name, cur.Skipped())
				return nil
			}
			return err
		}

		if err := handle(v); err != nil {
			failures++
			if failures == 1 || failures%errorLogEvery == 0 {
				log.Printf("consumer %s: %v (%d dropped so far)", name, err, failures)
			}
		}
	}
}
