// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sink delivers orientation estimates to their consumers: the
// console, MQTT, a CSV log or an in-memory latest-value cell.
package sink

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/rpy_stream/internal/orientation"
	"github.com/relabs-tech/rpy_stream/internal/stream"
)

// Sink receives every estimate a consumer produces.
type Sink interface {
	Emit(o orientation.Orientation) error
}

// Func adapts a plain function to Sink.
type Func func(o orientation.Orientation) error

func (f Func) Emit(o orientation.Orientation) error { return f(o) }

// Multi fans one estimate out to several sinks. Every sink is tried; the
// errors are joined.
type Multi []Sink

func (m Multi) Emit(o orientation.Orientation) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Console prints estimates in the inertial console format, at most once
// per interval.
type Console struct {
	w        io.Writer
	label    string
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewConsole prints to w with the estimator name as label. A zero
// interval prints every estimate.
func NewConsole(w io.Writer, estimator string, interval time.Duration) *Console {
	return &Console{
		w:        w,
		label:    strings.ToUpper(estimator),
		interval: interval,
		now:      time.Now,
	}
}

func (c *Console) Emit(o orientation.Orientation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.interval > 0 && !c.last.IsZero() && now.Sub(c.last) < c.interval {
		return nil
	}
	c.last = now

	_, err := fmt.Fprintf(c.w,
		"[%-8s] t=%10.3f  ROLL=%7.2f  PITCH=%7.2f  YAW=%7.2f\n",
		c.label, o.TimestampMS, o.Roll, o.Pitch, o.Yaw,
	)
	return err
}

// Latest keeps the most recent estimate in a conflated channel so readers
// (HTTP handlers, websocket pushers) can poll or wait for it.
type Latest struct {
	ch *stream.Conflated[orientation.Orientation]
}

// NewLatest returns a Latest sink.
func NewLatest() *Latest {
	return &Latest{ch: stream.New[orientation.Orientation]()}
}

func (l *Latest) Emit(o orientation.Orientation) error {
	l.ch.Publish(o)
	return nil
}

// Channel exposes the underlying conflated channel.
func (l *Latest) Channel() *stream.Conflated[orientation.Orientation] { return l.ch }
