// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package stream provides a conflated single-slot channel: one producer
// overwrites the slot, any number of consumers read the freshest value.
// Values nobody read before the next Publish are lost.
package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Receive once the channel is closed and the
// cursor has already seen the last value.
var ErrClosed = errors.New("stream: channel closed")

// Conflated holds at most one value. Publish never blocks.
type Conflated[T any] struct {
	mu      sync.Mutex
	value   T
	version uint64        // 0 means nothing published yet
	changed chan struct{} // closed and replaced on every Publish
	closed  bool
}

// New returns an empty conflated channel.
func New[T any]() *Conflated[T] {
	return &Conflated[T]{changed: make(chan struct{})}
}

// Publish overwrites the held value and wakes every waiting consumer.
// Publishing on a closed channel is a no-op.
func (c *Conflated[T]) Publish(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.value = v
	c.version++
	close(c.changed)
	c.changed = make(chan struct{})
}

// Latest returns the held value, if any.
func (c *Conflated[T]) Latest() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.version > 0
}

// Version returns the number of values published so far.
func (c *Conflated[T]) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Close wakes all waiters. Receive keeps returning a value the cursor has
// not seen yet, then ErrClosed.
func (c *Conflated[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.changed)
}

// Subscribe returns a new consumer cursor. The value currently held, if
// any, counts as fresh for the new cursor.
func (c *Conflated[T]) Subscribe() *Cursor[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := c.version
	if seen > 0 {
		seen--
	}
	return &Cursor[T]{ch: c, seen: seen}
}

// Cursor tracks what one consumer has already seen. A cursor is owned by a
// single goroutine; different cursors may be used concurrently.
type Cursor[T any] struct {
	ch      *Conflated[T]
	seen    uint64
	skipped uint64
}

// Receive blocks until a value newer than the last one returned by this
// cursor is available, then returns the freshest one.
func (cur *Cursor[T]) Receive(ctx context.Context) (T, error) {
	for {
		v, ok, wait, closed := cur.poll()
		if ok {
			return v, nil
		}
		if closed {
			var zero T
			return zero, ErrClosed
		}
		select {
		case <-wait:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryReceive returns a fresh value without blocking.
func (cur *Cursor[T]) TryReceive() (T, bool) {
	v, ok, _, _ := cur.poll()
	return v, ok
}

// Skipped returns how many published values this cursor never observed.
func (cur *Cursor[T]) Skipped() uint64 {
	return cur.skipped
}

func (cur *Cursor[T]) poll() (v T, ok bool, wait <-chan struct{}, closed bool) {
	c := cur.ch
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.version > cur.seen {
		cur.skipped += c.version - cur.seen - 1
		cur.seen = c.version
		return c.value, true, nil, false
	}
	return v, false, c.changed, c.closed
}
