// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transport carries wire records from the producer's conflated
// channel to remote consumers over websocket text messages.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/rpy_stream/internal/imu"
	"github.com/relabs-tech/rpy_stream/internal/stream"
	"github.com/relabs-tech/rpy_stream/internal/wire"
)

const writeWait = 2 * time.Second

// BindError reports that the streaming endpoint could not be bound,
// typically because the address is already in use. It is fatal for the
// producer.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Publisher serves the freshest sample of a conflated channel to every
// connected subscriber.
type Publisher struct {
	ln       net.Listener
	path     string
	ch       *stream.Conflated[imu.Sample]
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients int
}

// NewPublisher binds addr. Nothing is served until Serve is called.
func NewPublisher(addr, path string, ch *stream.Conflated[imu.Sample]) (*Publisher, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}
	return &Publisher{
		ln:   ln,
		path: path,
		ch:   ch,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}, nil
}

// Addr returns the bound address.
func (p *Publisher) Addr() net.Addr { return p.ln.Addr() }

// Clients returns the number of connected subscribers.
func (p *Publisher) Clients() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clients
}

// Serve accepts subscribers until ctx is cancelled.
func (p *Publisher) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(p.path, func(w http.ResponseWriter, r *http.Request) {
		p.handle(ctx, w, r)
	})
	srv := &http.Server{Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(p.ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close releases the listener without serving.
func (p *Publisher) Close() error { return p.ln.Close() }

func (p *Publisher) handle(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("publisher: upgrade error from %s: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()

	id := uuid.NewString()[:8]
	p.mu.Lock()
	p.clients++
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.clients--
		p.mu.Unlock()
	}()
	log.Printf("publisher: subscriber %s connected from %s", id, r.RemoteAddr)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// subscribers never send; reading only detects the close
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	cur := p.ch.Subscribe()
	for {
		s, err := cur.Receive(ctx)
		if err != nil {
			break
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(wire.Encode(s))); err != nil {
			log.Printf("publisher: subscriber %s write error: %v", id, err)
			break
		}
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	log.Printf("publisher: subscriber %s disconnected (%d samples skipped)", id, cur.Skipped())
}
