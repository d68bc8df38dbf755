package transport

import (
	"context"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/rpy_stream/internal/stream"
)

// Subscriber connects to a Publisher and republishes every received record
// into a local conflated channel, reconnecting when the link drops.
type Subscriber struct {
	url       string
	reconnect time.Duration
	out       *stream.Conflated[string]
	dialer    *websocket.Dialer
}

// NewSubscriber returns a subscriber for url (ws://host:port/path).
func NewSubscriber(url string, reconnect time.Duration, out *stream.Conflated[string]) *Subscriber {
	if reconnect <= 0 {
		reconnect = time.Second
	}
	return &Subscriber{
		url:       url,
		reconnect: reconnect,
		out:       out,
		dialer:    &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
	}
}

// Run keeps the link up until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("subscriber: %s: %v (retrying in %s)", s.url, err, s.reconnect)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnect):
		}
	}
}

func (s *Subscriber) session(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("subscriber: connected to %s", s.url)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if mt != websocket.TextMessage {
			continue
		}
		s.out.Publish(string(data))
	}
}
