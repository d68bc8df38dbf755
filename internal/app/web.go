package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/rpy_stream/internal/config"
	"github.com/relabs-tech/rpy_stream/internal/orientation"
	"github.com/relabs-tech/rpy_stream/internal/sink"
)

// WebServer keeps the latest estimate per estimator and serves it over
// HTTP and websocket.
type WebServer struct {
	latest   map[string]*sink.Latest
	upgrader websocket.Upgrader
}

// NewWebServer returns a server tracking every known estimator.
func NewWebServer() *WebServer {
	s := &WebServer{
		latest: make(map[string]*sink.Latest, len(orientation.Kinds)),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, k := range orientation.Kinds {
		s.latest[k] = sink.NewLatest()
	}
	return s
}

// Sink returns the latest-value sink of one estimator.
func (s *WebServer) Sink(estimator string) (sink.Sink, bool) {
	l, ok := s.latest[estimator]
	if !ok {
		return nil, false
	}
	return l, true
}

// HandleMessage stores an orientation received on <prefix>/<estimator>.
func (s *WebServer) HandleMessage(topic string, payload []byte) error {
	estimator := topic[strings.LastIndex(topic, "/")+1:]
	l, ok := s.latest[estimator]
	if !ok {
		return fmt.Errorf("unknown estimator in topic %s", topic)
	}
	var o orientation.Orientation
	if err := json.Unmarshal(payload, &o); err != nil {
		return fmt.Errorf("payload unmarshal error (%s): %w", topic, err)
	}
	return l.Emit(o)
}

// Handler returns the HTTP routes.
func (s *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/orientation/{estimator}", s.handleLatest)
	mux.HandleFunc("GET /ws/orientation/{estimator}", s.handleWS)
	return mux
}

func (s *WebServer) handleLatest(w http.ResponseWriter, r *http.Request) {
	l, ok := s.latest[r.PathValue("estimator")]
	if !ok {
		http.Error(w, "unknown estimator", http.StatusNotFound)
		return
	}
	o, ok := l.Channel().Latest()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(o); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func (s *WebServer) handleWS(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("estimator")
	l, ok := s.latest[name]
	if !ok {
		http.Error(w, "unknown estimator", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	cur := l.Channel().Subscribe()
	for {
		o, err := cur.Receive(ctx)
		if err != nil {
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(o); err != nil {
			log.Printf("web: websocket write error (%s): %v", name, err)
			return
		}
	}
}

// RunWeb subscribes to every estimator's MQTT topic and serves the
// latest values until ctx is cancelled.
func RunWeb(ctx context.Context, cfg *config.Config) error {
	if cfg.MQTTBroker == "" {
		return errors.New("web: MQTT_BROKER is not set")
	}
	srv := NewWebServer()

	client, err := sink.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	filter := cfg.TopicOrientation + "/+"
	token := client.Subscribe(filter, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if err := srv.HandleMessage(msg.Topic(), msg.Payload()); err != nil {
			log.Printf("web: %v", err)
		}
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: subscribed to MQTT topic %s", filter)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Printf("web server listening on %s", addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
