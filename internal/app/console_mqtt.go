package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/rpy_stream/internal/config"
	"github.com/relabs-tech/rpy_stream/internal/orientation"
	"github.com/relabs-tech/rpy_stream/internal/sink"
)

// RunConsoleMQTT prints every estimator's output published on MQTT.
func RunConsoleMQTT(ctx context.Context, cfg *config.Config, w io.Writer) error {
	if cfg.MQTTBroker == "" {
		return errors.New("console: MQTT_BROKER is not set")
	}

	client, err := sink.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsumer+"-console")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	interval := time.Duration(cfg.ConsoleLogInterval) * time.Millisecond
	var (
		mu       sync.Mutex
		consoles = make(map[string]*sink.Console)
	)

	filter := cfg.TopicOrientation + "/+"
	token := client.Subscribe(filter, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var o orientation.Orientation
		if err := json.Unmarshal(msg.Payload(), &o); err != nil {
			log.Printf("console: orientation unmarshal error: %v", err)
			return
		}
		name := msg.Topic()[strings.LastIndex(msg.Topic(), "/")+1:]

		mu.Lock()
		c, ok := consoles[name]
		if !ok {
			c = sink.NewConsole(w, name, interval)
			consoles[name] = c
		}
		mu.Unlock()

		if err := c.Emit(o); err != nil {
			log.Printf("console: %v", err)
		}
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: subscribed to %s", filter)

	<-ctx.Done()
	log.Println("console: shutting down")
	return nil
}
