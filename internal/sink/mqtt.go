package sink

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/relabs-tech/rpy_stream/internal/orientation"
)

// Publisher is the part of mqtt.Client the MQTT sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes each estimate as retained JSON, so late subscribers get
// the freshest value straight away.
type MQTT struct {
	client  Publisher
	topic   string
	timeout time.Duration
}

// NewMQTT returns a sink publishing to topic.
func NewMQTT(client Publisher, topic string) *MQTT {
	return &MQTT{client: client, topic: topic, timeout: 2 * time.Second}
}

func (m *MQTT) Emit(o orientation.Orientation) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("json marshal error (%s): %w", m.topic, err)
	}
	token := m.client.Publish(m.topic, 0, true, payload)
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("MQTT publish timeout (%s)", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT publish error (%s): %w", m.topic, err)
	}
	return nil
}

// ConnectMQTT connects to broker with a unique client id derived from
// clientIDPrefix. The client reconnects on its own after a lost link.
func ConnectMQTT(broker, clientIDPrefix string) (mqtt.Client, error) {
	clientID := fmt.Sprintf("%s-%s", clientIDPrefix, uuid.NewString()[:8])

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("mqtt: connection lost: %v (will auto-reconnect)", err)
	}
	opts.OnReconnecting = func(mqtt.Client, *mqtt.ClientOptions) {
		log.Printf("mqtt: reconnecting to %s", broker)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("MQTT connect timeout (%s)", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("MQTT connect error: %w", err)
	}
	log.Printf("mqtt: connected to %s as %s", broker, clientID)
	return client, nil
}
