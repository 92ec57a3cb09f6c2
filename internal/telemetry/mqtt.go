package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttQoS            = 1
	mqttRetain         = false
	mqttConnectTimeout = 5 * time.Second
)

// MQTTPublisher pushes events to an MQTT broker. Publishing is
// fire-and-forget: Broadcast does not wait for broker acknowledgment.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
}

// NewMQTTPublisher connects to the broker and returns a publisher for topic.
func NewMQTTPublisher(broker, clientID, topic string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetProtocolVersion(4) // MQTT 3.1.1

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout", broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	return &MQTTPublisher{client: client, topic: topic}, nil
}

// Broadcast publishes the event JSON-encoded. The event name is appended to
// the configured topic so observers can subscribe per event type.
func (p *MQTTPublisher) Broadcast(event string, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	p.client.Publish(p.topic+"/"+event, mqttQoS, mqttRetain, string(b))
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(1000)
}
