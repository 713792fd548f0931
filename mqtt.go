package morse

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// EventPayload is the JSON shape published for one decoded event.
// Events for channel N go to "<topicPrefix>/N".
type EventPayload struct {
	Channel int     `json:"channel"`
	Event   string  `json:"event"`
	Text    string  `json:"text,omitempty"`
	WPM     float64 `json:"wpm,omitempty"`
	AtMs    int64   `json:"at_ms"`
}

// FormatEventPayload creates the JSON payload for one event.
func FormatEventPayload(ev Event) ([]byte, error) {
	p := EventPayload{
		Channel: ev.Channel,
		Event:   ev.Type.String(),
		AtMs:    ev.At.Milliseconds(),
		WPM:     ev.WPM,
	}
	switch ev.Type {
	case EventSymbol:
		p.Text = string(ev.Mark)
	case EventChar:
		p.Text = ev.Char
	}
	return json.Marshal(p)
}

// MQTTSink publishes decoded characters and word breaks to an MQTT
// broker. Symbol events are not published; only text leaves the process.
type MQTTSink struct {
	client paho.Client
	prefix string
}

// NewMQTTSink connects to the given broker, e.g. "tcp://localhost:1883".
// The connection retries in the background after transient failures.
func NewMQTTSink(broker, clientID, topicPrefix string) (*MQTTSink, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &MQTTSink{client: client, prefix: topicPrefix}, nil
}

// Publish sends one event to the channel's topic.
func (m *MQTTSink) Publish(ev Event) error {
	if ev.Type == EventSymbol {
		return nil
	}
	payload, err := FormatEventPayload(ev)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	topic := fmt.Sprintf("%s/%d", m.prefix, ev.Channel)

	// QoS 0 (at-most-once), not retained
	token := m.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (m *MQTTSink) Close() error {
	m.client.Disconnect(1000) // 1 second timeout
	return nil
}
