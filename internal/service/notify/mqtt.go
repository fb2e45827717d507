package notify

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"eventcam/internal/logger"
	"eventcam/internal/model"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker   string // host:port
	ClientID string
	Topic    string
	QoS      byte
}

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes every event as JSON to "{topic}/{kind}".
type MQTTPublisher struct {
	client mqttClient
	topic  string
	qos    byte
	logger *logger.Logger

	published atomic.Uint64
	errors    atomic.Uint64
}

// ConnectMQTT connects to the broker with automatic reconnects.
func ConnectMQTT(opts MQTTOptions, logger *logger.Logger) (*MQTTPublisher, error) {
	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(fmt.Sprintf("tcp://%s", opts.Broker))
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectRetry(true)
	clientOpts.SetConnectRetryInterval(2 * time.Second)
	clientOpts.SetMaxReconnectInterval(30 * time.Second)
	clientOpts.OnConnect = func(c mqtt.Client) {
		logger.Info("MQTT connection established: %s", opts.Broker)
	}
	clientOpts.OnConnectionLost = func(c mqtt.Client, err error) {
		logger.Warning("MQTT connection lost, will auto-reconnect: %v", err)
	}

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	return newMQTTPublisher(client, opts.Topic, opts.QoS, logger), nil
}

func newMQTTPublisher(client mqttClient, topic string, qos byte, logger *logger.Logger) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, qos: qos, logger: logger}
}

// HandleEvent implements Subscriber.
func (p *MQTTPublisher) HandleEvent(event model.Event) {
	if err := p.Publish(event); err != nil {
		p.errors.Add(1)
		p.logger.Error("Failed to publish %s to MQTT: %v", event.Filename, err)
	}
}

// Publish sends event and waits up to two seconds for the broker.
func (p *MQTTPublisher) Publish(event model.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := fmt.Sprintf("%s/%s", p.topic, event.Kind)
	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	p.published.Add(1)
	p.logger.Debug("Event published to %s (%d bytes)", topic, len(payload))
	return nil
}

// Published returns the number of events delivered to the broker.
func (p *MQTTPublisher) Published() uint64 { return p.published.Load() }

// Errors returns the number of failed publishes.
func (p *MQTTPublisher) Errors() uint64 { return p.errors.Load() }

// Disconnect closes the broker connection with a 250ms grace period.
func (p *MQTTPublisher) Disconnect() {
	p.client.Disconnect(250)
}
