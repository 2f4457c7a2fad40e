// Package mqtt publishes loop telemetry to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/itohio/dpstep/pkg/control"
	"github.com/itohio/dpstep/pkg/telemetry"
)

const (
	// DefaultTopic is used when no topic is configured.
	DefaultTopic = "dpstep/telemetry"

	publishTimeout = 2 * time.Second
)

// ErrPublishTimeout is returned when the broker does not acknowledge in time.
var ErrPublishTimeout = errors.New("publish timed out")

// Config holds the broker connection settings.
type Config struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Topic    string
	QoS      byte
}

// Publisher sends telemetry records as JSON.
type Publisher struct {
	client paho.Client
	topic  string
	qos    byte
	log    log.FieldLogger
}

// Connect dials the broker. Reconnects are handled by the client.
func Connect(cfg Config) (*Publisher, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.OnConnect = func(paho.Client) {
		log.WithField("broker", cfg.Broker).Info("connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.WithError(err).Warn("MQTT connection lost")
	}

	client := paho.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}

	return New(client, cfg.Topic, cfg.QoS), nil
}

// New wraps an existing client.
func New(client paho.Client, topic string, qos byte) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		client: client,
		topic:  topic,
		qos:    qos,
		log:    log.WithField("component", "mqtt"),
	}
}

// Publish sends rec and waits for the broker acknowledgement.
func (p *Publisher) Publish(rec telemetry.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	token := p.client.Publish(p.topic, p.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}
	return nil
}

// Report publishes the record of r. Errors are logged.
func (p *Publisher) Report(r control.Report) {
	if err := p.Publish(telemetry.FromReport(r)); err != nil {
		p.log.WithError(err).Warn("telemetry publish failed")
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
