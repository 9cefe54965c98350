package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrNotConnected is returned when publishing without a broker connection
var ErrNotConnected = errors.New("mqtt not connected")

// MQTTConfig configures the MQTT publisher
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// MQTTStats contains publisher statistics
type MQTTStats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

// MQTTPublisher publishes frame results to an MQTT broker
type MQTTPublisher struct {
	cfg    MQTTConfig
	logger *slog.Logger
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// NewMQTTPublisher returns an unconnected publisher
func NewMQTTPublisher(cfg MQTTConfig, logger *slog.Logger) *MQTTPublisher {

	if logger == nil {
		logger = slog.Default()
	}

	return &MQTTPublisher{cfg: cfg, logger: logger}
}

// Topic returns the topic detections are published to
func (p *MQTTPublisher) Topic() string {
	return p.cfg.Topic + "/detections"
}

// Connect establishes the broker connection.  The client reconnects on its
// own after a loss.
func (p *MQTTPublisher) Connect(ctx context.Context) error {

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", p.cfg.Broker))
	opts.SetClientID(p.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		p.setConnected(true)
		p.logger.Info("mqtt connection established", "broker", p.cfg.Broker, "client_id", p.cfg.ClientID)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		p.setConnected(false)
		p.logger.Warn("mqtt connection lost, will auto-reconnect", "error", err, "broker", p.cfg.Broker)
	}

	p.client = mqtt.NewClient(opts)

	timeout := 5 * time.Second

	if d, ok := ctx.Deadline(); ok {
		timeout = time.Until(d)
	}

	token := p.client.Connect()

	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: connection timeout to %s", ErrNotConnected, p.cfg.Broker)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	p.setConnected(true)

	return nil
}

// Publish sends res to the detections topic
func (p *MQTTPublisher) Publish(ctx context.Context, res FrameResult) error {

	if !p.isConnected() {
		p.addError()
		return ErrNotConnected
	}

	payload, err := Encode(res)

	if err != nil {
		p.addError()
		return err
	}

	token := p.client.Publish(p.Topic(), p.cfg.QoS, false, payload)

	if !token.WaitTimeout(2 * time.Second) {
		p.addError()
		return fmt.Errorf("mqtt publish timeout")
	}

	if err := token.Error(); err != nil {
		p.addError()
		return fmt.Errorf("mqtt publish failed: %w", err)
	}

	p.mu.Lock()
	p.published++
	p.mu.Unlock()

	p.logger.Debug("detections published", "topic", p.Topic(), "seq", res.Sequence, "size", len(payload))

	return nil
}

// Close disconnects from the broker
func (p *MQTTPublisher) Close() error {

	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
		p.logger.Info("mqtt disconnected")
	}

	p.setConnected(false)

	return nil
}

// Stats returns publisher statistics
func (p *MQTTPublisher) Stats() MQTTStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return MQTTStats{Connected: p.connected, Published: p.published, Errors: p.errors}
}

func (p *MQTTPublisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

func (p *MQTTPublisher) isConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *MQTTPublisher) addError() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}
