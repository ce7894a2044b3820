package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/okian/kaushal/pkg/logger"
	"github.com/okian/kaushal/pkg/metrics"
)

const (
	statusQoS      = 1
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// MQTTConfig addresses the broker.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	Codec       string
}

// publisher is the part of mqtt.Client the notifier uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes status events, QoS 1, not retained.
type MQTT struct {
	client    publisher
	prefix    string
	codec     Codec
	log       logger.Logger
	connected atomic.Bool

	mu        sync.Mutex
	published uint64
	errors    uint64
}

// NewMQTT connects to the broker with auto reconnect.
func NewMQTT(ctx context.Context, cfg MQTTConfig) (*MQTT, error) {
	codec, err := CodecFor(cfg.Codec)
	if err != nil {
		return nil, err
	}
	n := &MQTT{prefix: cfg.TopicPrefix, codec: codec, log: logger.Named("notify")}

	opts := mqtt.NewClientOptions()
	opts.AddBroker("tcp://" + cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		n.connected.Store(true)
		n.log.Info(context.Background(), "mqtt connection established", logger.String("broker", cfg.Broker))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		n.connected.Store(false)
		n.log.Warn(context.Background(), "mqtt connection lost, will auto-reconnect",
			logger.String("broker", cfg.Broker), logger.Error(err))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, ErrConnectTimeout
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	n.client = client
	n.connected.Store(true)
	n.log.Info(ctx, "status push enabled", logger.String("broker", cfg.Broker), logger.String("codec", cfg.Codec))
	return n, nil
}

// newMQTTWithPublisher wires a notifier over an existing publisher.
func newMQTTWithPublisher(p publisher, prefix string, codec Codec) *MQTT {
	n := &MQTT{client: p, prefix: prefix, codec: codec, log: logger.Named("notify")}
	n.connected.Store(true)
	return n
}

func (n *MQTT) Notify(ctx context.Context, ev Event) error {
	if !n.connected.Load() {
		n.fail()
		return ErrNotConnected
	}
	payload, err := n.codec.Encode(ev)
	if err != nil {
		n.fail()
		return fmt.Errorf("encode event: %w", err)
	}

	topic := Topic(n.prefix, ev.AssessmentID)
	token := n.client.Publish(topic, statusQoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		n.fail()
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		n.fail()
		return fmt.Errorf("publish failed: %w", err)
	}

	n.mu.Lock()
	n.published++
	n.mu.Unlock()
	metrics.RecordNotification("published")
	n.log.Debug(ctx, "status published", logger.String("topic", topic), logger.Int("size", len(payload)))
	return nil
}

func (n *MQTT) fail() {
	n.mu.Lock()
	n.errors++
	n.mu.Unlock()
	metrics.RecordNotification("error")
}

// Stats returns published and failed counts.
func (n *MQTT) Stats() (published, failed uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.published, n.errors
}

// Close disconnects with a 250ms grace period.
func (n *MQTT) Close() error {
	if n.client != nil {
		n.client.Disconnect(250)
	}
	n.connected.Store(false)
	return nil
}

// Subscribe connects a short-lived client and delivers events for one
// assessment to fn until ctx is done.
func Subscribe(ctx context.Context, cfg MQTTConfig, assessmentID string, fn func(Event)) error {
	codec, err := CodecFor(cfg.Codec)
	if err != nil {
		return err
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker("tcp://" + cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return ErrConnectTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	defer client.Disconnect(250)

	topic := Topic(cfg.TopicPrefix, assessmentID)
	sub := client.Subscribe(topic, statusQoS, func(_ mqtt.Client, msg mqtt.Message) {
		ev, err := codec.Decode(msg.Payload())
		if err != nil {
			return
		}
		fn(ev)
	})
	if !sub.WaitTimeout(connectTimeout) {
		return ErrConnectTimeout
	}
	if err := sub.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe failed: %w", err)
	}

	<-ctx.Done()
	return nil
}
