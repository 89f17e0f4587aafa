package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
)

type MQTTConfig struct {
	Broker   string // tcp://host:1883
	ClientID string
	Username string
	Password string
	Topic    string // base topic; events go to <Topic>/<decision>
}

// publishClient is the part of mqtt.Client the publisher uses.
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// DecisionEvent is the JSON body published for every persisted decision.
type DecisionEvent struct {
	LogID        string `json:"log_id"`
	RFIDNumber   string `json:"rfid_number"`
	CardID       string `json:"card_id,omitempty"`
	Decision     string `json:"decision"`
	DenialReason string `json:"denial_reason,omitempty"`
	Location     string `json:"location,omitempty"`
	DeviceID     string `json:"device_id,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// MQTTPublisher publishes access decisions at QoS 0.  It satisfies
// service.EventPublisher.
type MQTTPublisher struct {
	client publishClient
	conn   mqtt.Client // nil when built over a bare publishClient
	topic  string
	logger *zap.Logger
}

// DialMQTT connects to the broker with auto-reconnect enabled.
func DialMQTT(cfg MQTTConfig, logger *zap.Logger) (*MQTTPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})

	c := mqtt.NewClient(opts)
	if tok := c.Connect(); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", cfg.Broker, tok.Error())
	}

	p := newPublisher(c, cfg.Topic, logger)
	p.conn = c
	return p, nil
}

func newPublisher(c publishClient, topic string, logger *zap.Logger) *MQTTPublisher {
	if topic == "" {
		topic = "campusgate/access"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQTTPublisher{client: c, topic: topic, logger: logger}
}

func (p *MQTTPublisher) PublishDecision(ctx context.Context, e store.AccessLogEntry) error {
	ev := DecisionEvent{
		LogID:        e.ID,
		RFIDNumber:   e.RFIDNumber,
		Decision:     string(e.Decision),
		DenialReason: string(e.DenialReason),
		Location:     e.Location,
		DeviceID:     e.DeviceID,
		Timestamp:    e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if e.CardID != nil {
		ev.CardID = *e.CardID
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode decision event: %w", err)
	}

	topic := p.topic + "/" + string(e.Decision)
	tok := p.client.Publish(topic, 0, false, body)
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", topic, ctx.Err())
	}
}

// Close disconnects, allowing 250ms for in-flight work.
func (p *MQTTPublisher) Close() {
	if p.conn != nil {
		p.conn.Disconnect(250)
	}
}
