package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.Wait() }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeClient struct {
	topic   string
	payload []byte
	err     error
	hang    bool
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.topic = topic
	c.payload = payload.([]byte)
	tok := &fakeToken{done: make(chan struct{}), err: c.err}
	if !c.hang {
		close(tok.done)
	}
	return tok
}

func entry() store.AccessLogEntry {
	card := "card-1"
	return store.AccessLogEntry{
		ID:           "log-1",
		RFIDNumber:   "CARD001",
		CardID:       &card,
		Decision:     store.DecisionDenied,
		DenialReason: store.ReasonCardExpired,
		Location:     "Main Gate",
		DeviceID:     "gate-main",
		Timestamp:    time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	}
}

func TestPublishDecision_EncodesEvent(t *testing.T) {
	c := &fakeClient{}
	p := newPublisher(c, "", nil)

	require.NoError(t, p.PublishDecision(context.Background(), entry()))
	assert.Equal(t, "campusgate/access/denied", c.topic)

	var ev DecisionEvent
	require.NoError(t, json.Unmarshal(c.payload, &ev))
	assert.Equal(t, "log-1", ev.LogID)
	assert.Equal(t, "card-1", ev.CardID)
	assert.Equal(t, "card_expired", ev.DenialReason)
	assert.Equal(t, "2026-03-02T09:30:00Z", ev.Timestamp)
}

func TestPublishDecision_BrokerError(t *testing.T) {
	p := newPublisher(&fakeClient{err: errors.New("not connected")}, "gates", nil)
	assert.Error(t, p.PublishDecision(context.Background(), entry()))
}

func TestPublishDecision_HonoursContext(t *testing.T) {
	p := newPublisher(&fakeClient{hang: true}, "gates", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := p.PublishDecision(ctx, entry())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
