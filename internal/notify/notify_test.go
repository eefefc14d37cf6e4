package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mmeshcher/coursemart/internal/model"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	err    error
	sent   []published
	closed bool
}

func (c *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestPublisher_SendVerificationResult(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch, exchange: "coursemart.notifications"}

	n := model.Notification{
		Kind:       model.NotificationPurchaseVerified,
		Email:      "ana@example.com",
		PurchaseID: 12,
		Status:     "completed",
		OccurredAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.SendVerificationResult(context.Background(), n))

	require.Len(t, ch.sent, 1)
	got := ch.sent[0]
	assert.Equal(t, "coursemart.notifications", got.exchange)
	assert.Equal(t, "purchase.verified", got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)

	var decoded model.Notification
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	assert.Equal(t, n, decoded)
}

func TestPublisher_Errors(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := &Publisher{ch: ch, exchange: "x"}

	err := p.SendConfirmation(context.Background(), model.Notification{Kind: model.NotificationWelcome})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish user.welcome")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = p.SendConfirmation(ctx, model.Notification{Kind: model.NotificationWelcome})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPublisher_Close(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch, exchange: "x"}

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.SendConfirmation(context.Background(), model.Notification{
		Kind:    model.NotificationEventRegistration,
		Email:   "ana@example.com",
		EventID: 3,
	}))

	entries := logs.FilterMessage("notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "event.registered", entries[0].ContextMap()["kind"])
}
