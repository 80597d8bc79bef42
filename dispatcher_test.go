// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type labelChanged struct {
	Label string `json:"label"`
}

func newDelivery(ack *MockAMQPChannel, tag uint64, typ, routingKey, body string) *Message {
	return NewMessage(amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  tag,
		Type:         typ,
		RoutingKey:   routingKey,
		Exchange:     "silo_exchange",
		MessageId:    fmt.Sprintf("m-%d", tag),
		Body:         []byte(body),
	})
}

func TestDispatcher_Register(t *testing.T) {
	noop := func(context.Context, any, *DeliveryMetadata) error { return nil }

	t.Run("by type", func(t *testing.T) {
		d := NewDispatcher()
		require.NoError(t, d.RegisterByType(issueSynced{}, noop))
		assert.ErrorIs(t, d.RegisterByType(&issueSynced{}, noop), ConsumerAlreadyRegisteredForTheMessageError)
		assert.Contains(t, d.byType, "mqactor.issueSynced")
	})

	t.Run("by routing key", func(t *testing.T) {
		d := NewDispatcher()
		require.NoError(t, d.RegisterByRoutingKey("github.issue.synced", issueSynced{}, noop))
		assert.ErrorIs(t, d.RegisterByRoutingKey("github.issue.synced", labelChanged{}, noop), ConsumerAlreadyRegisteredForTheMessageError)
	})

	t.Run("invalid params", func(t *testing.T) {
		d := NewDispatcher()
		assert.ErrorIs(t, d.RegisterByType(nil, noop), InvalidDispatchParamsError)
		assert.ErrorIs(t, d.RegisterByType(issueSynced{}, nil), InvalidDispatchParamsError)
		assert.ErrorIs(t, d.RegisterByRoutingKey("", issueSynced{}, noop), InvalidDispatchParamsError)
		assert.ErrorIs(t, d.RegisterByRoutingKey("rk", nil, noop), InvalidDispatchParamsError)
	})
}

func TestDispatcher_Handle(t *testing.T) {
	retryable := fmt.Errorf("github unavailable: %w", ErrRetryable)
	fatal := errors.New("label does not exist")

	tests := []struct {
		name        string
		typ         string
		routingKey  string
		body        string
		handlerErr  error
		wantErr     error
		wantAck     bool
		wantNack    bool
		wantRequeue bool
		wantCalled  bool
	}{
		{name: "routed by type", typ: "mqactor.issueSynced", body: `{"number":1}`, wantAck: true, wantCalled: true},
		{name: "routed by routing key", routingKey: "linear.label.changed", body: `{"label":"bug"}`, wantAck: true, wantCalled: true},
		{name: "retryable error requeues", typ: "mqactor.issueSynced", body: `{}`, handlerErr: retryable, wantRequeue: true, wantCalled: true},
		{name: "other error is returned", typ: "mqactor.issueSynced", body: `{}`, handlerErr: fatal, wantErr: fatal, wantCalled: true},
		{name: "undecodable content is dead-lettered", typ: "mqactor.issueSynced", body: `{not json`, wantNack: true},
		{name: "unknown type is acked and dropped", typ: "mqactor.unknown", body: `{}`, wantAck: true},
		{name: "no type and no route is acked and dropped", body: `{}`, wantAck: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := NewMockAMQPChannel()
			d := NewDispatcher()

			called := false
			require.NoError(t, d.RegisterByType(issueSynced{}, func(_ context.Context, msg any, md *DeliveryMetadata) error {
				called = true
				_, ok := msg.(*issueSynced)
				assert.True(t, ok, "handler receives a pointer to the registered type")
				assert.Equal(t, "m-1", md.MessageID)
				return tt.handlerErr
			}))
			require.NoError(t, d.RegisterByRoutingKey("linear.label.changed", labelChanged{}, func(_ context.Context, msg any, md *DeliveryMetadata) error {
				called = true
				assert.Equal(t, &labelChanged{Label: "bug"}, msg)
				assert.Equal(t, "linear.label.changed", md.RoutingKey)
				assert.Equal(t, "silo_exchange", md.OriginExchange)
				return tt.handlerErr
			}))

			err := d.Handle(context.Background(), newDelivery(ack, 1, tt.typ, tt.routingKey, tt.body))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalled, called)
			assert.Equal(t, tt.wantAck, len(ack.Acked()) == 1)
			assert.Equal(t, tt.wantNack, len(ack.Nacked()) == 1)
			assert.Equal(t, tt.wantRequeue, len(ack.Requeued()) == 1)
		})
	}
}

func TestDispatcher_TypeWinsOverRoutingKey(t *testing.T) {
	ack := NewMockAMQPChannel()
	d := NewDispatcher()

	var got string
	require.NoError(t, d.RegisterByType(issueSynced{}, func(context.Context, any, *DeliveryMetadata) error {
		got = "type"
		return nil
	}))
	require.NoError(t, d.RegisterByRoutingKey("github.issue.synced", labelChanged{}, func(context.Context, any, *DeliveryMetadata) error {
		got = "routing key"
		return nil
	}))

	require.NoError(t, d.Handle(context.Background(), newDelivery(ack, 1, "mqactor.issueSynced", "github.issue.synced", `{}`)))
	assert.Equal(t, "type", got)
}

func TestDispatcher_WithConsumer(t *testing.T) {
	a := newTestActor(t, nil)
	ch := a.connect(t)

	handled := make(chan *issueSynced, 1)
	d := NewDispatcher()
	require.NoError(t, d.RegisterByType(issueSynced{}, func(_ context.Context, msg any, _ *DeliveryMetadata) error {
		handled <- msg.(*issueSynced)
		return nil
	}))

	_, err := NewConsumer(a.sup).StartConsuming(d.Handle)
	require.NoError(t, err)
	require.NoError(t, NewProducer(a.sup).SendMessage(context.Background(), issueSynced{Number: 9}, nil))

	// Loop the published message back through the consumer.
	published := ch.GetLastPublishedMessage()
	require.NotNil(t, published)
	tag, ok := ch.Deliver(amqp.Delivery{
		Type:       published.Publishing.Type,
		MessageId:  published.Publishing.MessageId,
		Body:       published.Publishing.Body,
		Headers:    published.Publishing.Headers,
		RoutingKey: published.Key,
		Exchange:   published.Exchange,
	})
	require.True(t, ok)

	select {
	case msg := <-handled:
		assert.Equal(t, 9, msg.Number)
	case <-time.After(2 * time.Second):
		t.Fatal("message was not dispatched")
	}

	require.Eventually(t, func() bool { return len(ch.Acked()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []uint64{tag}, ch.Acked())
}

func TestExtractMetadata(t *testing.T) {
	msg := NewMessage(amqp.Delivery{
		MessageId:   "m-1",
		Type:        "mqactor.issueSynced",
		Exchange:    "silo_exchange",
		RoutingKey:  "rk",
		Redelivered: true,
		Headers:     amqp.Table{"k": "v"},
	})

	assert.Equal(t, &DeliveryMetadata{
		MessageID:      "m-1",
		Type:           "mqactor.issueSynced",
		OriginExchange: "silo_exchange",
		RoutingKey:     "rk",
		Redelivered:    true,
		Headers:        map[string]interface{}{"k": "v"},
	}, extractMetadata(msg))
}
