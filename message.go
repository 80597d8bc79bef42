// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type (
	// Handler processes one delivered message. It owns acknowledgment:
	// call msg.Ack once processing succeeded. Deliveries are at least once,
	// so handlers should be idempotent. The same handler is re-attached
	// after every reconnect.
	//
	// When the handler returns an error and has not settled the message, the
	// consumer rejects it without requeue so the broker dead-letters it.
	// Panics are not recovered.
	Handler func(ctx context.Context, msg *Message) error

	// Properties are the AMQP basic properties of a delivered message.
	Properties struct {
		ContentType   string
		DeliveryMode  uint8
		MessageID     string
		Type          string
		AppID         string
		CorrelationID string
		Timestamp     time.Time
	}

	// Message is one delivery handed to a Handler.
	Message struct {
		Content     []byte
		Headers     amqp.Table
		Properties  Properties
		DeliveryTag uint64
		ConsumerTag string
		Redelivered bool
		Exchange    string
		RoutingKey  string

		delivery amqp.Delivery
		settled  atomic.Bool
		acked    atomic.Bool
	}
)

// NewMessage wraps a delivery. Settling the message settles the delivery.
func NewMessage(d amqp.Delivery) *Message {
	return &Message{
		Content: d.Body,
		Headers: d.Headers,
		Properties: Properties{
			ContentType:   d.ContentType,
			DeliveryMode:  d.DeliveryMode,
			MessageID:     d.MessageId,
			Type:          d.Type,
			AppID:         d.AppId,
			CorrelationID: d.CorrelationId,
			Timestamp:     d.Timestamp,
		},
		DeliveryTag: d.DeliveryTag,
		ConsumerTag: d.ConsumerTag,
		Redelivered: d.Redelivered,
		Exchange:    d.Exchange,
		RoutingKey:  d.RoutingKey,
		delivery:    d,
	}
}

// Ack acknowledges the message. A message can be settled once.
func (m *Message) Ack() error {
	if !m.settled.CompareAndSwap(false, true) {
		return ErrMessageAlreadySettled
	}
	m.acked.Store(true)
	return m.delivery.Ack(false)
}

// Nack rejects the message. With requeue false the broker dead-letters it
// when the queue has a dead-letter exchange, and drops it otherwise.
func (m *Message) Nack(requeue bool) error {
	if !m.settled.CompareAndSwap(false, true) {
		return ErrMessageAlreadySettled
	}
	return m.delivery.Nack(false, requeue)
}

// Settled reports whether the message was acked or nacked.
func (m *Message) Settled() bool {
	return m.settled.Load()
}

// Acked reports whether the message was settled with Ack.
func (m *Message) Acked() bool {
	return m.acked.Load()
}

// Decode unmarshals the JSON content into v.
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Content, v)
}

// Header returns the string value of a header, or "".
func (m *Message) Header(key string) string {
	v, ok := m.Headers[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
