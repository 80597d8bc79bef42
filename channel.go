// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

import (
	"context"
	"sync"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

type (
	// AMQPChannel defines the interface for a RabbitMQ channel.
	// It abstracts the operations the actor performs on a channel: topology
	// declarations, confirm-mode publishing, consuming and event notifications.
	// *amqp.Channel satisfies it directly.
	AMQPChannel interface {
		// Confirm puts the channel into confirm mode so every publish is
		// acknowledged by the broker.
		Confirm(noWait bool) error

		// Qos controls how many deliveries the broker keeps in flight for
		// consumers on this channel before receiving acks.
		Qos(prefetchCount, prefetchSize int, global bool) error

		// ExchangeDeclare declares an exchange on the channel.
		// The exchange will be created if it doesn't already exist.
		ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error

		// QueueDeclare declares a queue on the channel.
		// The queue will be created if it doesn't already exist.
		QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)

		// QueueDeclarePassive checks that a queue exists without creating it.
		// A missing queue closes the channel with a 404.
		QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)

		// QueueBind binds a queue to an exchange.
		QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error

		// Consume starts delivering messages from a queue.
		// The returned channel is closed when the consumer is cancelled or the
		// channel goes away.
		Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)

		// Cancel stops deliveries to the consumer identified by tag.
		Cancel(consumer string, noWait bool) error

		// PublishWithDeferredConfirmWithContext publishes a message and returns
		// a confirmation to wait on. The confirmation is nil when the channel
		// is not in confirm mode.
		PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)

		// NotifyClose registers a listener for channel close events.
		NotifyClose(receiver chan *amqp.Error) chan *amqp.Error

		// NotifyCancel registers a listener for server initiated consumer cancellations.
		NotifyCancel(receiver chan string) chan string

		// IsClosed checks if the channel is closed.
		IsClosed() bool

		// Close closes the channel.
		Close() error
	}

	// handle is one live connection and channel pair. It is never reused:
	// every reconnect builds a new one and retires the old.
	handle struct {
		conn RMQConnection
		ch   AMQPChannel

		connClose chan *amqp.Error
		chClose   chan *amqp.Error
		chCancel  chan string
		blocked   chan amqp.Blocking

		done     chan struct{}
		doneOnce sync.Once
		lost     atomic.Bool
	}
)

// openHandle opens a channel on conn, switches it to confirm mode and
// subscribes to the connection and channel notifications.
func openHandle(conn RMQConnection, prefetch int) (*handle, error) {
	logrus.Debug("mqactor creating amqp channel...")
	ch, err := conn.Channel()
	if err != nil {
		logrus.WithError(err).Error("mqactor failure to establish the channel")
		return nil, ErrOpenChannel.wrap(err)
	}

	if err := ch.Confirm(false); err != nil {
		logrus.WithError(err).Error("mqactor failure to enable confirm mode")
		_ = ch.Close()
		return nil, ErrConfirmMode.wrap(err)
	}

	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			logrus.WithError(err).Error("mqactor failure to set channel qos")
			_ = ch.Close()
			return nil, ErrOpenChannel.wrap(err)
		}
	}
	logrus.Debug("mqactor created amqp channel")

	h := &handle{
		conn:      conn,
		ch:        ch,
		connClose: make(chan *amqp.Error, 1),
		chClose:   make(chan *amqp.Error, 1),
		chCancel:  make(chan string, 1),
		blocked:   make(chan amqp.Blocking, 1),
		done:      make(chan struct{}),
	}

	conn.NotifyClose(h.connClose)
	conn.NotifyBlocked(h.blocked)
	ch.NotifyClose(h.chClose)
	ch.NotifyCancel(h.chCancel)

	return h, nil
}

// retire marks the handle as no longer current so its watcher stops
// reacting to close events.
func (h *handle) retire() {
	h.doneOnce.Do(func() { close(h.done) })
}

func (h *handle) retired() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// close retires the handle and closes channel then connection.
// Errors from already closed resources are returned to the caller, which
// decides whether to swallow them.
func (h *handle) close() error {
	h.retire()

	var err error
	if h.ch != nil && !h.ch.IsClosed() {
		if closeErr := h.ch.Close(); closeErr != nil {
			err = closeErr
		}
	}

	if h.conn != nil && !h.conn.IsClosed() {
		if closeErr := h.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}

	return err
}
