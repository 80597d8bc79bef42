// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Consumer delivers the messages of the actor queue to a single handler
// with manual acknowledgment. The handler is remembered and subscribed
// again on every new channel the supervisor builds.
type Consumer struct {
	sup    *Supervisor
	tracer trace.Tracer
	log    *logrus.Entry

	mu      sync.Mutex
	handler Handler
	tag     string
	ch      AMQPChannel

	wg sync.WaitGroup
}

// NewConsumer creates a consumer bound to sup.
func NewConsumer(sup *Supervisor) *Consumer {
	c := &Consumer{
		sup:    sup,
		tracer: otel.Tracer(tracerName),
		log:    sup.log.WithField("role", "consumer"),
	}
	sup.onReconnect(c.resubscribe)
	return c
}

// StartConsuming stores handler and subscribes it on the current channel.
// It returns the consumer tag of the subscription. When the actor is not
// connected yet the handler is still stored and gets subscribed by the
// next successful connect; the channel error is returned.
func (c *Consumer) StartConsuming(handler Handler) (string, error) {
	if handler == nil {
		return "", ErrNilHandler
	}

	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()

	ch, err := c.sup.Channel()
	if err != nil {
		c.log.WithError(err).Warn("mqactor handler stored, subscription deferred until connected")
		return "", err
	}

	return c.subscribe(ch)
}

// Tag returns the consumer tag of the current subscription, or "".
func (c *Consumer) Tag() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tag
}

// CancelConsumer stops the subscription identified by tag. Cancelling the
// current subscription also forgets the handler, so it is not subscribed
// again after a reconnect.
func (c *Consumer) CancelConsumer(tag string) error {
	ch, err := c.sup.Channel()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if tag == c.tag {
		c.handler = nil
		c.tag = ""
		c.ch = nil
	}
	c.mu.Unlock()

	if err := ch.Cancel(tag, false); err != nil {
		c.log.WithError(err).WithField("consumerTag", tag).Error("mqactor failure to cancel consumer")
		return ErrCancelConsumer.wrap(err)
	}

	c.log.WithField("consumerTag", tag).Info("mqactor consumer cancelled")
	return nil
}

// Wait blocks until every delivery goroutine has returned.
func (c *Consumer) Wait() {
	c.wg.Wait()
}

// resubscribe is the reconnect hook: it subscribes the stored handler, if
// any, on the new channel.
func (c *Consumer) resubscribe(ch AMQPChannel) error {
	c.mu.Lock()
	registered := c.handler != nil
	c.mu.Unlock()

	if !registered {
		return nil
	}

	_, err := c.subscribe(ch)
	return err
}

func (c *Consumer) subscribe(ch AMQPChannel) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handler == nil {
		return "", ErrNilHandler
	}

	if c.ch == ch && c.tag != "" {
		return c.tag, nil
	}

	queue := c.sup.cfg.QueueName
	tag := fmt.Sprintf("%s.%s", queue, uuid.NewString())

	deliveries, err := ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		c.log.WithError(err).Errorf("mqactor failure to declare consumer for queue: %s", queue)
		return "", ErrConsume.wrap(err)
	}

	c.tag = tag
	c.ch = ch

	c.wg.Add(1)
	go c.deliver(tag, deliveries)

	c.log.WithField("consumerTag", tag).Infof("mqactor started consuming from queue: %s", queue)
	return tag, nil
}

func (c *Consumer) currentHandler() Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

// deliver runs the handler for each delivery until the broker closes the
// delivery channel (cancel, channel or connection loss).
func (c *Consumer) deliver(tag string, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()

	for d := range deliveries {
		c.handle(d)
	}

	c.log.WithField("consumerTag", tag).Info("mqactor delivery channel closed")
}

func (c *Consumer) handle(d amqp.Delivery) {
	msg := NewMessage(d)
	ctx, span := NewConsumerSpan(c.tracer, d.Headers, d.Type)
	defer span.End()

	log := c.log.WithContext(ctx).WithFields(logrus.Fields{
		"messageID":   msg.Properties.MessageID,
		"deliveryTag": msg.DeliveryTag,
	})

	handler := c.currentHandler()
	if handler == nil {
		log.Warn("mqactor delivery without handler, requeueing")
		_ = msg.Nack(true)
		return
	}

	err := handler(ctx, msg)
	if err == nil {
		span.SetStatus(codes.Ok, "success")
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	log.WithError(err).Error("mqactor handler failed to process message")

	if msg.Settled() {
		return
	}

	if nackErr := msg.Nack(false); nackErr != nil {
		log.WithError(nackErr).Error("mqactor failure to reject message")
	}
}
