// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

import (
	"context"
	"encoding/json"
	"reflect"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// JsonContentType is the MIME type used for JSON message content.
const (
	JsonContentType = "application/json"
)

// Producer publishes persistent JSON messages to the actor exchange.
type Producer struct {
	sup    *Supervisor
	tracer trace.Tracer
	log    *logrus.Entry
}

// NewProducer creates a producer bound to sup.
func NewProducer(sup *Supervisor) *Producer {
	return &Producer{
		sup:    sup,
		tracer: otel.Tracer(tracerName),
		log:    sup.log.WithField("role", "producer"),
	}
}

// SendMessage publishes data with headers to the actor exchange. The
// routing key is the optional routingKey argument, falling back to the
// actor routing key.
func (p *Producer) SendMessage(ctx context.Context, data any, headers map[string]any, routingKey ...string) error {
	builder := NewOption().WithHeaders(headers)
	if len(routingKey) > 0 && routingKey[0] != "" {
		builder.WithRoutingKey(routingKey[0])
	}
	return p.Publish(ctx, data, builder.Build()...)
}

// Publish publishes data to the actor exchange. Every message is
// persistent (delivery mode 2) and JSON encoded. On a confirm-mode channel
// it waits for the broker confirmation.
func (p *Producer) Publish(ctx context.Context, data any, options ...*PublishOption) error {
	settings := applyOptions(options)

	exchange := p.sup.cfg.Exchange
	key := settings.routingKey
	if key == "" {
		key = p.sup.cfg.RoutingKey
	}

	byt, err := json.Marshal(data)
	if err != nil {
		p.log.WithContext(ctx).WithError(err).Error("mqactor publisher marshal")
		return &PublishError{Exchange: exchange, RoutingKey: key, Err: ErrMarshal.wrap(err)}
	}

	headers := amqp.Table{}
	for k, v := range settings.headers {
		headers[k] = v
	}

	ctx, span := NewProducerSpan(ctx, p.tracer, headers, exchange)
	defer span.End()

	mID, err := uuid.NewV7()
	if err != nil {
		mID = uuid.New()
	}

	ch, err := p.sup.Channel()
	if err != nil {
		span.RecordError(err)
		p.log.WithContext(ctx).WithError(err).Error("mqactor publisher without channel")
		return &PublishError{Exchange: exchange, RoutingKey: key, Err: err}
	}

	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		Headers:       headers,
		Type:          messageType(data),
		ContentType:   JsonContentType,
		DeliveryMode:  amqp.Persistent,
		MessageId:     mID.String(),
		CorrelationId: settings.correlationID,
		Expiration:    settings.expiration,
		AppId:         p.sup.appName,
		Timestamp:     time.Now().UTC(),
		Body:          byt,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.log.WithContext(ctx).WithError(err).WithField("messageID", mID.String()).Error("mqactor failure to publish")
		return &PublishError{Exchange: exchange, RoutingKey: key, Err: err}
	}

	if dc != nil {
		acked, err := dc.WaitContext(ctx)
		if err != nil {
			span.RecordError(err)
			return &PublishError{Exchange: exchange, RoutingKey: key, Err: err}
		}
		if !acked {
			span.SetStatus(codes.Error, "nack")
			return &PublishError{Exchange: exchange, RoutingKey: key, Err: ErrPublishNotConfirmed}
		}
	}

	span.SetStatus(codes.Ok, "published")
	p.log.WithContext(ctx).WithField("messageID", mID.String()).Debug("mqactor message published")
	return nil
}

// messageType names the Go type of v without pointer indirections; the
// router resolves handlers with the same name.
func messageType(v any) string {
	if v == nil {
		return ""
	}

	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}
