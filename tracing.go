// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation name used for every span this package starts.
const tracerName = "mqactor"

// AMQPPropagator carries W3C trace context and baggage in message headers.
var AMQPPropagator = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})

// AMQPHeader adapts AMQP headers to a propagation.TextMapCarrier.
// Keys are stored lower-cased.
type AMQPHeader map[string]interface{}

// Set stores value under the lower-cased key.
func (h AMQPHeader) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Get returns the string stored under the lower-cased key, or "" when
// the value is absent or not a string.
func (h AMQPHeader) Get(key string) string {
	value, ok := h[strings.ToLower(key)]
	if !ok {
		return ""
	}

	s, ok := value.(string)
	if !ok {
		return ""
	}
	return s
}

// Keys returns the header keys in sorted order.
func (h AMQPHeader) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NewConsumerSpan starts a consumer span parented on the trace context found in headers.
func NewConsumerSpan(tracer trace.Tracer, headers amqp.Table, typ string) (context.Context, trace.Span) {
	carrier := AMQPHeader{}
	for k, v := range headers {
		carrier[strings.ToLower(k)] = v
	}

	ctx := AMQPPropagator.Extract(context.Background(), carrier)
	return tracer.Start(ctx, fmt.Sprintf("consume %s", typ), trace.WithSpanKind(trace.SpanKindConsumer))
}

// NewProducerSpan starts a producer span and injects its context into headers.
func NewProducerSpan(ctx context.Context, tracer trace.Tracer, headers amqp.Table, exchange string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("publish %s", exchange), trace.WithSpanKind(trace.SpanKindProducer))
	AMQPPropagator.Inject(ctx, AMQPHeader(headers))
	return ctx, span
}
