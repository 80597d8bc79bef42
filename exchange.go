// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

import amqp "github.com/rabbitmq/amqp091-go"

// ExchangeKind is the AMQP exchange type.
type ExchangeKind string

const (
	DirectExchange ExchangeKind = "direct"
	FanoutExchange ExchangeKind = "fanout"
	TopicExchange  ExchangeKind = "topic"
)

func (k ExchangeKind) String() string {
	return string(k)
}

// ExchangeDefinition describes an exchange to declare.
type ExchangeDefinition struct {
	name    string
	kind    ExchangeKind
	durable bool
	delete  bool
	params  amqp.Table
}

// NewDirectExchange creates a durable direct exchange definition.
func NewDirectExchange(name string) *ExchangeDefinition {
	return &ExchangeDefinition{name: name, kind: DirectExchange, durable: true}
}

// Durable sets the durability flag for the exchange.
func (e *ExchangeDefinition) Durable(d bool) *ExchangeDefinition {
	e.durable = d
	return e
}

// Delete sets the auto-delete flag for the exchange.
func (e *ExchangeDefinition) Delete(d bool) *ExchangeDefinition {
	e.delete = d
	return e
}

// Name returns the exchange name.
func (e *ExchangeDefinition) Name() string {
	return e.name
}

// QueueBindingDefinition binds a queue to an exchange with a routing key.
type QueueBindingDefinition struct {
	queue      string
	exchange   string
	routingKey string
	args       amqp.Table
}

// NewQueueBinding creates an empty queue binding definition.
func NewQueueBinding() *QueueBindingDefinition {
	return &QueueBindingDefinition{}
}

func (b *QueueBindingDefinition) Queue(name string) *QueueBindingDefinition {
	b.queue = name
	return b
}

func (b *QueueBindingDefinition) Exchange(name string) *QueueBindingDefinition {
	b.exchange = name
	return b
}

func (b *QueueBindingDefinition) RoutingKey(key string) *QueueBindingDefinition {
	b.routingKey = key
	return b
}
