// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// DeadLetterExchange is the direct exchange every non importers queue dead-letters into.
	DeadLetterExchange = "dlx_exchange"

	// DeadLetterRoutingKey is the routing key used from the dead-letter exchange to the dead-letter queue.
	DeadLetterRoutingKey = "dlx_routing_key"

	// DefaultImportersQueue is the queue excluded from the dead-letter policy
	// when no other name is configured.
	DefaultImportersQueue = "importers"
)

// QueueDefinition represents the configuration of a RabbitMQ queue.
// It encapsulates the queue name, durability and the dead-letter routing
// applied when messages are rejected or expire.
type QueueDefinition struct {
	name       string
	durable    bool
	delete     bool
	exclusive  bool
	withDLX    bool
	dlxName    string
	dlxRouting string
}

// NewQueue creates a new queue definition with the given name.
// By default, queues are durable, not auto-deleted, and not exclusive.
//
// Example usage:
//
//	queueDef := mqactor.NewQueue("jobs").WithDeadLetter(mqactor.DeadLetterExchange, mqactor.DeadLetterRoutingKey)
//
// Note: if the queue already exists on the broker with different
// arguments the declaration fails with a channel level error, so the
// arguments must stay stable across releases.
func NewQueue(name string) *QueueDefinition {
	return &QueueDefinition{name: name, durable: true}
}

// Durable sets the durability flag for the queue.
// Durable queues survive broker restarts.
func (q *QueueDefinition) Durable(d bool) *QueueDefinition {
	q.durable = d
	return q
}

// Delete sets the auto-delete flag for the queue.
func (q *QueueDefinition) Delete(d bool) *QueueDefinition {
	q.delete = d
	return q
}

// Exclusive sets the exclusive flag for the queue.
func (q *QueueDefinition) Exclusive(e bool) *QueueDefinition {
	q.exclusive = e
	return q
}

// WithDeadLetter routes rejected and expired messages to exchange with routingKey.
func (q *QueueDefinition) WithDeadLetter(exchange, routingKey string) *QueueDefinition {
	q.withDLX = true
	q.dlxName = exchange
	q.dlxRouting = routingKey
	return q
}

// Name returns the name of the queue.
func (q *QueueDefinition) Name() string {
	return q.name
}

// DLQName returns the name of the dead-letter queue paired with this queue.
// The name follows the pattern "<queue-name>.dlx".
func (q *QueueDefinition) DLQName() string {
	return fmt.Sprintf("%s.dlx", q.name)
}

// HasDeadLetter reports whether the queue dead-letters into an exchange.
func (q *QueueDefinition) HasDeadLetter() bool {
	return q.withDLX
}

// Args returns the queue arguments sent with the declaration.
// It returns nil for a queue without dead-lettering.
func (q *QueueDefinition) Args() amqp.Table {
	if !q.withDLX {
		return nil
	}

	return amqp.Table{
		"x-dead-letter-exchange":    q.dlxName,
		"x-dead-letter-routing-key": q.dlxRouting,
	}
}
