// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

import (
	"github.com/sirupsen/logrus"
)

// Topology is the set of exchanges, queues and bindings one actor needs.
// It is declared on every fresh channel, so all declarations use stable
// arguments and are no-ops against an unchanged broker.
type Topology struct {
	deadLetterExchange *ExchangeDefinition
	deadLetterQueue    *QueueDefinition
	deadLetterBinding  *QueueBindingDefinition

	queue    *QueueDefinition
	exchange *ExchangeDefinition
	binding  *QueueBindingDefinition
}

// NewActorTopology builds the topology for cfg. Every queue except
// importersQueue dead-letters into DeadLetterExchange, whose queue is
// "<queue>.dlx" bound with DeadLetterRoutingKey.
func NewActorTopology(cfg ActorConfig, importersQueue string) *Topology {
	t := &Topology{
		queue:    NewQueue(cfg.QueueName),
		exchange: NewDirectExchange(cfg.Exchange),
		binding: NewQueueBinding().
			Queue(cfg.QueueName).
			Exchange(cfg.Exchange).
			RoutingKey(cfg.RoutingKey),
	}

	if cfg.QueueName == importersQueue {
		return t
	}

	t.queue.WithDeadLetter(DeadLetterExchange, DeadLetterRoutingKey)
	t.deadLetterExchange = NewDirectExchange(DeadLetterExchange)
	t.deadLetterQueue = NewQueue(t.queue.DLQName())
	t.deadLetterBinding = NewQueueBinding().
		Queue(t.queue.DLQName()).
		Exchange(DeadLetterExchange).
		RoutingKey(DeadLetterRoutingKey)

	return t
}

// Queue returns the primary queue definition.
func (t *Topology) Queue() *QueueDefinition {
	return t.queue
}

// DeadLetterQueue returns the dead-letter queue definition, or nil for
// the importers queue.
func (t *Topology) DeadLetterQueue() *QueueDefinition {
	return t.deadLetterQueue
}

// Declare applies the topology on ch in dependency order:
//  1. dead-letter exchange, dead-letter queue and their binding (skipped for the importers queue)
//  2. the primary queue, with dead-letter arguments when applicable
//  3. the actor exchange
//  4. the binding from the actor exchange to the primary queue
func (t *Topology) Declare(ch AMQPChannel) error {
	if ch == nil {
		return ErrChannelNotAvailable
	}

	if t.deadLetterExchange != nil {
		logrus.Infof("mqactor declaring dead-letter topology for queue: %s ...", t.queue.name)

		if err := declareExchange(ch, t.deadLetterExchange); err != nil {
			return err
		}
		if err := declareQueue(ch, t.deadLetterQueue); err != nil {
			return err
		}
		if err := bindQueue(ch, t.deadLetterBinding); err != nil {
			return err
		}
	}

	if err := declareQueue(ch, t.queue); err != nil {
		return err
	}

	if err := declareExchange(ch, t.exchange); err != nil {
		return err
	}

	if err := bindQueue(ch, t.binding); err != nil {
		return err
	}

	logrus.Infof("mqactor topology declared for queue: %s", t.queue.name)
	return nil
}

func declareExchange(ch AMQPChannel, exch *ExchangeDefinition) error {
	if err := ch.ExchangeDeclare(exch.name, exch.kind.String(), exch.durable, exch.delete, false, false, exch.params); err != nil {
		logrus.WithError(err).Errorf("mqactor failure to declare exchange: %s", exch.name)
		return ErrTopology.wrap(err)
	}
	return nil
}

func declareQueue(ch AMQPChannel, queue *QueueDefinition) error {
	if _, err := ch.QueueDeclare(queue.name, queue.durable, queue.delete, queue.exclusive, false, queue.Args()); err != nil {
		logrus.WithError(err).Errorf("mqactor failure to declare queue: %s", queue.name)
		return ErrTopology.wrap(err)
	}
	return nil
}

func bindQueue(ch AMQPChannel, bind *QueueBindingDefinition) error {
	if err := ch.QueueBind(bind.queue, bind.routingKey, bind.exchange, false, bind.args); err != nil {
		logrus.WithError(err).Errorf("mqactor failure to bind queue: %s to exchange: %s", bind.queue, bind.exchange)
		return ErrTopology.wrap(err)
	}
	return nil
}
