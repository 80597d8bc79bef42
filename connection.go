// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

type (
	// RMQConnection defines the interface for a RabbitMQ connection.
	// It abstracts the underlying AMQP connection and provides methods
	// for creating channels, observing connection events and closing the connection.
	RMQConnection interface {
		// Channel opens a new channel on the connection.
		Channel() (AMQPChannel, error)

		// NotifyClose registers a listener for connection close events.
		// The listener receives the error that caused the close, or is closed
		// without a value on a graceful shutdown.
		NotifyClose(receiver chan *amqp.Error) chan *amqp.Error

		// NotifyBlocked registers a listener for broker flow control notifications.
		NotifyBlocked(receiver chan amqp.Blocking) chan amqp.Blocking

		// IsClosed checks if the connection is closed.
		IsClosed() bool

		// Close gracefully closes the connection and all its channels.
		Close() error
	}

	// Dialer opens a broker connection. It is swapped in tests.
	Dialer func(url string, config amqp.Config) (RMQConnection, error)

	// amqpConnection adapts *amqp.Connection to RMQConnection.
	amqpConnection struct {
		*amqp.Connection
	}
)

// Channel opens a channel on the wrapped connection.
func (c *amqpConnection) Channel() (AMQPChannel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// DialAMQP is the default Dialer backed by amqp091.
func DialAMQP(url string, config amqp.Config) (RMQConnection, error) {
	conn, err := amqp.DialConfig(url, config)
	if err != nil {
		return nil, err
	}
	return &amqpConnection{conn}, nil
}
