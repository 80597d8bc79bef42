// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// AppType discriminates which family of queues an actor serves.
type AppType string

const (
	AppTypeSiloAPI          AppType = "silo-api"
	AppTypeExtension        AppType = "extension"
	AppTypeIntegrationTasks AppType = "integration-tasks"
)

const (
	// DefaultBrokerURL is used when the actor configuration has no broker URL.
	DefaultBrokerURL = "amqp://localhost"

	// DefaultHeartbeat is the broker heartbeat interval.
	DefaultHeartbeat = 30 * time.Second
)

var defaultExchanges = map[AppType]string{
	AppTypeSiloAPI:          "silo_exchange",
	AppTypeExtension:        "silo_extensions_exchange",
	AppTypeIntegrationTasks: "integration_tasks_exchange",
}

// ActorConfig is the identity of one queue actor. It is fixed at construction.
type ActorConfig struct {
	AppType    AppType
	Exchange   string
	QueueName  string
	RoutingKey string
	BrokerURL  string
}

// withDefaults fills the optional fields and validates the required ones.
func (c ActorConfig) withDefaults() (ActorConfig, error) {
	if c.QueueName == "" || c.RoutingKey == "" {
		return c, ErrInvalidActorConfig.wrap(fmt.Errorf("queue name and routing key are required"))
	}

	if c.AppType == "" {
		c.AppType = AppTypeSiloAPI
	}

	if c.Exchange == "" {
		exchange, ok := defaultExchanges[c.AppType]
		if !ok {
			return c, ErrInvalidActorConfig.wrap(fmt.Errorf("unknown app type %q and no exchange", c.AppType))
		}
		c.Exchange = exchange
	}

	if c.BrokerURL == "" {
		c.BrokerURL = DefaultBrokerURL
	}

	return c, nil
}

// ReconnectionConfig holds the bounded retry policy of a reconnection episode.
type ReconnectionConfig struct {
	MaxAttempts int           // Attempts per episode before shutdown
	Delay       time.Duration // Fixed delay between attempts
}

// DefaultReconnectionConfig retries five times, five seconds apart.
var DefaultReconnectionConfig = ReconnectionConfig{
	MaxAttempts: 5,
	Delay:       5 * time.Second,
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithImportersQueue sets the queue name excluded from the dead-letter policy.
func WithImportersQueue(name string) Option {
	return func(s *Supervisor) {
		s.importersQueue = name
	}
}

// WithReconnection overrides the reconnection policy.
func WithReconnection(cfg ReconnectionConfig) Option {
	return func(s *Supervisor) {
		if cfg.MaxAttempts > 0 {
			s.reconnection.MaxAttempts = cfg.MaxAttempts
		}
		if cfg.Delay > 0 {
			s.reconnection.Delay = cfg.Delay
		}
	}
}

// WithHeartbeat overrides the broker heartbeat interval.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// WithPrefetch sets the channel prefetch count. Zero leaves it unlimited.
func WithPrefetch(count int) Option {
	return func(s *Supervisor) {
		s.prefetch = count
	}
}

// WithDialer replaces the broker dialer.
func WithDialer(d Dialer) Option {
	return func(s *Supervisor) {
		if d != nil {
			s.dial = d
		}
	}
}

// WithErrorReporter sets the collaborator notified of every failed reconnection attempt.
func WithErrorReporter(r ErrorReporter) Option {
	return func(s *Supervisor) {
		if r != nil {
			s.reporter = r
		}
	}
}

// WithShutdown sets the collaborator invoked when reconnection is exhausted.
func WithShutdown(fn ShutdownFunc) Option {
	return func(s *Supervisor) {
		if fn != nil {
			s.shutdown = fn
		}
	}
}

// WithLogger sets the logger entry. Actor fields are added to it.
func WithLogger(entry *logrus.Entry) Option {
	return func(s *Supervisor) {
		if entry != nil {
			s.log = entry
		}
	}
}

// WithAppName sets the name advertised to the broker and stamped on published messages.
func WithAppName(name string) Option {
	return func(s *Supervisor) {
		s.appName = name
	}
}
