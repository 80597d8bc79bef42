// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

type (
	// Supervisor owns the broker connection of one queue actor. It opens the
	// connection and confirm-mode channel, declares the actor topology,
	// watches for connection and channel failures and rebuilds everything
	// on failure. Producer and Consumer hold a reference to it.
	Supervisor struct {
		cfg            ActorConfig
		appName        string
		importersQueue string
		topology       *Topology
		heartbeat      time.Duration
		prefetch       int
		reconnection   ReconnectionConfig
		dial           Dialer
		reporter       ErrorReporter
		shutdown       ShutdownFunc
		log            *logrus.Entry

		mu     sync.RWMutex
		h      *handle
		closed bool
		hooks  []reconnectHook

		state        atomic.Int32
		reconnecting atomic.Bool
	}

	// reconnectHook runs against every freshly built channel before a
	// reconnection episode is declared successful.
	reconnectHook func(ch AMQPChannel) error
)

// NewSupervisor creates a supervisor for cfg. It does not connect; call Connect.
func NewSupervisor(cfg ActorConfig, opts ...Option) (*Supervisor, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	s := &Supervisor{
		cfg:            cfg,
		appName:        string(cfg.AppType),
		importersQueue: DefaultImportersQueue,
		heartbeat:      DefaultHeartbeat,
		reconnection:   DefaultReconnectionConfig,
		dial:           DialAMQP,
		reporter:       NewTelemetryReporter(),
		shutdown:       ExitProcess,
		log:            logrus.NewEntry(logrus.StandardLogger()),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.log = s.log.WithFields(logrus.Fields{
		"appType":  cfg.AppType,
		"exchange": cfg.Exchange,
		"queue":    cfg.QueueName,
	})
	s.topology = NewActorTopology(cfg, s.importersQueue)
	s.state.Store(int32(StateDisconnected))

	return s, nil
}

// Config returns the actor configuration with defaults applied.
func (s *Supervisor) Config() ActorConfig {
	return s.cfg
}

// Topology returns the topology declared on every connection.
func (s *Supervisor) Topology() *Topology {
	return s.topology
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
}

// Connect opens the connection through a reconnection episode, so the
// initial connect gets the same bounded retry as a recovery. It returns
// nil right away when the actor is already connected. Cancelling ctx
// aborts the episode without invoking the shutdown collaborator.
func (s *Supervisor) Connect(ctx context.Context) error {
	if s.State() == StateConnected && s.IsHealthy() {
		return nil
	}
	return s.reconnect(ctx, "connect requested")
}

// initializeConnection replaces the current handle with a new one:
// the previous connection is closed best-effort, a new connection is
// dialed with heartbeats, a confirm-mode channel is opened, listeners are
// attached and the topology is declared.
func (s *Supervisor) initializeConnection() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	previous := s.h
	s.h = nil
	s.mu.Unlock()

	if previous != nil {
		if err := previous.close(); err != nil {
			s.log.WithError(err).Debug("mqactor ignoring error closing previous connection")
		}
	}

	s.log.Info("mqactor establishing connection...")

	conn, err := s.dial(s.cfg.BrokerURL, amqp.Config{
		Heartbeat: s.heartbeat,
		Locale:    "en_US",
		Properties: amqp.Table{
			"connection_name": fmt.Sprintf("%s:%s", s.appName, s.cfg.QueueName),
		},
	})
	if err != nil {
		s.log.WithError(err).Error("mqactor failure to connect to the broker")
		return ErrDial.wrap(err)
	}

	h, err := openHandle(conn, s.prefetch)
	if err != nil {
		_ = conn.Close()
		return err
	}

	s.watch(h)

	if err := s.topology.Declare(h.ch); err != nil {
		_ = h.close()
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = h.close()
		return ErrClosed
	}
	s.h = h
	s.mu.Unlock()

	s.log.Info("mqactor connection established successfully")
	return nil
}

// watch follows the notifications of h until it is retired. The first
// close or cancellation of a handle that is still current starts a
// reconnection episode.
func (s *Supervisor) watch(h *handle) {
	connClose, chClose, chCancel, blocked := h.connClose, h.chClose, h.chCancel, h.blocked

	go func() {
		for {
			var reason string
			var cause error

			select {
			case <-h.done:
				return

			case err, ok := <-connClose:
				reason = "connection closed"
				if ok && err != nil {
					cause = err
				}

			case err, ok := <-chClose:
				reason = "channel closed"
				if ok && err != nil {
					cause = err
				}

			case tag, ok := <-chCancel:
				if !ok {
					chCancel = nil
					continue
				}
				reason = fmt.Sprintf("consumer %s cancelled by the broker", tag)

			case b, ok := <-blocked:
				if !ok {
					blocked = nil
					continue
				}
				if b.Active {
					s.log.WithField("reason", b.Reason).Warn("mqactor connection blocked by the broker")
				} else {
					s.log.Info("mqactor connection unblocked by the broker")
				}
				continue
			}

			if h.retired() {
				return
			}

			h.lost.Store(true)
			s.log.WithError(cause).Warnf("mqactor %s unexpectedly", reason)
			s.handleLost(reason)
			return
		}
	}()
}

// handleLost starts an episode for a lost handle. When one is already
// running the loss is picked up when that episode ends.
func (s *Supervisor) handleLost(reason string) {
	if err := s.reconnect(context.Background(), reason); err != nil {
		s.log.WithError(err).Debug("mqactor reconnection after loss did not complete")
	}
}

// onReconnect registers hook to run after every successful initializeConnection.
func (s *Supervisor) onReconnect(hook reconnectHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// replay runs the reconnect hooks against the current channel.
func (s *Supervisor) replay() error {
	s.mu.RLock()
	hooks := make([]reconnectHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.RUnlock()

	if len(hooks) == 0 {
		return nil
	}

	ch, err := s.Channel()
	if err != nil {
		return err
	}

	for _, hook := range hooks {
		if err := hook(ch); err != nil {
			return err
		}
	}

	return nil
}

// Channel returns the current channel.
func (s *Supervisor) Channel() (AMQPChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	if s.h == nil || s.h.ch == nil || s.h.ch.IsClosed() {
		return nil, ErrChannelNotAvailable
	}

	return s.h.ch, nil
}

// IsHealthy checks if both connection and channel are open.
func (s *Supervisor) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed || s.h == nil {
		return false
	}

	return !s.h.lost.Load() && !s.h.conn.IsClosed() && !s.h.ch.IsClosed()
}

// HealthCheck verifies that a channel exists and that the actor queue
// exists on the broker. It is a probe and never repairs anything.
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	ch, err := s.Channel()
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("mqactor health check without channel")
		return err
	}

	q := s.topology.Queue()
	if _, err := ch.QueueDeclarePassive(q.name, q.durable, q.delete, q.exclusive, false, nil); err != nil {
		s.log.WithContext(ctx).WithError(err).Error("mqactor health check failed")
		return ErrHealthCheck.wrap(err)
	}

	s.log.WithContext(ctx).Debug("mqactor health check passed")
	return nil
}

// Close gracefully closes the channel and then the connection. Calling
// it again is a no-op.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	h := s.h
	s.h = nil
	s.mu.Unlock()

	s.setState(StateClosed)

	var err error
	if h != nil {
		if err = h.close(); err != nil {
			s.log.WithError(err).Error("mqactor error closing connection")
		}
	}

	s.log.Info("mqactor connection closed")
	return err
}

func (s *Supervisor) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// currentLost reports whether the current handle was lost, or has gone
// away, while no episode could react to it.
func (s *Supervisor) currentLost() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed || s.h == nil {
		return false
	}
	return s.h.lost.Load() || s.h.conn.IsClosed() || s.h.ch.IsClosed()
}
