// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
)

// reconnect runs one reconnection episode: up to MaxAttempts calls to
// initializeConnection, each followed by the reconnect hooks, with a fixed
// delay between attempts. Only one episode runs at a time; a concurrent
// call returns ErrReconnectInProgress. When every attempt fails the
// supervisor moves to StateFatallyFailed and invokes the shutdown
// collaborator.
func (s *Supervisor) reconnect(ctx context.Context, reason string) error {
	if !s.reconnecting.CompareAndSwap(false, true) {
		s.log.WithField("reason", reason).Debug("mqactor reconnection already in progress")
		return ErrReconnectInProgress
	}

	err := s.runEpisode(ctx, reason)
	s.reconnecting.Store(false)

	// A handle lost while the guard was held could not start its own
	// episode, so it is picked up here.
	if err == nil && s.currentLost() {
		go s.handleLost("connection lost during reconnection")
	}

	return err
}

func (s *Supervisor) runEpisode(ctx context.Context, reason string) error {
	if s.isClosed() {
		return ErrClosed
	}

	if s.State() == StateDisconnected {
		s.setState(StateConnecting)
	} else {
		s.setState(StateReconnecting)
	}

	s.log.WithField("reason", reason).Info("mqactor starting reconnection...")

	maxAttempts := s.reconnection.MaxAttempts

	// The policy only follows cancellation of ctx. A deadline on ctx would
	// make the policy stop as soon as the next delay no longer fits, which
	// must not count as exhausting the attempts.
	waitCtx, cancelWait := context.WithCancel(context.Background())
	stopWait := context.AfterFunc(ctx, cancelWait)
	defer func() {
		stopWait()
		cancelWait()
	}()

	attempt := 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.reconnection.Delay), uint64(maxAttempts)),
		waitCtx,
	)

	operation := func() error {
		if s.isClosed() {
			return backoff.Permanent(ErrClosed)
		}
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		attempt++
		s.log.WithField("attempt", attempt).Info("mqactor attempting connection...")

		err := s.initializeConnection()
		if err == nil {
			err = s.replay()
		} else if errors.Is(err, ErrClosed) {
			return backoff.Permanent(err)
		}
		if err == nil {
			return nil
		}

		s.reportFailure(ctx, attempt, err)
		if attempt >= maxAttempts {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		s.log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   next,
		}).Warn("mqactor waiting before next connection attempt")
	}

	err := backoff.RetryNotify(operation, policy, notify)
	switch {
	case err == nil:
		s.setState(StateConnected)
		s.log.WithField("attempt", attempt).Info("mqactor reconnection successful")
		return nil

	case errors.Is(err, ErrClosed):
		s.log.Info("mqactor reconnection aborted, actor closed")
		return ErrClosed

	case attempt < maxAttempts:
		// Stopped before the ceiling: only cancellation of ctx gets here.
		cause := ctx.Err()
		if cause == nil {
			cause = err
		}
		s.dropHandle()
		s.setState(StateDisconnected)
		s.log.WithError(cause).Warn("mqactor reconnection cancelled")
		return cause
	}

	s.dropHandle()
	s.setState(StateFatallyFailed)

	shutdownReason := fmt.Sprintf(
		"mqactor could not reconnect queue %s on exchange %s after %d attempts: %v",
		s.cfg.QueueName, s.cfg.Exchange, attempt, err,
	)
	s.log.WithError(err).WithField("attempts", attempt).Error("mqactor exceeded maximum reconnection attempts")
	s.shutdown(shutdownReason)

	return &ReconnectError{Attempts: attempt, Err: err}
}

// reportFailure logs a failed attempt and hands it to the error reporter.
func (s *Supervisor) reportFailure(ctx context.Context, attempt int, err error) {
	s.log.WithError(err).WithField("attempt", attempt).Error("mqactor connection attempt failed")
	s.reporter.Report(ctx, fmt.Errorf("mqactor connection attempt %d for queue %s: %w", attempt, s.cfg.QueueName, err), map[string]any{
		"attempt":  attempt,
		"queue":    s.cfg.QueueName,
		"exchange": s.cfg.Exchange,
		"appType":  string(s.cfg.AppType),
	})
}

// dropHandle closes and forgets the current handle, if any.
func (s *Supervisor) dropHandle() {
	s.mu.Lock()
	h := s.h
	s.h = nil
	s.mu.Unlock()

	if h != nil {
		_ = h.close()
	}
}
