// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

import (
	"fmt"
)

// MQActorError represents a custom error type for queue actor operations.
// It encapsulates a message describing the error condition and, optionally,
// the underlying cause.
type MQActorError struct {
	Message string
	Cause   error
}

// NewMQActorError creates a new MQActorError instance with the provided message.
func NewMQActorError(msg string) *MQActorError {
	return &MQActorError{Message: msg}
}

// Error implements the error interface and returns the error message.
func (e *MQActorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *MQActorError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an MQActorError with the same message, which
// lets wrapped sentinels match with errors.Is.
func (e *MQActorError) Is(target error) bool {
	t, ok := target.(*MQActorError)
	if !ok {
		return false
	}
	return t.Message == e.Message
}

// wrap returns a copy of the sentinel carrying cause.
func (e *MQActorError) wrap(cause error) error {
	return &MQActorError{Message: e.Message, Cause: cause}
}

// PublishError is returned by the producer when a message could not be
// handed to the broker. The original failure is preserved as the cause.
type PublishError struct {
	Exchange   string
	RoutingKey string
	Err        error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("mqactor publish to exchange %q with key %q failed: %v", e.Exchange, e.RoutingKey, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// ReconnectError is returned when a reconnection episode exhausted its attempts.
type ReconnectError struct {
	Attempts int
	Err      error
}

func (e *ReconnectError) Error() string {
	return fmt.Sprintf("mqactor reconnection failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ReconnectError) Unwrap() error {
	return e.Err
}

var (
	// ErrInvalidActorConfig is returned when an actor is constructed without a queue or routing key.
	ErrInvalidActorConfig = NewMQActorError("invalid actor configuration")

	// ErrDial wraps a failure to reach or authenticate against the broker.
	ErrDial = NewMQActorError("failure to connect to the broker")

	// ErrOpenChannel wraps a failure to open the channel.
	ErrOpenChannel = NewMQActorError("failure to open the channel")

	// ErrConfirmMode wraps a failure to put the channel in confirm mode.
	ErrConfirmMode = NewMQActorError("failure to put the channel in confirm mode")

	// ErrTopology wraps a failure while declaring exchanges, queues or bindings.
	ErrTopology = NewMQActorError("failure to declare topology")

	// ErrChannelNotAvailable is returned when there is no live channel.
	ErrChannelNotAvailable = NewMQActorError("channel is not available")

	// ErrHealthCheck wraps a failed passive queue check.
	ErrHealthCheck = NewMQActorError("health check failed")

	// ErrClosed is returned by operations on a closed actor.
	ErrClosed = NewMQActorError("actor is closed")

	// ErrReconnectInProgress is returned when a reconnection episode is already running.
	ErrReconnectInProgress = NewMQActorError("reconnection already in progress")

	// ErrNilHandler is returned when StartConsuming is called without a handler.
	ErrNilHandler = NewMQActorError("handler cant be null")

	// ErrConsume wraps a failure to register a consumer on the channel.
	ErrConsume = NewMQActorError("failure to register consumer")

	// ErrCancelConsumer wraps a failure to cancel a consumer.
	ErrCancelConsumer = NewMQActorError("failure to cancel consumer")

	// ErrPublishNotConfirmed is returned when the broker nacks a published message.
	ErrPublishNotConfirmed = NewMQActorError("publish was not confirmed by the broker")

	// ErrMarshal wraps a failure to encode a payload.
	ErrMarshal = NewMQActorError("failure to marshal message")

	// ErrMessageAlreadySettled is returned on a second ack or nack of the same message.
	ErrMessageAlreadySettled = NewMQActorError("message already acknowledged")

	// InvalidDispatchParamsError is returned when invalid parameters are provided to a router registration.
	InvalidDispatchParamsError = NewMQActorError("register dispatch with invalid parameters")

	// ConsumerAlreadyRegisteredForTheMessageError is returned when a handler is already registered for the same route.
	ConsumerAlreadyRegisteredForTheMessageError = NewMQActorError("consumer already registered for the message")

	// ReceivedMessageWithUnformattedHeaderError is returned when a message has no type to route on.
	ReceivedMessageWithUnformattedHeaderError = NewMQActorError("received message with unformatted headers")

	// ErrRetryable indicates that a message processing failed but can be retried later.
	ErrRetryable = NewMQActorError("error to process this message, retry latter")
)
