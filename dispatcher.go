// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	ConsumerDefinitionByType ConsumerDefinitionType = iota + 1
	ConsumerDefinitionByRoutingKey
)

type (
	ConsumerDefinitionType int

	// ConsumerHandler is a typed message handler. It receives a pointer to a
	// freshly decoded value of the registered type and the delivery metadata.
	ConsumerHandler = func(ctx context.Context, msg any, metadata *DeliveryMetadata) error

	// ConsumerDefinition ties a route to a message type and handler.
	ConsumerDefinition struct {
		typ        ConsumerDefinitionType
		routingKey string
		msgType    string
		reflect    reflect.Type
		handler    ConsumerHandler
	}

	// DeliveryMetadata contains metadata extracted from a delivered message.
	DeliveryMetadata struct {
		MessageID      string
		Type           string
		OriginExchange string
		RoutingKey     string
		Redelivered    bool
		Headers        map[string]interface{}
	}

	// Dispatcher routes the messages of one queue to typed handlers. Its
	// Handle method is a Handler, so it plugs into Consumer.StartConsuming.
	//
	// A handled message is acked; a handler error wrapping ErrRetryable
	// requeues it; any other handler error is returned so the consumer
	// dead-letters it; undecodable content is dead-lettered; messages
	// with no matching route are acked and dropped.
	Dispatcher struct {
		mu           sync.RWMutex
		byType       map[string]*ConsumerDefinition
		byRoutingKey map[string]*ConsumerDefinition
	}
)

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		byType:       map[string]*ConsumerDefinition{},
		byRoutingKey: map[string]*ConsumerDefinition{},
	}
}

// RegisterByType routes messages whose type property names msg's type.
func (d *Dispatcher) RegisterByType(msg any, handler ConsumerHandler) error {
	if msg == nil || handler == nil {
		logrus.Error("mqactor invalid parameters to register consumer")
		return InvalidDispatchParamsError
	}

	msgType := messageType(msg)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byType[msgType]; ok {
		logrus.Error("mqactor consumer already registered for this message")
		return ConsumerAlreadyRegisteredForTheMessageError
	}

	d.byType[msgType] = &ConsumerDefinition{
		typ:     ConsumerDefinitionByType,
		msgType: msgType,
		reflect: elemType(msg),
		handler: handler,
	}

	return nil
}

// RegisterByRoutingKey routes messages delivered with routingKey, decoding them as msg's type.
func (d *Dispatcher) RegisterByRoutingKey(routingKey string, msg any, handler ConsumerHandler) error {
	if msg == nil || handler == nil || routingKey == "" {
		logrus.Error("mqactor invalid parameters to register consumer")
		return InvalidDispatchParamsError
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byRoutingKey[routingKey]; ok {
		logrus.Error("mqactor consumer already registered for this routing key")
		return ConsumerAlreadyRegisteredForTheMessageError
	}

	d.byRoutingKey[routingKey] = &ConsumerDefinition{
		typ:        ConsumerDefinitionByRoutingKey,
		routingKey: routingKey,
		msgType:    messageType(msg),
		reflect:    elemType(msg),
		handler:    handler,
	}

	return nil
}

// Handle implements Handler.
func (d *Dispatcher) Handle(ctx context.Context, msg *Message) error {
	metadata := extractMetadata(msg)

	def, err := d.route(metadata)
	if err != nil {
		logrus.
			WithContext(ctx).
			WithField("messageID", metadata.MessageID).
			Warnf("mqactor no consumer found for message type: %s", metadata.Type)
		return msg.Ack()
	}

	logrus.
		WithContext(ctx).
		WithField("messageID", metadata.MessageID).
		Debugf("mqactor received message: %s", def.msgType)

	ptr := reflect.New(def.reflect).Interface()
	if err := msg.Decode(ptr); err != nil {
		logrus.
			WithContext(ctx).
			WithError(err).
			WithField("messageID", metadata.MessageID).
			Errorf("mqactor unmarshal error: %s", def.msgType)
		return msg.Nack(false)
	}

	if err := def.handler(ctx, ptr, metadata); err != nil {
		if errors.Is(err, ErrRetryable) {
			logrus.
				WithContext(ctx).
				WithField("messageID", metadata.MessageID).
				Warn("mqactor send message to process latter")
			return msg.Nack(true)
		}
		return err
	}

	logrus.
		WithContext(ctx).
		WithField("messageID", metadata.MessageID).
		Debug("mqactor message processed properly")
	return msg.Ack()
}

// route prefers an exact type match, then the routing key.
func (d *Dispatcher) route(metadata *DeliveryMetadata) (*ConsumerDefinition, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if metadata.Type != "" {
		if def, ok := d.byType[metadata.Type]; ok {
			return def, nil
		}
	}

	if def, ok := d.byRoutingKey[metadata.RoutingKey]; ok {
		return def, nil
	}

	if metadata.Type == "" {
		return nil, ReceivedMessageWithUnformattedHeaderError
	}
	return nil, fmt.Errorf("mqactor no consumer found for message type: %s", metadata.Type)
}

func extractMetadata(msg *Message) *DeliveryMetadata {
	return &DeliveryMetadata{
		MessageID:      msg.Properties.MessageID,
		Type:           msg.Properties.Type,
		OriginExchange: msg.Exchange,
		RoutingKey:     msg.RoutingKey,
		Redelivered:    msg.Redelivered,
		Headers:        msg.Headers,
	}
}

func elemType(v any) reflect.Type {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
