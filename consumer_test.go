// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectingHandler(out chan<- *Message, ack bool) Handler {
	return func(_ context.Context, msg *Message) error {
		if ack {
			if err := msg.Ack(); err != nil {
				return err
			}
		}
		out <- msg
		return nil
	}
}

func receive(t *testing.T, in <-chan *Message) *Message {
	t.Helper()
	select {
	case msg := <-in:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a delivery")
		return nil
	}
}

func TestConsumer_StartConsumingNilHandler(t *testing.T) {
	a := newTestActor(t, nil)
	_, err := NewConsumer(a.sup).StartConsuming(nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestConsumer_StartConsuming(t *testing.T) {
	a := newTestActor(t, nil)
	ch := a.connect(t)
	consumer := NewConsumer(a.sup)

	received := make(chan *Message, 1)
	tag, err := consumer.StartConsuming(collectingHandler(received, true))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(tag, "github.issues."))
	assert.Equal(t, tag, consumer.Tag())
	assert.Equal(t, []string{tag}, ch.ConsumerTags())

	deliveryTag, ok := ch.Deliver(amqp.Delivery{
		Body:        []byte(`{"number":42}`),
		MessageId:   "m-1",
		ContentType: JsonContentType,
		RoutingKey:  "github.issue.synced",
		Headers:     amqp.Table{"source": "github"},
	})
	require.True(t, ok)

	msg := receive(t, received)
	assert.Equal(t, []byte(`{"number":42}`), msg.Content)
	assert.Equal(t, "m-1", msg.Properties.MessageID)
	assert.Equal(t, "github", msg.Header("source"))
	assert.Equal(t, tag, msg.ConsumerTag)
	assert.Equal(t, deliveryTag, msg.DeliveryTag)
	assert.Equal(t, []uint64{deliveryTag}, ch.Acked())
}

func TestConsumer_SubscribeTwiceOnSameChannel(t *testing.T) {
	a := newTestActor(t, nil)
	ch := a.connect(t)
	consumer := NewConsumer(a.sup)

	handler := collectingHandler(make(chan *Message, 1), true)
	first, err := consumer.StartConsuming(handler)
	require.NoError(t, err)
	second, err := consumer.StartConsuming(handler)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, ch.ConsumerTags(), 1)
}

func TestConsumer_HandlerErrorDeadLetters(t *testing.T) {
	a := newTestActor(t, nil)
	ch := a.connect(t)
	consumer := NewConsumer(a.sup)

	done := make(chan struct{}, 1)
	_, err := consumer.StartConsuming(func(context.Context, *Message) error {
		defer func() { done <- struct{}{} }()
		return errors.New("github api rate limited")
	})
	require.NoError(t, err)

	tag, _ := ch.Deliver(amqp.Delivery{Body: []byte(`{}`)})
	<-done

	require.Eventually(t, func() bool { return len(ch.Nacked()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []uint64{tag}, ch.Nacked())
	assert.Empty(t, ch.Requeued())
	assert.Empty(t, ch.Acked())
}

func TestConsumer_HandlerErrorAfterSettleIsNotNackedAgain(t *testing.T) {
	a := newTestActor(t, nil)
	ch := a.connect(t)
	consumer := NewConsumer(a.sup)

	done := make(chan struct{}, 1)
	_, err := consumer.StartConsuming(func(_ context.Context, msg *Message) error {
		defer func() { done <- struct{}{} }()
		_ = msg.Nack(true)
		return errors.New("handled elsewhere")
	})
	require.NoError(t, err)

	tag, _ := ch.Deliver(amqp.Delivery{Body: []byte(`{}`)})
	<-done

	time.Sleep(2 * testDelay)
	assert.Equal(t, []uint64{tag}, ch.Requeued())
	assert.Empty(t, ch.Nacked())
}

func TestConsumer_NilReturnLeavesMessageUnacked(t *testing.T) {
	a := newTestActor(t, nil)
	ch := a.connect(t)
	consumer := NewConsumer(a.sup)

	received := make(chan *Message, 1)
	_, err := consumer.StartConsuming(collectingHandler(received, false))
	require.NoError(t, err)

	ch.Deliver(amqp.Delivery{Body: []byte(`{}`)})
	msg := receive(t, received)

	time.Sleep(2 * testDelay)
	assert.False(t, msg.Settled())
	assert.Empty(t, ch.Acked())
	assert.Empty(t, ch.Nacked())
	assert.Empty(t, ch.Requeued())
}

func TestConsumer_EmptyContentIsDelivered(t *testing.T) {
	a := newTestActor(t, nil)
	ch := a.connect(t)
	consumer := NewConsumer(a.sup)

	received := make(chan *Message, 1)
	_, err := consumer.StartConsuming(collectingHandler(received, true))
	require.NoError(t, err)

	ch.Deliver(amqp.Delivery{})
	msg := receive(t, received)
	assert.Empty(t, msg.Content)
}

func TestConsumer_HandlerStoredBeforeConnect(t *testing.T) {
	a := newTestActor(t, nil)
	consumer := NewConsumer(a.sup)

	received := make(chan *Message, 1)
	_, err := consumer.StartConsuming(collectingHandler(received, true))
	assert.ErrorIs(t, err, ErrChannelNotAvailable)

	ch := a.connect(t)
	require.Len(t, ch.ConsumerTags(), 1, "stored handler is subscribed by connect")

	ch.Deliver(amqp.Delivery{Body: []byte(`"hello"`)})
	assert.Equal(t, []byte(`"hello"`), receive(t, received).Content)
}

func TestConsumer_ReplayAfterConnectionLoss(t *testing.T) {
	a := newTestActor(t, nil)
	first := a.connect(t)
	consumer := NewConsumer(a.sup)

	received := make(chan *Message, 2)
	firstTag, err := consumer.StartConsuming(collectingHandler(received, true))
	require.NoError(t, err)

	first.Deliver(amqp.Delivery{Body: []byte(`1`)})
	assert.Equal(t, []byte(`1`), receive(t, received).Content)

	a.dialer.LastConnection().TriggerClose(&amqp.Error{Code: amqp.ConnectionForced, Reason: "broker restart"})
	second := a.waitForConnection(t, 2)

	tags := second.ConsumerTags()
	require.Len(t, tags, 1, "handler is subscribed again on the new channel")
	assert.NotEqual(t, firstTag, tags[0])
	assert.Equal(t, tags[0], consumer.Tag())

	second.Deliver(amqp.Delivery{Body: []byte(`2`), Redelivered: true})
	msg := receive(t, received)
	assert.Equal(t, []byte(`2`), msg.Content)
	assert.True(t, msg.Redelivered)
	assert.Len(t, second.Acked(), 1)
}

func TestConsumer_ReplayFailureFailsAttempt(t *testing.T) {
	dialer := NewMockDialer().OnChannel(func(ch *MockAMQPChannel) {
		ch.SetConsumeError(&amqp.Error{Code: amqp.AccessRefused, Reason: "ACCESS_REFUSED"})
	})
	a := newTestActor(t, dialer)
	consumer := NewConsumer(a.sup)

	_, err := consumer.StartConsuming(collectingHandler(make(chan *Message, 1), true))
	require.ErrorIs(t, err, ErrChannelNotAvailable)

	err = a.sup.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConsume)
	assert.Equal(t, 5, a.dialer.Attempts())
	assert.Len(t, a.shutdown.calls(), 1)
}

func TestConsumer_CancelConsumer(t *testing.T) {
	a := newTestActor(t, nil)
	ch := a.connect(t)
	consumer := NewConsumer(a.sup)

	tag, err := consumer.StartConsuming(collectingHandler(make(chan *Message, 1), true))
	require.NoError(t, err)

	require.NoError(t, consumer.CancelConsumer(tag))
	assert.Equal(t, []string{tag}, ch.CancelledConsumers())
	assert.Empty(t, consumer.Tag())

	waited := make(chan struct{})
	go func() {
		consumer.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("delivery goroutine did not stop after cancel")
	}

	// A cancelled handler is not replayed.
	a.dialer.LastConnection().TriggerClose(&amqp.Error{Code: amqp.ConnectionForced})
	second := a.waitForConnection(t, 2)
	assert.Empty(t, second.ConsumerTags())
}

func TestConsumer_CancelConsumerErrors(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		a := newTestActor(t, nil)
		assert.ErrorIs(t, NewConsumer(a.sup).CancelConsumer("tag"), ErrChannelNotAvailable)
	})

	t.Run("broker error", func(t *testing.T) {
		a := newTestActor(t, nil)
		ch := a.connect(t)
		brokerErr := errors.New("channel closed")
		ch.SetCancelError(brokerErr)

		err := NewConsumer(a.sup).CancelConsumer("unknown")
		assert.ErrorIs(t, err, ErrCancelConsumer)
		assert.ErrorIs(t, err, brokerErr)
	})
}
