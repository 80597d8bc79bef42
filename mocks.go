// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// =============================================================================
// MockAMQPChannel - Mock implementation of AMQPChannel interface for testing
// =============================================================================

// DeclaredExchange captures one ExchangeDeclare call.
type DeclaredExchange struct {
	Name    string
	Kind    string
	Durable bool
	Args    amqp.Table
}

// DeclaredQueue captures one QueueDeclare call.
type DeclaredQueue struct {
	Name    string
	Durable bool
	Args    amqp.Table
}

// DeclaredBinding captures one QueueBind call.
type DeclaredBinding struct {
	Queue    string
	Key      string
	Exchange string
}

// PublishedMessage captures the details of a published message
type PublishedMessage struct {
	Exchange   string
	Key        string
	Mandatory  bool
	Immediate  bool
	Publishing amqp.Publishing
}

// MockAMQPChannel is a mock implementation of AMQPChannel interface for testing.
// It is safe for concurrent use. It also acts as the amqp.Acknowledger of
// the deliveries it produces.
type MockAMQPChannel struct {
	mu sync.Mutex

	confirmError         error
	qosError             error
	exchangeDeclareError error
	queueDeclareError    error
	passiveError         error
	queueBindError       error
	consumeError         error
	cancelError          error
	publishError         error
	closeError           error

	confirmMode bool
	closed      bool
	nextTag     uint64

	notifyCloseChannels  []chan *amqp.Error
	notifyCancelChannels []chan string

	exchanges []DeclaredExchange
	queues    []DeclaredQueue
	bindings  []DeclaredBinding
	passive   []string
	published []PublishedMessage

	consumers     map[string]chan amqp.Delivery
	consumerOrder []string
	cancelled     []string

	acked    []uint64
	nacked   []uint64
	requeued []uint64
}

func NewMockAMQPChannel() *MockAMQPChannel {
	return &MockAMQPChannel{
		notifyCloseChannels:  make([]chan *amqp.Error, 0),
		notifyCancelChannels: make([]chan string, 0),
		consumers:            map[string]chan amqp.Delivery{},
	}
}

func (m *MockAMQPChannel) Confirm(noWait bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.confirmError != nil {
		return m.confirmError
	}
	m.confirmMode = true
	return nil
}

func (m *MockAMQPChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.qosError
}

func (m *MockAMQPChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.exchangeDeclareError != nil {
		return m.exchangeDeclareError
	}
	m.exchanges = append(m.exchanges, DeclaredExchange{Name: name, Kind: kind, Durable: durable, Args: copyTable(args)})
	return nil
}

func (m *MockAMQPChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queueDeclareError != nil {
		return amqp.Queue{}, m.queueDeclareError
	}
	m.queues = append(m.queues, DeclaredQueue{Name: name, Durable: durable, Args: copyTable(args)})
	return amqp.Queue{Name: name}, nil
}

func (m *MockAMQPChannel) QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passive = append(m.passive, name)
	if m.passiveError != nil {
		return amqp.Queue{}, m.passiveError
	}
	return amqp.Queue{Name: name}, nil
}

func (m *MockAMQPChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queueBindError != nil {
		return m.queueBindError
	}
	m.bindings = append(m.bindings, DeclaredBinding{Queue: name, Key: key, Exchange: exchange})
	return nil
}

func (m *MockAMQPChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consumeError != nil {
		return nil, m.consumeError
	}
	if m.closed {
		return nil, amqp.ErrClosed
	}
	deliveries := make(chan amqp.Delivery, 16)
	m.consumers[consumer] = deliveries
	m.consumerOrder = append(m.consumerOrder, consumer)
	return deliveries, nil
}

func (m *MockAMQPChannel) Cancel(consumer string, noWait bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelError != nil {
		return m.cancelError
	}
	m.cancelled = append(m.cancelled, consumer)
	if deliveries, ok := m.consumers[consumer]; ok {
		close(deliveries)
		delete(m.consumers, consumer)
	}
	return nil
}

func (m *MockAMQPChannel) PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishError != nil {
		return nil, m.publishError
	}
	m.published = append(m.published, PublishedMessage{
		Exchange:   exchange,
		Key:        key,
		Mandatory:  mandatory,
		Immediate:  immediate,
		Publishing: msg,
	})
	// No broker behind the mock, so no confirmation to wait on.
	return nil, nil
}

func (m *MockAMQPChannel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifyCloseChannels = append(m.notifyCloseChannels, receiver)
	return receiver
}

func (m *MockAMQPChannel) NotifyCancel(receiver chan string) chan string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifyCancelChannels = append(m.notifyCancelChannels, receiver)
	return receiver
}

func (m *MockAMQPChannel) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close closes the channel gracefully: listeners are closed without an error.
func (m *MockAMQPChannel) Close() error {
	m.shutdown(nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeError
}

// TriggerClose simulates a broker initiated channel close with err.
func (m *MockAMQPChannel) TriggerClose(err *amqp.Error) {
	m.shutdown(err)
}

// TriggerCancel simulates a broker initiated consumer cancellation.
func (m *MockAMQPChannel) TriggerCancel(consumer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.notifyCancelChannels {
		select {
		case ch <- consumer:
		default:
		}
	}
}

func (m *MockAMQPChannel) shutdown(err *amqp.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true

	for _, ch := range m.notifyCloseChannels {
		if err != nil {
			select {
			case ch <- err:
			default:
			}
		}
		close(ch)
	}
	for _, ch := range m.notifyCancelChannels {
		close(ch)
	}
	for tag, deliveries := range m.consumers {
		close(deliveries)
		delete(m.consumers, tag)
	}
}

// Deliver pushes a message to the most recent open consumer and returns its
// delivery tag. It returns false when no consumer is subscribed.
func (m *MockAMQPChannel) Deliver(d amqp.Delivery) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.consumerOrder) - 1; i >= 0; i-- {
		tag := m.consumerOrder[i]
		deliveries, ok := m.consumers[tag]
		if !ok {
			continue
		}
		m.nextTag++
		d.DeliveryTag = m.nextTag
		d.ConsumerTag = tag
		d.Acknowledger = m
		deliveries <- d
		return d.DeliveryTag, true
	}
	return 0, false
}

// Ack implements amqp.Acknowledger.
func (m *MockAMQPChannel) Ack(tag uint64, multiple bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, tag)
	return nil
}

// Nack implements amqp.Acknowledger.
func (m *MockAMQPChannel) Nack(tag uint64, multiple bool, requeue bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if requeue {
		m.requeued = append(m.requeued, tag)
	} else {
		m.nacked = append(m.nacked, tag)
	}
	return nil
}

// Reject implements amqp.Acknowledger.
func (m *MockAMQPChannel) Reject(tag uint64, requeue bool) error {
	return m.Nack(tag, false, requeue)
}

// Helper methods for testing
func (m *MockAMQPChannel) SetConfirmError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmError = err
}

func (m *MockAMQPChannel) SetExchangeDeclareError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchangeDeclareError = err
}

func (m *MockAMQPChannel) SetQueueDeclareError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDeclareError = err
}

func (m *MockAMQPChannel) SetPassiveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passiveError = err
}

func (m *MockAMQPChannel) SetQueueBindError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueBindError = err
}

func (m *MockAMQPChannel) SetConsumeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumeError = err
}

func (m *MockAMQPChannel) SetCancelError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelError = err
}

func (m *MockAMQPChannel) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

func (m *MockAMQPChannel) SetCloseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeError = err
}

func (m *MockAMQPChannel) InConfirmMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.confirmMode
}

func (m *MockAMQPChannel) DeclaredExchanges() []DeclaredExchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeclaredExchange(nil), m.exchanges...)
}

func (m *MockAMQPChannel) DeclaredQueues() []DeclaredQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeclaredQueue(nil), m.queues...)
}

func (m *MockAMQPChannel) DeclaredBindings() []DeclaredBinding {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeclaredBinding(nil), m.bindings...)
}

func (m *MockAMQPChannel) PassiveChecks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.passive...)
}

// GetPublishedMessages returns all captured published messages
func (m *MockAMQPChannel) GetPublishedMessages() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedMessage(nil), m.published...)
}

// GetLastPublishedMessage returns the last published message, or nil if none
func (m *MockAMQPChannel) GetLastPublishedMessage() *PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.published) == 0 {
		return nil
	}
	last := m.published[len(m.published)-1]
	return &last
}

// ConsumerTags returns the tags of every Consume call, in order.
func (m *MockAMQPChannel) ConsumerTags() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.consumerOrder...)
}

func (m *MockAMQPChannel) CancelledConsumers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cancelled...)
}

func (m *MockAMQPChannel) Acked() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64(nil), m.acked...)
}

func (m *MockAMQPChannel) Nacked() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64(nil), m.nacked...)
}

func (m *MockAMQPChannel) Requeued() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64(nil), m.requeued...)
}

func copyTable(t amqp.Table) amqp.Table {
	if t == nil {
		return nil
	}
	copied := amqp.Table{}
	for k, v := range t {
		copied[k] = v
	}
	return copied
}

// =============================================================================
// MockRMQConnection - Mock implementation of RMQConnection interface for testing
// =============================================================================

// MockRMQConnection is a mock implementation of RMQConnection interface for testing
type MockRMQConnection struct {
	mu sync.Mutex

	channels       []*MockAMQPChannel
	closed         bool
	closeError     error
	channelError   error
	onChannel      func(*MockAMQPChannel)
	notifyChannels []chan *amqp.Error
	blockedChans   []chan amqp.Blocking
}

func NewMockRMQConnection() *MockRMQConnection {
	return &MockRMQConnection{
		channels:       make([]*MockAMQPChannel, 0),
		notifyChannels: make([]chan *amqp.Error, 0),
	}
}

func (m *MockRMQConnection) Channel() (AMQPChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.channelError != nil {
		return nil, m.channelError
	}
	if m.closed {
		return nil, amqp.ErrClosed
	}
	ch := NewMockAMQPChannel()
	if m.onChannel != nil {
		m.onChannel(ch)
	}
	m.channels = append(m.channels, ch)
	return ch, nil
}

func (m *MockRMQConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifyChannels = append(m.notifyChannels, receiver)
	return receiver
}

func (m *MockRMQConnection) NotifyBlocked(receiver chan amqp.Blocking) chan amqp.Blocking {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockedChans = append(m.blockedChans, receiver)
	return receiver
}

func (m *MockRMQConnection) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close closes the connection gracefully.
func (m *MockRMQConnection) Close() error {
	m.shutdown(nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeError
}

// TriggerClose simulates a lost connection: listeners receive err and
// every channel of the connection is closed with it.
func (m *MockRMQConnection) TriggerClose(err *amqp.Error) {
	m.shutdown(err)
}

// TriggerBlocked simulates broker flow control.
func (m *MockRMQConnection) TriggerBlocked(active bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.blockedChans {
		select {
		case ch <- amqp.Blocking{Active: active, Reason: reason}:
		default:
		}
	}
}

func (m *MockRMQConnection) shutdown(err *amqp.Error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	channels := append([]*MockAMQPChannel(nil), m.channels...)
	for _, ch := range m.notifyChannels {
		if err != nil {
			select {
			case ch <- err:
			default:
			}
		}
		close(ch)
	}
	for _, ch := range m.blockedChans {
		close(ch)
	}
	m.mu.Unlock()

	for _, ch := range channels {
		ch.shutdown(err)
	}
}

// Helper methods for testing
func (m *MockRMQConnection) SetChannelError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channelError = err
}

func (m *MockRMQConnection) SetCloseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeError = err
}

// LastChannel returns the most recently opened channel, or nil.
func (m *MockRMQConnection) LastChannel() *MockAMQPChannel {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.channels) == 0 {
		return nil
	}
	return m.channels[len(m.channels)-1]
}

// =============================================================================
// MockDialer - scripted Dialer for testing
// =============================================================================

// ErrMockDial is the default error of a failing MockDialer.
var ErrMockDial = errors.New("dial tcp: connection refused")

// MockDialer hands out MockRMQConnections and can be scripted to fail.
type MockDialer struct {
	mu sync.Mutex

	attempts  int
	failFirst int
	failAll   bool
	err       error
	configs   []amqp.Config
	conns     []*MockRMQConnection
	onChannel func(*MockAMQPChannel)
}

func NewMockDialer() *MockDialer {
	return &MockDialer{err: ErrMockDial}
}

// FailFirst makes the first n dials fail.
func (d *MockDialer) FailFirst(n int) *MockDialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failFirst = n
	return d
}

// FailAlways makes every dial fail.
func (d *MockDialer) FailAlways() *MockDialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = true
	return d
}

// Recover makes subsequent dials succeed.
func (d *MockDialer) Recover() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = false
	d.failFirst = 0
}

// OnChannel configures every channel opened by later connections.
func (d *MockDialer) OnChannel(fn func(*MockAMQPChannel)) *MockDialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChannel = fn
	return d
}

// Dial implements Dialer.
func (d *MockDialer) Dial(url string, config amqp.Config) (RMQConnection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.attempts++
	d.configs = append(d.configs, config)

	if d.failAll || d.attempts <= d.failFirst {
		return nil, d.err
	}

	conn := NewMockRMQConnection()
	conn.onChannel = d.onChannel
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *MockDialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *MockDialer) Configs() []amqp.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]amqp.Config(nil), d.configs...)
}

// Connections returns every connection handed out, in order.
func (d *MockDialer) Connections() []*MockRMQConnection {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*MockRMQConnection(nil), d.conns...)
}

// LastConnection returns the most recent connection, or nil.
func (d *MockDialer) LastConnection() *MockRMQConnection {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
