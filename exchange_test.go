// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExchangeKind_String(t *testing.T) {
	tests := []struct {
		kind ExchangeKind
		want string
	}{
		{kind: DirectExchange, want: "direct"},
		{kind: FanoutExchange, want: "fanout"},
		{kind: TopicExchange, want: "topic"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
		})
	}
}

func TestNewDirectExchange(t *testing.T) {
	ex := NewDirectExchange("silo_exchange")

	assert.Equal(t, "silo_exchange", ex.Name())
	assert.Equal(t, DirectExchange, ex.kind)
	assert.True(t, ex.durable)
	assert.False(t, ex.delete)
}

func TestExchangeDefinition_FluentChaining(t *testing.T) {
	ex := NewDirectExchange("tmp").Durable(false).Delete(true)

	assert.False(t, ex.durable)
	assert.True(t, ex.delete)
}

func TestQueueBindingDefinition(t *testing.T) {
	b := NewQueueBinding().
		Queue("github.issues").
		Exchange("silo_exchange").
		RoutingKey("github.issue.synced")

	assert.Equal(t, "github.issues", b.queue)
	assert.Equal(t, "silo_exchange", b.exchange)
	assert.Equal(t, "github.issue.synced", b.routingKey)
	assert.Nil(t, b.args)
}
