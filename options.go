// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

type (
	OptionKey string

	// PublishOption is one publishing option. Build them with NewOption.
	PublishOption struct {
		Key   OptionKey
		Value any
	}

	OptionsBuilder struct {
		options []*PublishOption
	}
)

const (
	OptionHeadersKey       OptionKey = "Headers"
	OptionRoutingKeyKey    OptionKey = "RoutingKey"
	OptionCorrelationIDKey OptionKey = "CorrelationID"
	OptionExpirationKey    OptionKey = "Expiration"
)

func NewOption() *OptionsBuilder {
	return &OptionsBuilder{options: []*PublishOption{}}
}

func (b *OptionsBuilder) WithOption(option *PublishOption) *OptionsBuilder {
	b.options = append(b.options, option)
	return b
}

// WithHeaders adds caller metadata sent as AMQP headers.
func (b *OptionsBuilder) WithHeaders(headers map[string]any) *OptionsBuilder {
	b.options = append(b.options, &PublishOption{Key: OptionHeadersKey, Value: headers})
	return b
}

// WithRoutingKey overrides the actor routing key for one message.
func (b *OptionsBuilder) WithRoutingKey(key string) *OptionsBuilder {
	b.options = append(b.options, &PublishOption{Key: OptionRoutingKeyKey, Value: key})
	return b
}

func (b *OptionsBuilder) WithCorrelationID(id string) *OptionsBuilder {
	b.options = append(b.options, &PublishOption{Key: OptionCorrelationIDKey, Value: id})
	return b
}

// WithExpiration sets the per-message TTL in milliseconds, as a string.
func (b *OptionsBuilder) WithExpiration(ms string) *OptionsBuilder {
	b.options = append(b.options, &PublishOption{Key: OptionExpirationKey, Value: ms})
	return b
}

func (b *OptionsBuilder) Build() []*PublishOption {
	return b.options
}

// publishSettings is the result of folding a list of options.
type publishSettings struct {
	headers       map[string]any
	routingKey    string
	correlationID string
	expiration    string
}

func applyOptions(options []*PublishOption) publishSettings {
	var s publishSettings
	for _, opt := range options {
		if opt == nil {
			continue
		}

		switch opt.Key {
		case OptionHeadersKey:
			if h, ok := opt.Value.(map[string]any); ok {
				if s.headers == nil {
					s.headers = map[string]any{}
				}
				for k, v := range h {
					s.headers[k] = v
				}
			}
		case OptionRoutingKeyKey:
			s.routingKey, _ = opt.Value.(string)
		case OptionCorrelationIDKey:
			s.correlationID, _ = opt.Value.(string)
		case OptionExpirationKey:
			s.expiration, _ = opt.Value.(string)
		}
	}
	return s
}
