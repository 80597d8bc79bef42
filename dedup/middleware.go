// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package dedup

import (
	"context"
	"time"

	"github.com/goxkit/mqactor"
	"github.com/sirupsen/logrus"
)

type (
	// Middleware decorates a handler.
	Middleware func(next mqactor.Handler) mqactor.Handler

	// KeyFunc derives a marker key from a delivery. An empty key skips the check.
	KeyFunc func(msg *mqactor.Message) string
)

// Chain wraps h with mws. The first middleware runs first.
func Chain(h mqactor.Handler, mws ...Middleware) mqactor.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Idempotent drops redeliveries of a message that was already handled.
// The message id is claimed for ttl before next runs; a message that is
// already claimed is acked and skipped. When next does not ack the message
// the claim is released, so a requeued message is processed again.
// Store failures are logged and the message is processed anyway.
func Idempotent(store Store, ttl time.Duration) Middleware {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return func(next mqactor.Handler) mqactor.Handler {
		return func(ctx context.Context, msg *mqactor.Message) error {
			id := msg.Properties.MessageID
			if id == "" {
				return next(ctx, msg)
			}

			log := logrus.WithContext(ctx).WithField("messageID", id)
			key := MessageKey(id)

			claimed, err := store.Claim(ctx, key, ttl)
			if err != nil {
				log.WithError(err).Warn("dedup claim failed, processing message anyway")
				return next(ctx, msg)
			}

			if !claimed {
				log.Info("dedup duplicate delivery skipped")
				return msg.Ack()
			}

			err = next(ctx, msg)
			if !msg.Acked() {
				if _, releaseErr := store.Consume(ctx, key); releaseErr != nil {
					log.WithError(releaseErr).Warn("dedup failure to release claim")
				}
			}
			return err
		}
	}
}

// SkipEcho acks and skips deliveries whose marker was set by our own
// outbound sync, consuming the marker. Everything else goes to next.
func SkipEcho(store Store, keyFunc KeyFunc) Middleware {
	return func(next mqactor.Handler) mqactor.Handler {
		return func(ctx context.Context, msg *mqactor.Message) error {
			key := keyFunc(msg)
			if key == "" {
				return next(ctx, msg)
			}

			log := logrus.WithContext(ctx).WithField("key", key)

			found, err := store.Consume(ctx, key)
			if err != nil {
				log.WithError(err).Warn("dedup echo check failed, processing message anyway")
				return next(ctx, msg)
			}

			if found {
				log.Info("dedup sync echo skipped")
				return msg.Ack()
			}

			return next(ctx, msg)
		}
	}
}

// HeaderKey reads the marker key from a message header.
func HeaderKey(header string) KeyFunc {
	return func(msg *mqactor.Message) string {
		return msg.Header(header)
	}
}
