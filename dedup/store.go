// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

// Package dedup keeps short lived markers used to drop duplicate deliveries
// and to break sync loops between two systems that mirror each other.
//
// A sync worker that writes an entity to the other side marks it first;
// the echo event that comes back for that entity consumes the marker and
// is skipped instead of being synced again.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTTL is how long a marker lives when no TTL is configured.
const DefaultTTL = 60 * time.Second

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("dedup: unknown backend")

// Store is a set of expiring keys.
type Store interface {
	// Claim sets key if it is absent and reports whether this call set it.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Mark sets key, replacing any existing marker and its expiry.
	Mark(ctx context.Context, key string, ttl time.Duration) error

	// Consume deletes key and reports whether it was present and unexpired.
	Consume(ctx context.Context, key string) (bool, error)

	Close() error
}

// IssueKey is the marker of an issue mirrored from provider, e.g.
// IssueKey("gh", "42") is "silo:issue:gh:42".
func IssueKey(provider, id string) string {
	return fmt.Sprintf("silo:issue:%s:%s", provider, id)
}

// CommentKey is the marker of an issue comment mirrored from provider.
func CommentKey(provider, id string) string {
	return fmt.Sprintf("silo:issue-comment:%s:%s", provider, id)
}

// MessageKey is the claim key of a delivery with messageID.
func MessageKey(messageID string) string {
	return "msg:" + messageID
}
