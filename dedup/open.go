// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package dedup

import (
	"context"
	"fmt"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Open returns the Store for backend. url is the Redis URL or the
// Postgres DSN and is ignored by the memory backend.
func Open(ctx context.Context, backend, url string) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		return OpenRedis(ctx, url)
	case BackendPostgres:
		return OpenPostgres(ctx, url)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
