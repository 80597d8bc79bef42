// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package dedup

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Purger is implemented by stores whose expired markers must be deleted
// explicitly. Redis expires keys on its own and does not implement it.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

var (
	_ Purger = (*MemoryStore)(nil)
	_ Purger = (*PostgresStore)(nil)
)

// Sweep purges expired markers of store every interval until ctx is done.
// It returns right away when store is not a Purger.
func Sweep(ctx context.Context, store Store, interval time.Duration) {
	p, ok := store.(Purger)
	if !ok {
		return
	}
	if interval <= 0 {
		interval = DefaultTTL
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Purge(ctx)
			if err != nil {
				logrus.WithContext(ctx).WithError(err).Warn("dedup sweep failed")
				continue
			}
			if n > 0 {
				logrus.WithContext(ctx).WithField("removed", n).Debug("dedup expired markers removed")
			}
		}
	}
}
