// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goxkit/mqactor"
	"github.com/sirupsen/logrus"
)

// DefaultCheckTimeout bounds one readiness probe.
const DefaultCheckTimeout = 5 * time.Second

// Checker is the part of the supervisor the probes need.
type Checker interface {
	State() mqactor.State
	HealthCheck(ctx context.Context) error
}

// NewRouter builds the probe endpoints:
//
//	GET /healthz  liveness, fails once the actor gave up or was closed
//	GET /readyz   readiness, checks that the actor queue exists on the broker
func NewRouter(checker Checker, log *logrus.Entry, timeout time.Duration) *gin.Engine {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		state := checker.State()
		status := http.StatusOK
		if state == mqactor.StateFatallyFailed || state == mqactor.StateClosed {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"state": state.String()})
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		if err := checker.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"state":  checker.State().String(),
				"error":  err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "state": checker.State().String()})
	})

	return r
}

func requestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("probe served")
	}
}

// Serve runs handler on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, log *logrus.Entry) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("starting health server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Info("stopping health server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
