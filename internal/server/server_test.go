// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goxkit/mqactor"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	state mqactor.State
	err   error
	ctx   context.Context
}

func (s *stubChecker) State() mqactor.State { return s.state }

func (s *stubChecker) HealthCheck(ctx context.Context) error {
	s.ctx = ctx
	return s.err
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func serve(t *testing.T, checker Checker, path string) (int, map[string]string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	NewRouter(checker, quietLog(), time.Second).ServeHTTP(rec, req)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		state      mqactor.State
		wantStatus int
	}{
		{state: mqactor.StateConnected, wantStatus: http.StatusOK},
		{state: mqactor.StateReconnecting, wantStatus: http.StatusOK},
		{state: mqactor.StateConnecting, wantStatus: http.StatusOK},
		{state: mqactor.StateFatallyFailed, wantStatus: http.StatusServiceUnavailable},
		{state: mqactor.StateClosed, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			code, body := serve(t, &stubChecker{state: tt.state}, "/healthz")
			assert.Equal(t, tt.wantStatus, code)
			assert.Equal(t, tt.state.String(), body["state"])
		})
	}
}

func TestReadyz(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		checker := &stubChecker{state: mqactor.StateConnected}
		code, body := serve(t, checker, "/readyz")

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ready", body["status"])

		_, hasDeadline := checker.ctx.Deadline()
		assert.True(t, hasDeadline, "probe is bounded by a timeout")
	})

	t.Run("queue missing", func(t *testing.T) {
		checker := &stubChecker{state: mqactor.StateConnected, err: errors.New("health check failed: NOT_FOUND")}
		code, body := serve(t, checker, "/readyz")

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unavailable", body["status"])
		assert.Contains(t, body["error"], "NOT_FOUND")
	})
}

func TestReadyz_WithSupervisor(t *testing.T) {
	sup, err := mqactor.NewSupervisor(
		mqactor.ActorConfig{QueueName: "q", RoutingKey: "rk"},
		mqactor.WithDialer(mqactor.NewMockDialer().Dial),
		mqactor.WithLogger(quietLog()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sup.Close() })

	code, _ := serve(t, sup, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code, "not connected yet")

	require.NoError(t, sup.Connect(context.Background()))
	code, body := serve(t, sup, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "connected", body["state"])
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- Serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), quietLog())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
