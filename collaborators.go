// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package mqactor

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// ErrorReporter receives the errors of failed reconnection attempts for telemetry.
	ErrorReporter interface {
		Report(ctx context.Context, err error, fields map[string]any)
	}

	// ErrorReporterFunc adapts a function to ErrorReporter.
	ErrorReporterFunc func(ctx context.Context, err error, fields map[string]any)

	// ShutdownFunc is invoked once reconnection is exhausted. It is expected
	// to terminate the process.
	ShutdownFunc func(reason string)

	// TelemetryReporter records reported errors on an OpenTelemetry span.
	TelemetryReporter struct {
		tracer trace.Tracer
	}
)

func (f ErrorReporterFunc) Report(ctx context.Context, err error, fields map[string]any) {
	f(ctx, err, fields)
}

// NewTelemetryReporter creates a reporter using the global tracer provider.
func NewTelemetryReporter() *TelemetryReporter {
	return &TelemetryReporter{tracer: otel.Tracer(tracerName)}
}

// Report records err on a short lived span carrying fields as attributes.
func (r *TelemetryReporter) Report(ctx context.Context, err error, fields map[string]any) {
	attrs := make([]attribute.KeyValue, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, attribute.String(k, fmt.Sprint(v)))
	}

	_, span := r.tracer.Start(ctx, "mqactor.reconnect", trace.WithAttributes(attrs...))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}

// ExitProcess is the default ShutdownFunc.
func ExitProcess(reason string) {
	logrus.WithField("reason", reason).Error("mqactor shutting down the process")
	os.Exit(1)
}
