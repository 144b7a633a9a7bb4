// Package tracing installs the process-wide OpenTelemetry tracer provider.
//
// Components take their tracer from otel.Tracer, so spans from the queue
// manager and the hook dispatcher go wherever Setup points them. With the
// "none" exporter the global no-op provider stays in place.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/mattjoyce/spool/internal/config"
	"github.com/mattjoyce/spool/internal/log"
)

// ShutdownFunc flushes buffered spans and releases the exporter.
type ShutdownFunc func(context.Context) error

func noop(context.Context) error { return nil }

// NewProvider returns a provider that batches spans to exp and tags them
// with service.
func NewProvider(exp sdktrace.SpanExporter, service string) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", service))),
	)
}

// Setup installs a global tracer provider for cfg. The returned ShutdownFunc
// must be called before exit or buffered spans are lost.
func Setup(cfg config.TracingConfig, service string) (ShutdownFunc, error) {
	switch cfg.Exporter {
	case "", "none":
		return noop, nil
	case "stdout":
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}

	var w io.Writer = os.Stderr
	var file *os.File
	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open trace output: %w", err)
		}
		w, file = f, f
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		if file != nil {
			_ = file.Close()
		}
		return nil, fmt.Errorf("create stdout trace exporter: %w", err)
	}

	tp := NewProvider(exp, service)
	otel.SetTracerProvider(tp)
	log.WithComponent("tracing").Debug("tracing enabled", "exporter", cfg.Exporter, "output", cfg.Output)

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if file != nil {
			err = errors.Join(err, file.Close())
		}
		return err
	}, nil
}
