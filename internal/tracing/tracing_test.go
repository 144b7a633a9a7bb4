package tracing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/mattjoyce/spool/internal/config"
)

func keepGlobalProvider(t *testing.T) {
	t.Helper()
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestSetupNoneLeavesGlobalProvider(t *testing.T) {
	keepGlobalProvider(t)
	before := otel.GetTracerProvider()

	shutdown, err := Setup(config.TracingConfig{Exporter: "none"}, "spool")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	assert.Same(t, before, otel.GetTracerProvider())
}

func TestSetupStdoutWritesSpansToFile(t *testing.T) {
	keepGlobalProvider(t)
	out := filepath.Join(t.TempDir(), "spans.jsonl")

	shutdown, err := Setup(config.TracingConfig{Exporter: "stdout", Output: out}, "spool-test")
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "queue.poll")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Name":"queue.poll"`)
	assert.Contains(t, string(data), "spool-test")
}

func TestSetupRejectsUnknownExporter(t *testing.T) {
	_, err := Setup(config.TracingConfig{Exporter: "zipkin"}, "spool")
	require.Error(t, err)
}

func TestSetupOutputMustBeWritable(t *testing.T) {
	_, err := Setup(config.TracingConfig{
		Exporter: "stdout",
		Output:   filepath.Join(t.TempDir(), "missing", "spans.jsonl"),
	}, "spool")
	require.Error(t, err)
}

func TestNewProviderTagsService(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := NewProvider(exp, "spool-test")

	_, span := tp.Tracer("test").Start(context.Background(), "hook.dispatch")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "hook.dispatch", spans[0].Name)
	val, ok := spans[0].Resource.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "spool-test", val.AsString())
}
