package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracerProviderStdout(t *testing.T) {
	var buf bytes.Buffer
	tp, err := InitTracerProvider(context.Background(), Config{
		ServiceName: "leadcapture-test",
		Version:     "v0.0.1",
		Exporter:    ExporterStdout,
		Writer:      &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "syncer.drain")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "syncer.drain")
	assert.Contains(t, buf.String(), "leadcapture-test")
}

func TestInitTracerProviderNone(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), Config{ServiceName: "leadcapture-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
}

func TestInitTracerProviderUnknownExporter(t *testing.T) {
	_, err := InitTracerProvider(context.Background(), Config{ServiceName: "x", Exporter: "jaeger"})
	assert.ErrorContains(t, err, "unknown trace exporter")
}
