package observability

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestProvider(t *testing.T) (*Provider, *sdkmetric.ManualReader, *tracetest.SpanRecorder) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	recorder := tracetest.NewSpanRecorder()
	p, err := New(Config{
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)),
		MeterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	})
	require.NoError(t, err)
	return p, reader, recorder
}

func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is %T", name, m.Data)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestTrackOperation_Success(t *testing.T) {
	p, reader, recorder := newTestProvider(t)

	_, done := p.TrackOperation(context.Background(), "attach.load", AttrScheme.String("file"))
	assert.Equal(t, int64(1), sumOf(t, reader, "attach.operations.active"))
	done(nil)

	assert.Equal(t, int64(1), sumOf(t, reader, "attach.operations.total"))
	assert.Equal(t, int64(0), sumOf(t, reader, "attach.operations.active"))
	assert.Equal(t, int64(0), sumOf(t, reader, "attach.errors.total"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "attach.load", spans[0].Name())
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
}

func TestTrackOperation_Error(t *testing.T) {
	p, reader, recorder := newTestProvider(t)

	_, done := p.TrackOperation(context.Background(), "attach.store")
	done(errors.New("boom"))

	assert.Equal(t, int64(1), sumOf(t, reader, "attach.errors.total"))
	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
}

func TestNoop(t *testing.T) {
	p := Noop()
	ctx, done := p.TrackOperation(context.Background(), "attach.destroy")
	require.NotNil(t, ctx)
	done(errors.New("ignored"))
	p.RecordError(ctx, errors.New("ignored"))
}

func TestErrorType(t *testing.T) {
	sentinel := errors.New("attach: missing source")
	wrapped := fmt.Errorf("reload file:///x: %w", sentinel)
	assert.Equal(t, "attach: missing source", errorType(wrapped))
	assert.Equal(t, "plain", errorType(errors.New("plain")))
}

func TestAddSpanEvent(t *testing.T) {
	p, _, recorder := newTestProvider(t)

	ctx, done := p.TrackOperation(context.Background(), "attach.store", AttrScheme.String("db"))
	AddSpanEvent(ctx, "payload.stored", PayloadAttributes("db", "image/png", 4534)...)
	done(nil)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	events := spans[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "payload.stored", events[0].Name)
	assert.Contains(t, events[0].Attributes, AttrMimeType.String("image/png"))
	assert.Contains(t, events[0].Attributes, AttrSize.Int64(4534))
}
