package telemetry

import (
	"context"
	"ctchen222/presence-relay/internal/config"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_RecordsRelayInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	m, err := NewMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	m.PlayerConnected(ctx)
	m.PlayerConnected(ctx)
	m.PlayerDisconnected(ctx)
	m.DeliveryFailed(ctx, "players-update")
	m.EventDropped(ctx, "trade-request", "unresolvable_target")
	m.EventDropped(ctx, "chat-message", "malformed")
	m.RecordTick(ctx, 3*time.Millisecond, 2)

	got := collect(t, reader)

	assert.Equal(t, int64(1), sumOf(t, got["relay.players.connected"]))
	assert.Equal(t, int64(1), sumOf(t, got["relay.delivery.failures"]))
	assert.Equal(t, int64(2), sumOf(t, got["relay.events.dropped"]))

	hist, ok := got["relay.tick.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 3.0, hist.DataPoints[0].Sum, 0.001)
}

func TestInitOtel_DisabledIsNoop(t *testing.T) {
	shutdown, err := InitOtel(context.Background(), config.TelemetryConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
