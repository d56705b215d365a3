package network

import (
	"context"
	"net"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telemq/telemq/internal/metrics"
)

func TestServerMetricsCollectorSamplesConnectionsAndBytes(t *testing.T) {
	s := &Server{registry: NewRegistry()}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s.SetMetrics(m)

	server, client := net.Pipe()
	defer client.Close()
	conn := NewConnection(server, "conn-1", nil)
	s.registry.Add(conn)

	go client.Write([]byte("hello"))
	_, err := conn.Read(make([]byte, 5))
	require.NoError(t, err)

	s.sampleMetrics()

	assert.InDelta(t, 1, testGaugeValue(t, m.ConnectionsOpen), 0)
	assert.InDelta(t, 5, testCounterValue(t, m.BytesReceived), 0)

	s.registry.Remove("conn-1")
	conn.Close()
	s.sampleMetrics()

	assert.InDelta(t, 0, testGaugeValue(t, m.ConnectionsOpen), 0)
	assert.InDelta(t, 5, testCounterValue(t, m.BytesReceived), 0)
}

func TestRunMetricsCollectorStopsOnContextCancel(t *testing.T) {
	s := &Server{registry: NewRegistry()}
	reg := prometheus.NewRegistry()
	s.SetMetrics(metrics.New(reg))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunMetricsCollector(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunMetricsCollector did not stop after context cancellation")
	}
}

func testGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func testCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
