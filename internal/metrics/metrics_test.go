package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersEveryCounterAndGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.BytesReceived.Add(10)
	m.MessagesIn.Inc()
	m.ClientsOnline.Set(3)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 8)
}

func TestMetricsUpdatesAreReflected(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Subscriptions.Set(5)
	assert.Equal(t, float64(5), gaugeValue(t, m.Subscriptions))

	m.MessagesOut.Inc()
	m.MessagesOut.Inc()
	assert.Equal(t, float64(2), counterValue(t, m.MessagesOut))
}

func TestNewPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() {
		New(reg)
	})
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
