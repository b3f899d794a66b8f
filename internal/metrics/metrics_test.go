package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ConnectionAccepted()
	m.ConnectionAccepted()
	m.SetActive(3)
	m.PacketDecoded("status", "ping")
	m.PacketSent("pong")
	m.DecodeError("truncated")
	m.WriteFailure()
	m.ObserveDispatch(time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.connectionsAccepted))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.connectionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.packetsDecoded.WithLabelValues("status", "ping")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.packetsSent.WithLabelValues("pong")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decodeErrors.WithLabelValues("truncated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writeFailures))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ConnectionAccepted()
		m.SetActive(1)
		m.PacketDecoded("login", "login_start")
		m.PacketSent("join_game")
		m.DecodeError("io")
		m.WriteFailure()
		m.ObserveDispatch(time.Now())
	})
}
