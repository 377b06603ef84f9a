package metrics_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nudge-project/nudge/pkg/metrics"
)

func TestRegistry_RegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	r := metrics.NewRegistry(reg)

	r.RecordDeferral("quit")
	r.RecordBlocked()
	r.RecordUpdateLaunch(true)
	r.RecordPersistenceRetry()
	r.RecordDropped()
	r.SetDaysRemaining(4)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"nudge_deferrals_recorded_total",
		"nudge_enforcement_blocked_total",
		"nudge_update_launches_total",
		"nudge_persistence_retries_total",
		"nudge_events_dropped_total",
		"nudge_days_remaining",
	}, names)
}

func TestRegistry_Values(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := metrics.NewRegistry(reg)

	r.RecordDeferral("session")
	r.RecordDeferral("session")
	r.RecordDeferral("quit")
	r.SetDaysRemaining(-2)

	assert.Equal(t, 2, testutil.CollectAndCount(reg, "nudge_deferrals_recorded_total"))
	expected := `
# HELP nudge_days_remaining Whole days until the update deadline at the last evaluation
# TYPE nudge_days_remaining gauge
nudge_days_remaining -2
# HELP nudge_deferrals_recorded_total Number of deferrals recorded, by kind
# TYPE nudge_deferrals_recorded_total counter
nudge_deferrals_recorded_total{kind="quit"} 1
nudge_deferrals_recorded_total{kind="session"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"nudge_days_remaining", "nudge_deferrals_recorded_total"))
}

func TestNewRegistry_NilRegisterer(t *testing.T) {
	r := metrics.NewRegistry(nil)
	assert.NotPanics(t, func() {
		r.RecordBlocked()
		r.SetDaysRemaining(1)
	})
}

func TestServeListener_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := metrics.NewRegistry(reg)
	r.SetDaysRemaining(3)
	r.RecordDeferral("quit")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- metrics.ServeListener(ctx, ln, reg) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "nudge_days_remaining 3")
	assert.Contains(t, string(body), `nudge_deferrals_recorded_total{kind="quit"} 1`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := metrics.NewRegistry(reg)
	r.SetDaysRemaining(-1)

	path := filepath.Join(t.TempDir(), "nudge.prom")
	require.NoError(t, metrics.WriteTextfile(path, reg))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "nudge_days_remaining -1")
}
