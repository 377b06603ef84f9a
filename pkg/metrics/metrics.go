// Package metrics exports enforcement counters in Prometheus format.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry bound to the Prometheus default registerer.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
	})
	return defaultRegistry
}

// Registry holds all nudge metrics.
type Registry struct {
	deferrals          *prometheus.CounterVec
	blocked            prometheus.Counter
	updateLaunches     *prometheus.CounterVec
	persistenceRetries prometheus.Counter
	eventsDropped      prometheus.Counter
	daysRemaining      prometheus.Gauge
}

// NewRegistry creates the metrics and registers them with reg. A nil reg
// leaves them unregistered, which tests use to avoid global collisions.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		deferrals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nudge_deferrals_recorded_total",
			Help: "Number of deferrals recorded, by kind",
		}, []string{"kind"}),
		blocked: factory.NewCounter(prometheus.CounterOpts{
			Name: "nudge_enforcement_blocked_total",
			Help: "Number of deferral attempts refused at the enforcement boundary",
		}),
		updateLaunches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nudge_update_launches_total",
			Help: "Number of update launches, by result",
		}, []string{"result"}),
		persistenceRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "nudge_persistence_retries_total",
			Help: "Number of ledger writes retried",
		}),
		eventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "nudge_events_dropped_total",
			Help: "Number of events dropped because a sink fell behind",
		}),
		daysRemaining: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nudge_days_remaining",
			Help: "Whole days until the update deadline at the last evaluation",
		}),
	}
}

// RecordDeferral counts a deferral of the given kind.
func (r *Registry) RecordDeferral(kind string) {
	r.deferrals.WithLabelValues(kind).Inc()
}

// RecordBlocked counts a refused deferral.
func (r *Registry) RecordBlocked() {
	r.blocked.Inc()
}

// RecordUpdateLaunch counts an update launch attempt.
func (r *Registry) RecordUpdateLaunch(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	r.updateLaunches.WithLabelValues(result).Inc()
}

// RecordPersistenceRetry counts a retried ledger write.
func (r *Registry) RecordPersistenceRetry() {
	r.persistenceRetries.Inc()
}

// RecordDropped counts an event dropped by a non-blocking sink.
func (r *Registry) RecordDropped() {
	r.eventsDropped.Inc()
}

// SetDaysRemaining records the latest days-remaining value.
func (r *Registry) SetDaysRemaining(days int) {
	r.daysRemaining.Set(float64(days))
}
