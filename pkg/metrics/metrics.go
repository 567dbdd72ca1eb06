// Package metrics provides Prometheus-based metrics recording for turn
// handling and onboarding progress.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records orchestration metrics.
type Recorder struct {
	turnsTotal        *prometheus.CounterVec
	turnDuration      *prometheus.HistogramVec
	denialsTotal      *prometheus.CounterVec
	completionsTotal  *prometheus.CounterVec
	validationsFailed *prometheus.CounterVec
	contextCacheTotal *prometheus.CounterVec
}

// NewRecorder creates a recorder registered on the default registry.
func NewRecorder() *Recorder {
	return &Recorder{
		turnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitcoach_turns_total",
				Help: "Total turns handled by mode, handler, and outcome",
			},
			[]string{"mode", "handler", "outcome"},
		),
		turnDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fitcoach_turn_duration_seconds",
				Help:    "End-to-end turn handling duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode", "handler"},
		),
		denialsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitcoach_access_denials_total",
				Help: "Access gate denials by reason",
			},
			[]string{"reason"},
		),
		completionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitcoach_state_completions_total",
				Help: "Onboarding state completions by state and handler",
			},
			[]string{"state", "handler"},
		),
		validationsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitcoach_validation_failures_total",
				Help: "Payload validation failures by state and field",
			},
			[]string{"state", "field"},
		),
		contextCacheTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitcoach_context_cache_total",
				Help: "User context cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

// ObserveTurn records a completed turn.
func (r *Recorder) ObserveTurn(mode, handler, outcome string, duration time.Duration) {
	r.turnsTotal.WithLabelValues(mode, handler, outcome).Inc()
	r.turnDuration.WithLabelValues(mode, handler).Observe(duration.Seconds())
}

// IncDenial records an access gate denial.
func (r *Recorder) IncDenial(reason string) {
	r.denialsTotal.WithLabelValues(reason).Inc()
}

// IncCompletion records a state completion.
func (r *Recorder) IncCompletion(state, handler string) {
	r.completionsTotal.WithLabelValues(state, handler).Inc()
}

// IncValidationFailure records a rejected payload.
func (r *Recorder) IncValidationFailure(state, field string) {
	r.validationsFailed.WithLabelValues(state, field).Inc()
}

// IncCacheLookup records a context cache hit or miss.
func (r *Recorder) IncCacheLookup(result string) {
	r.contextCacheTotal.WithLabelValues(result).Inc()
}
