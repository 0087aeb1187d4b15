// Package metrics exposes Prometheus counters for the login flow.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what services use to report login-flow events
type Recorder interface {
	RecordLoginOutcome(outcome string)
	RecordStateFallback()
	RecordProfileFetchAttempt(result string)
	RecordProfileFallback()
	RecordInference(result string)
	RecordUpsertPath(path string)
}

// Collector is the Prometheus-backed Recorder
type Collector struct {
	loginOutcomes  *prometheus.CounterVec
	stateFallbacks prometheus.Counter
	fetchAttempts  *prometheus.CounterVec
	fetchFallbacks prometheus.Counter
	inferences     *prometheus.CounterVec
	upsertPaths    *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "podcast_login_outcomes_total",
			Help: "Completed login attempts by outcome (success, short_circuit or error code).",
		}, []string{"outcome"}),
		stateFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podcast_login_state_fallback_total",
			Help: "Callbacks whose state was accepted through the server-side session record.",
		}),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "podcast_profile_fetch_attempts_total",
			Help: "Userinfo requests by result.",
		}, []string{"result"}),
		fetchFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podcast_profile_id_token_fallback_total",
			Help: "Profiles derived from the ID token after userinfo failed.",
		}),
		inferences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "podcast_demographic_inference_total",
			Help: "Demographic inference runs by result.",
		}, []string{"result"}),
		upsertPaths: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "podcast_user_upsert_total",
			Help: "User upserts by path taken.",
		}, []string{"path"}),
	}

	reg.MustRegister(
		c.loginOutcomes,
		c.stateFallbacks,
		c.fetchAttempts,
		c.fetchFallbacks,
		c.inferences,
		c.upsertPaths,
	)

	return c
}

func (c *Collector) RecordLoginOutcome(outcome string) {
	c.loginOutcomes.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordStateFallback() {
	c.stateFallbacks.Inc()
}

func (c *Collector) RecordProfileFetchAttempt(result string) {
	c.fetchAttempts.WithLabelValues(result).Inc()
}

func (c *Collector) RecordProfileFallback() {
	c.fetchFallbacks.Inc()
}

func (c *Collector) RecordInference(result string) {
	c.inferences.WithLabelValues(result).Inc()
}

func (c *Collector) RecordUpsertPath(path string) {
	c.upsertPaths.WithLabelValues(path).Inc()
}

// Handler returns the scrape handler for gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards every event
type Nop struct{}

func (Nop) RecordLoginOutcome(string)        {}
func (Nop) RecordStateFallback()             {}
func (Nop) RecordProfileFetchAttempt(string) {}
func (Nop) RecordProfileFallback()           {}
func (Nop) RecordInference(string)           {}
func (Nop) RecordUpsertPath(string)          {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
