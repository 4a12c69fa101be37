// Package metrics exposes Prometheus instrumentation for the alert engine.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "safesignal_"

	ResultSent   = "sent"
	ResultFailed = "failed"

	LocationFix         = "fix"
	LocationUnavailable = "unavailable"
)

var phases = []string{"idle", "countdown", "active", "resolving"}

var (
	registerOnce sync.Once

	triggersMatched *prometheus.CounterVec
	activations     *prometheus.CounterVec
	enginePhase     *prometheus.GaugeVec
	deliveries      *prometheus.CounterVec
	followUps       prometheus.Counter
	locationResults *prometheus.CounterVec
	locationLatency prometheus.Histogram
	terminations    *prometheus.CounterVec
)

// Init registers collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		triggersMatched = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "triggers_matched_total",
				Help: "Gesture patterns matched by kind",
			},
			[]string{"kind"},
		)
		activations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "activations_total",
				Help: "Emergency activations by trigger kind",
			},
			[]string{"trigger"},
		)
		enginePhase = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "engine_phase",
				Help: "1 for the current engine phase, 0 otherwise",
			},
			[]string{"phase"},
		)
		deliveries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "deliveries_total",
				Help: "Per-contact delivery outcomes by channel and result",
			},
			[]string{"channel", "result"},
		)
		followUps = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "follow_ups_total",
				Help: "Location follow-up rounds sent",
			},
		)
		locationResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "location_results_total",
				Help: "Snapshot location outcomes",
			},
			[]string{"result"},
		)
		locationLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "location_latency_seconds",
				Help:    "Time spent acquiring a device snapshot",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8},
			},
		)
		terminations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "terminations_total",
				Help: "Emergencies ended by final status",
			},
			[]string{"status"},
		)
		prometheus.MustRegister(
			triggersMatched,
			activations,
			enginePhase,
			deliveries,
			followUps,
			locationResults,
			locationLatency,
			terminations,
		)
		SetPhase("idle")
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncTriggerMatched counts a recognized gesture.
func IncTriggerMatched(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if triggersMatched != nil {
		triggersMatched.WithLabelValues(kind).Inc()
	}
}

// IncActivation counts an emergency activation.
func IncActivation(trigger string) {
	if trigger == "" {
		trigger = "unknown"
	}
	if activations != nil {
		activations.WithLabelValues(trigger).Inc()
	}
}

// SetPhase marks phase as current.
func SetPhase(phase string) {
	if enginePhase == nil {
		return
	}
	for _, p := range phases {
		v := 0.0
		if p == phase {
			v = 1
		}
		enginePhase.WithLabelValues(p).Set(v)
	}
}

// AddDeliveries records the result of one fan-out.
func AddDeliveries(channel string, sent, failed int) {
	if deliveries == nil {
		return
	}
	if sent > 0 {
		deliveries.WithLabelValues(channel, ResultSent).Add(float64(sent))
	}
	if failed > 0 {
		deliveries.WithLabelValues(channel, ResultFailed).Add(float64(failed))
	}
}

// IncFollowUp counts a follow-up round.
func IncFollowUp() {
	if followUps != nil {
		followUps.Inc()
	}
}

// ObserveLocation records snapshot latency and whether a fix was obtained.
func ObserveLocation(hasFix bool, duration time.Duration) {
	result := LocationUnavailable
	if hasFix {
		result = LocationFix
	}
	if locationResults != nil {
		locationResults.WithLabelValues(result).Inc()
	}
	if locationLatency != nil {
		locationLatency.Observe(duration.Seconds())
	}
}

// IncTermination counts an emergency reaching a final status.
func IncTermination(status string) {
	if terminations != nil {
		terminations.WithLabelValues(status).Inc()
	}
}
