// Package metrics exposes Prometheus counters for sale decisions, chain
// reads and mint runs. A nil *Registry is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the service's Prometheus collectors. A nil *Registry
// records nothing.
type Registry struct {
	reg            *prometheus.Registry
	Decisions      *prometheus.CounterVec
	ChainReads     *prometheus.CounterVec
	ChainLatency   prometheus.Histogram
	StaleFallbacks prometheus.Counter
	MintRuns       *prometheus.CounterVec
	MintsRecorded  prometheus.Counter
}

// NewRegistry creates the collectors on a private registry.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kovnica_eligibility_decisions_total",
		Help: "Eligibility decisions by outcome.",
	}, []string{"outcome"})
	chainReads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kovnica_chain_reads_total",
		Help: "On-chain sale reads by result.",
	}, []string{"result"})
	chainLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kovnica_chain_read_seconds",
		Help:    "Duration of on-chain sale reads.",
		Buckets: prometheus.DefBuckets,
	})
	stale := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kovnica_stale_fallbacks_total",
		Help: "Sale states served from the last cached on-chain record.",
	})
	mintRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kovnica_mint_runs_total",
		Help: "Finished mint runs by final state and reason.",
	}, []string{"state", "reason"})
	recorded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kovnica_mints_recorded_total",
		Help: "Confirmed purchases added to the supply ledger.",
	})

	r.MustRegister(decisions, chainReads, chainLatency, stale, mintRuns, recorded)
	return &Registry{
		reg:            r,
		Decisions:      decisions,
		ChainReads:     chainReads,
		ChainLatency:   chainLatency,
		StaleFallbacks: stale,
		MintRuns:       mintRuns,
		MintsRecorded:  recorded,
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// Decision counts an eligibility decision. An empty outcome means allowed.
func (r *Registry) Decision(outcome string) {
	if r == nil {
		return
	}
	if outcome == "" {
		outcome = "allowed"
	}
	r.Decisions.WithLabelValues(outcome).Inc()
}

// ChainRead counts an on-chain read and its duration in seconds.
func (r *Registry) ChainRead(result string, seconds float64) {
	if r == nil {
		return
	}
	r.ChainReads.WithLabelValues(result).Inc()
	r.ChainLatency.Observe(seconds)
}

func (r *Registry) StaleFallback() {
	if r == nil {
		return
	}
	r.StaleFallbacks.Inc()
}

func (r *Registry) MintRun(state, reason string) {
	if r == nil {
		return
	}
	r.MintRuns.WithLabelValues(state, reason).Inc()
}

func (r *Registry) MintRecorded() {
	if r == nil {
		return
	}
	r.MintsRecorded.Inc()
}
