// Package metrics exposes ledger counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the engines and middleware report to.
type Recorder interface {
	RecordLedgerEntry(txType string, delta int)
	RecordRedemptionRejected(reason string)
	RecordSpin(result string, downgraded bool)
	RecordRateLimited(operation string)
	RecordBirthdayRun(status string, awarded, failed int)
	RecordRequest(route string, status int, duration time.Duration)
}

// Collector records to Prometheus.
type Collector struct {
	ledgerEntries      *prometheus.CounterVec
	pointsIssued       prometheus.Counter
	pointsRedeemed     prometheus.Counter
	redemptionRejected *prometheus.CounterVec
	spins              *prometheus.CounterVec
	rateLimited        *prometheus.CounterVec
	birthdayRuns       *prometheus.CounterVec
	birthdayAwarded    prometheus.Counter
	birthdayFailed     prometheus.Counter
	requests           *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ledgerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_ledger_entries_total",
			Help: "Ledger entries written, by transaction type.",
		}, []string{"type"}),
		pointsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rewards_points_issued_total",
			Help: "Sum of positive ledger deltas.",
		}),
		pointsRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rewards_points_redeemed_total",
			Help: "Sum of negative ledger deltas, as a positive number.",
		}),
		redemptionRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_redemptions_rejected_total",
			Help: "Redemptions refused by a business rule.",
		}, []string{"reason"}),
		spins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_spins_total",
			Help: "Spins by outcome.",
		}, []string{"result", "downgraded"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"operation"}),
		birthdayRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_birthday_runs_total",
			Help: "Birthday bonus batch runs by final status.",
		}, []string{"status"}),
		birthdayAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rewards_birthday_awarded_total",
			Help: "Birthday bonuses granted.",
		}),
		birthdayFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rewards_birthday_failed_total",
			Help: "Birthday bonuses that failed.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "status_code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rewards_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.ledgerEntries,
		c.pointsIssued,
		c.pointsRedeemed,
		c.redemptionRejected,
		c.spins,
		c.rateLimited,
		c.birthdayRuns,
		c.birthdayAwarded,
		c.birthdayFailed,
		c.requests,
		c.requestLatency,
	)
	return c
}

func (c *Collector) RecordLedgerEntry(txType string, delta int) {
	c.ledgerEntries.WithLabelValues(txType).Inc()
	switch {
	case delta > 0:
		c.pointsIssued.Add(float64(delta))
	case delta < 0:
		c.pointsRedeemed.Add(float64(-delta))
	}
}

func (c *Collector) RecordRedemptionRejected(reason string) {
	c.redemptionRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordSpin(result string, downgraded bool) {
	c.spins.WithLabelValues(result, strconv.FormatBool(downgraded)).Inc()
}

func (c *Collector) RecordRateLimited(operation string) {
	c.rateLimited.WithLabelValues(operation).Inc()
}

func (c *Collector) RecordBirthdayRun(status string, awarded, failed int) {
	c.birthdayRuns.WithLabelValues(status).Inc()
	c.birthdayAwarded.Add(float64(awarded))
	c.birthdayFailed.Add(float64(failed))
}

func (c *Collector) RecordRequest(route string, status int, duration time.Duration) {
	c.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	c.requestLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordLedgerEntry(string, int)            {}
func (Nop) RecordRedemptionRejected(string)          {}
func (Nop) RecordSpin(string, bool)                  {}
func (Nop) RecordRateLimited(string)                 {}
func (Nop) RecordBirthdayRun(string, int, int)       {}
func (Nop) RecordRequest(string, int, time.Duration) {}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
