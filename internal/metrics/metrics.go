package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scan metrics
	TradesScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whaletracker_trades_scanned_total",
			Help: "Total number of raw trades entering the gate pipeline",
		},
	)

	GateRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaletracker_gate_rejections_total",
			Help: "Total number of trades rejected, by gate reason",
		},
		[]string{"reason"}, // reject_duplicate, reject_tail_price, ...
	)

	CandidatesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaletracker_candidates_emitted_total",
			Help: "Total number of accepted candidates",
		},
		[]string{"type"}, // whale_bet, smart_money, volume_spike
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whaletracker_scan_duration_seconds",
			Help:    "Duration of a full scan cycle",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	// Alert metrics
	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaletracker_alerts_sent_total",
			Help: "Total number of alerts sent",
		},
		[]string{"status", "type"}, // success/error, telegram/log
	)

	// API metrics
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaletracker_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"api", "endpoint", "status"}, // data/gamma/clob, /trades, success/error
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whaletracker_api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"api", "endpoint"},
	)

	// Database metrics
	DatabaseQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaletracker_database_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	// System health
	HealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaletracker_health_checks_total",
			Help: "Total number of health check requests",
		},
		[]string{"status"}, // healthy/unhealthy
	)
)

// RecordScan records scan cycle metrics from a gate counter snapshot.
func RecordScan(duration time.Duration, counters map[string]int) {
	ScanDuration.Observe(duration.Seconds())
	for name, count := range counters {
		if count == 0 {
			continue
		}
		switch name {
		case "input_trades":
			TradesScanned.Add(float64(count))
		case "accepted":
			// Counted via CandidatesEmitted at emission time.
		default:
			GateRejections.WithLabelValues(name).Add(float64(count))
		}
	}
}

// RecordCandidate records an accepted candidate by type
func RecordCandidate(candidateType string) {
	CandidatesEmitted.WithLabelValues(candidateType).Inc()
}

// RecordAlert records alert delivery metrics
func RecordAlert(sendStatus, alertType string) {
	AlertsSent.WithLabelValues(sendStatus, alertType).Inc()
}

// RecordAPIRequest records API request metrics
func RecordAPIRequest(api, endpoint string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	APIRequests.WithLabelValues(api, endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(api, endpoint).Observe(duration.Seconds())
}

// RecordDatabaseQuery records database query metrics
func RecordDatabaseQuery(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseQueries.WithLabelValues(operation, status).Inc()
}

// RecordHealthCheck records health check status
func RecordHealthCheck(healthy bool) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	HealthChecks.WithLabelValues(status).Inc()
}
