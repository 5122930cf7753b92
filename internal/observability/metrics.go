package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	requestsTotal         *prometheus.CounterVec
	requestLatencySeconds *prometheus.HistogramVec
	requestErrorsTotal    *prometheus.CounterVec
	sessionsStartedTotal  prometheus.Counter
	terminationsTotal     *prometheus.CounterVec
	violationsTotal       *prometheus.CounterVec
	gradedTotal           *prometheus.CounterVec
	gradingSeconds        *prometheus.HistogramVec
	leaderboardCacheTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the contest API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contest_requests_total",
			Help: "Total number of contest API requests served.",
		}, []string{"method", "route", "status"})

		requestLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "contest_request_latency_seconds",
			Help:    "Latency distribution for contest API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		requestErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contest_request_errors_total",
			Help: "Total number of error responses returned by contest endpoints.",
		}, []string{"method", "route", "status"})

		sessionsStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contest_sessions_started_total",
			Help: "Sessions created by participants starting a contest.",
		})

		terminationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contest_session_terminations_total",
			Help: "Sessions reaching a terminal state, by termination reason.",
		}, []string{"reason"})

		violationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contest_violations_total",
			Help: "Proctoring violations reported by clients.",
		}, []string{"type"})

		gradedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contest_submissions_graded_total",
			Help: "Formal submissions graded, by verdict.",
		}, []string{"verdict"})

		gradingSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "contest_grading_duration_seconds",
			Help:    "Wall time spent grading a submission across all its test cases.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"mode"})

		leaderboardCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contest_leaderboard_cache_total",
			Help: "Leaderboard cache lookups, by outcome.",
		}, []string{"outcome"})

		prometheus.MustRegister(
			requestsTotal,
			requestLatencySeconds,
			requestErrorsTotal,
			sessionsStartedTotal,
			terminationsTotal,
			violationsTotal,
			gradedTotal,
			gradingSeconds,
			leaderboardCacheTotal,
		)
	})
}

// Requests exposes the counter for API requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// Latency exposes the latency histogram for API requests.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return requestLatencySeconds
}

// Errors exposes the counter for error responses.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return requestErrorsTotal
}

// SessionsStarted counts newly created sessions.
func SessionsStarted() prometheus.Counter {
	RegisterMetrics()
	return sessionsStartedTotal
}

// Terminations counts terminal transitions by reason.
func Terminations() *prometheus.CounterVec {
	RegisterMetrics()
	return terminationsTotal
}

// Violations counts reported proctoring violations by type.
func Violations() *prometheus.CounterVec {
	RegisterMetrics()
	return violationsTotal
}

// SubmissionsGraded counts graded formal submissions by verdict.
func SubmissionsGraded() *prometheus.CounterVec {
	RegisterMetrics()
	return gradedTotal
}

// GradingDuration observes grading wall time by mode (submit, check, run).
func GradingDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return gradingSeconds
}

// LeaderboardCache counts leaderboard cache hits and misses.
func LeaderboardCache() *prometheus.CounterVec {
	RegisterMetrics()
	return leaderboardCacheTotal
}
