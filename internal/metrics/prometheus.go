// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the learning backend.
var (
	// Counters.
	StepsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steps_completed_total",
			Help: "Total number of first-time step completions",
		},
		[]string{"story"},
	)

	SlidesCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slides_completed_total",
			Help: "Total number of first-time slide completions",
		},
	)

	XPAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_awarded_total",
			Help: "Total XP credited to users",
		},
		[]string{"source"},
	)

	AchievementsAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "achievements_awarded_total",
			Help: "Total number of achievements awarded",
		},
		[]string{"achievement", "rarity"},
	)

	StreakBookkeepingFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streak_bookkeeping_failures_total",
			Help: "Weekly streak record writes that failed and were skipped",
		},
	)

	LeaderboardRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_requests_total",
			Help: "Total leaderboard page requests",
		},
		[]string{"mode"},
	)

	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Leaderboard cache lookups by result",
		},
		[]string{"result"},
	)

	// Histograms.
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		},
		[]string{"method", "route", "status"},
	)
)

// Source labels for XPAwardedTotal.
const (
	SourceStep        = "step"
	SourceSlide       = "slide"
	SourceAchievement = "achievement"
)

// RecordStepCompleted records a first-time step completion and its XP.
func RecordStepCompleted(story string, xp int) {
	StepsCompletedTotal.WithLabelValues(story).Inc()
	RecordXP(SourceStep, xp)
}

// RecordSlideCompleted records a first-time slide completion and its XP.
func RecordSlideCompleted(xp int) {
	SlidesCompletedTotal.Inc()
	RecordXP(SourceSlide, xp)
}

// RecordXP adds credited XP for a source.
func RecordXP(source string, xp int) {
	if xp <= 0 {
		return
	}
	XPAwardedTotal.WithLabelValues(source).Add(float64(xp))
}

// RecordAchievementAwarded records an awarded achievement and its bonus XP.
func RecordAchievementAwarded(code, rarity string, xp int) {
	AchievementsAwardedTotal.WithLabelValues(code, rarity).Inc()
	RecordXP(SourceAchievement, xp)
}

// RecordStreakBookkeepingFailure records a skipped weekly record write.
func RecordStreakBookkeepingFailure() {
	StreakBookkeepingFailuresTotal.Inc()
}

// RecordLeaderboardRequest records a leaderboard request by mode ("page" or "around").
func RecordLeaderboardRequest(mode string) {
	LeaderboardRequestsTotal.WithLabelValues(mode).Inc()
}

// RecordCacheResult records a cache lookup result ("hit", "miss" or "error").
func RecordCacheResult(result string) {
	CacheRequestsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest observes a handled HTTP request.
func ObserveHTTPRequest(method, route, status string, seconds float64) {
	HTTPRequestDurationSeconds.WithLabelValues(method, route, status).Observe(seconds)
}
