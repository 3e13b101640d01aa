package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "doctrack", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "doctrack", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "doctrack", Name: "transitions_total", Help: "Document transitions by action and outcome (applied|rejected|failed)."},
		[]string{"action", "outcome"},
	)
	Allocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "doctrack", Name: "control_number_allocations_total", Help: "Control numbers allocated by format and sequencer."},
		[]string{"format", "sequencer"},
	)
	CollisionsDetected = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "doctrack", Name: "control_number_collisions_total", Help: "Duplicate reference numbers observed by uniqueness scans."},
	)
	SummarizerFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "doctrack", Name: "summarizer_fallbacks_total", Help: "Document creations that used the deterministic summary fallback."},
	)
	FeedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "doctrack", Name: "feed_events_total", Help: "Change-feed events by table and type."},
		[]string{"table", "type"},
	)
	SessionsSuperseded = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "doctrack", Name: "sessions_superseded_total", Help: "Session checks that reported a newer login for the same user."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(Transitions)
	reg.MustRegister(Allocations)
	reg.MustRegister(CollisionsDetected)
	reg.MustRegister(SummarizerFallbacks)
	reg.MustRegister(FeedEvents)
	reg.MustRegister(SessionsSuperseded)
}
