package resilience

import (
	"github.com/go-i2p/sqlpool/lib/metrics"
)

// Circuit breaker metrics for Prometheus exposition.
var (
	// BreakerState tracks the last breaker state change.
	// 0 = closed, 1 = open, 2 = half-open
	BreakerState = metrics.NewGauge(
		"sqlpool_breaker_state",
		"Current state of the dial circuit breaker (0=closed, 1=open, 2=half-open)",
	)

	// BreakerTrips counts the number of times the breaker has opened.
	BreakerTrips = metrics.NewCounter(
		"sqlpool_breaker_trips_total",
		"Total number of times the dial circuit breaker has opened",
	)

	// BreakerRejections counts dials rejected by an open breaker.
	BreakerRejections = metrics.NewCounter(
		"sqlpool_breaker_rejections_total",
		"Total dials rejected by the open circuit breaker",
	)
)
