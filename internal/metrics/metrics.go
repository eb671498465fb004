//nolint:gochecknoglobals // prometheus metrics
package metrics

import (
	"errors"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

var (
	CacheHitsTotal = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "cloudbridge_cache_hits_total",
			Help: "Device state reads served from the cache (Counter).",
		},
		[]string{"cache"},
	)
	CacheMissesTotal = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "cloudbridge_cache_misses_total",
			Help: "Device state reads that went to the remote (Counter).",
		},
		[]string{"cache"},
	)

	RemoteCallsTotal = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "cloudbridge_remote_calls_total",
			Help: "Remote cloud calls by operation and outcome (Counter). outcome=success|error.",
		},
		[]string{"op", "outcome"},
	)
	RemoteCallDuration = promauto.NewHistogramVec(prom.HistogramOpts{
		Name:    "cloudbridge_remote_call_duration_seconds",
		Help:    "Remote cloud call duration in seconds (Histogram).",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"op"})

	// LockWaitDuration covers the access gate and the media player locks.
	LockWaitDuration = promauto.NewHistogramVec(prom.HistogramOpts{
		Name:    "cloudbridge_lock_wait_seconds",
		Help:    "Time spent waiting for a gate or lock in seconds (Histogram).",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 15, 30, 65},
	}, []string{"lock"})
	LockTimeoutsTotal = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "cloudbridge_lock_timeouts_total",
			Help: "Gate or lock acquisitions that timed out (Counter).",
		},
		[]string{"lock"},
	)

	PollCyclesTotal = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "cloudbridge_poll_cycles_total",
			Help: "Background state poll cycles by outcome (Counter).",
		},
		[]string{"outcome"},
	)
)

// RegisterCollectors registers default Go and process collectors.
// Should be called once during program startup.
func RegisterCollectors() {
	registerDefault(collectors.NewGoCollector())
	registerDefault(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

func registerDefault(c prom.Collector) {
	if err := prom.Register(c); err != nil {
		var are prom.AlreadyRegisteredError
		if errors.As(err, &are) {
			return
		}
	}
}

// ObserveRemoteCall records one remote call.
func ObserveRemoteCall(op string, started time.Time, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	RemoteCallsTotal.WithLabelValues(op, outcome).Inc()
	RemoteCallDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// ObserveLockWait records the wait for a lock and whether it timed out.
func ObserveLockWait(lock string, started time.Time, timedOut bool) {
	LockWaitDuration.WithLabelValues(lock).Observe(time.Since(started).Seconds())
	if timedOut {
		LockTimeoutsTotal.WithLabelValues(lock).Inc()
	}
}

// RecordCache records a cache hit or miss.
func RecordCache(cache string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(cache).Inc()
		return
	}
	CacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordPoll records the outcome of one poll cycle.
func RecordPoll(err error) {
	if err != nil {
		PollCyclesTotal.WithLabelValues(OutcomeError).Inc()
		return
	}
	PollCyclesTotal.WithLabelValues(OutcomeSuccess).Inc()
}
