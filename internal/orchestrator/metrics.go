package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackmgr",
			Subsystem: "installer",
			Name:      "steps_total",
			Help:      "Installer steps executed by state and outcome",
		},
		[]string{"step", "outcome"},
	)

	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stackmgr",
			Subsystem: "installer",
			Name:      "step_duration_seconds",
			Help:      "Duration of installer steps in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"step"},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackmgr",
			Subsystem: "installer",
			Name:      "runs_total",
			Help:      "Installation runs by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(stepsTotal, stepDuration, runsTotal)
}
