package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/devctl/internal/classify"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	invocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devctl",
			Subsystem: "tool",
			Name:      "invocations_total",
			Help:      "Tool invocations by lifecycle event and outcome.",
		},
		[]string{"tool", "kind", "outcome"},
	)
	invocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "devctl",
			Subsystem: "tool",
			Name:      "invocation_duration_seconds",
			Help:      "Wall time of finished tool invocations in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"tool", "kind", "outcome"},
	)
	exitCodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devctl",
			Subsystem: "tool",
			Name:      "exit_codes_total",
			Help:      "Exit codes of terminated tool processes.",
		},
		[]string{"tool", "code"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(invocations, invocationDuration, exitCodes)
	})
}

// outcome is "ok", the classification label, or "error" for unlabelled failures.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if reason := classify.ReasonOf(err); reason != "" {
		return string(reason)
	}
	return "error"
}

func RecordInvocation(tool, kind string, err error, duration time.Duration) {
	RegisterMetrics()
	label := outcome(err)
	invocations.WithLabelValues(tool, kind, label).Inc()
	if duration > 0 {
		invocationDuration.WithLabelValues(tool, kind, label).Observe(duration.Seconds())
	}
}

func RecordExitCode(tool string, code int) {
	RegisterMetrics()
	exitCodes.WithLabelValues(tool, strconv.Itoa(code)).Inc()
}

// WriteTextfile dumps the default registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	RegisterMetrics()
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
