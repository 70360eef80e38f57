package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veditcore_procgroup_terminate_total",
		Help: "Total number of signals sent to child process groups, by signal and outcome",
	}, []string{"signal", "outcome"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veditcore_procgroup_wait_total",
		Help: "Total number of process group wait outcomes",
	}, []string{"outcome"})
)

// IncProcTerminate records a signal delivery attempt to a child process group
// (e.g. "SIGTERM"/"sent", "SIGKILL"/"esrch").
func IncProcTerminate(signal, outcome string) {
	procTerminateTotal.WithLabelValues(signal, outcome).Inc()
}

// IncProcWait records the outcome of waiting for a child process group to exit.
func IncProcWait(outcome string) {
	procWaitTotal.WithLabelValues(outcome).Inc()
}
