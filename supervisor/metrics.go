package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	processStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hamlaunch_process_starts_total",
		Help: "Processes launched, by binary",
	}, []string{"binary"})

	processExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hamlaunch_process_exits_total",
		Help: "Process lifetimes ended, by how they ended (exited, stopped, killed)",
	}, []string{"reason"})

	linesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hamlaunch_output_lines_total",
		Help: "Lines read from process output",
	})

	linesEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hamlaunch_output_evicted_lines_total",
		Help: "Lines dropped from the output buffer to stay within its limit",
	})

	streamErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hamlaunch_output_stream_errors_total",
		Help: "Output streams that ended with a read error",
	})

	supervisorState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hamlaunch_supervisor_state",
		Help: "Current supervisor state (0=Idle 1=Starting 2=Running 3=Stopping 4=Exited)",
	})

	stopDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hamlaunch_stop_duration_seconds",
		Help:    "Time taken by Stop to end a process",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
	})
)
