package vlog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus metrics.
type Metrics struct {
	appendsTotal     prometheus.Counter
	bytesWritten     prometheus.Counter
	flushesTotal     prometheus.Counter
	syncsTotal       prometheus.Counter
	rotationsTotal   prometheus.Counter
	corruptionEvents prometheus.Counter

	gcRoundsTotal    prometheus.Counter
	gcReclaimedBytes prometheus.Counter
	gcSkippedLocked  prometheus.Counter

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
}

// NewMetrics creates and registers the engine metrics. Tests pass a private
// prometheus.NewRegistry so several engines can coexist in one process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		appendsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "valog_appends_total",
			Help: "Total number of records appended to the value log",
		}),
		bytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "valog_bytes_written_total",
			Help: "Total bytes appended, including headers and end markers",
		}),
		flushesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "valog_flushes_total",
			Help: "Total number of write-slot flushes handed to the OS",
		}),
		syncsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "valog_syncs_total",
			Help: "Total number of fsync barriers",
		}),
		rotationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "valog_rotations_total",
			Help: "Total number of log file rotations",
		}),
		corruptionEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "valog_corruption_events_total",
			Help: "Total checksum failures observed on reads and recovery scans",
		}),
		gcRoundsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "valog_gc_rounds_total",
			Help: "Total number of completed GC rounds",
		}),
		gcReclaimedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "valog_gc_reclaimed_bytes_total",
			Help: "Total bytes reclaimed by GC",
		}),
		gcSkippedLocked: factory.NewCounter(prometheus.CounterOpts{
			Name: "valog_gc_skipped_locked_total",
			Help: "GC target files skipped because their advisory lock was busy",
		}),
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "valog_cache_hits_total",
			Help: "Read-side cache hits",
		}, []string{"cache"}),
		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "valog_cache_misses_total",
			Help: "Read-side cache misses",
		}, []string{"cache"}),
	}
}
