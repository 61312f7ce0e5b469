package ingest

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what an ingest run did. Each Metrics owns its registry so
// runs (and tests) never share counters.
type Metrics struct {
	registry *prometheus.Registry

	FilesProcessed  prometheus.Counter
	FilesSkipped    prometheus.Counter
	FilesFailed     prometheus.Counter
	RecordsRejected prometheus.Counter
	EventsStored    prometheus.Counter
	EventsDuplicate prometheus.Counter
	EventsOrphaned  prometheus.Counter
	Games           *prometheus.CounterVec
	PlayersExcluded prometheus.Counter
	BatchDuration   prometheus.Histogram
	LastSuccess     prometheus.Gauge
}

// NewMetrics creates and registers the run metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FilesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hllmetrics_files_processed_total",
			Help: "Event files committed",
		}),
		FilesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hllmetrics_files_skipped_total",
			Help: "Event files skipped because an earlier run processed them",
		}),
		FilesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hllmetrics_files_failed_total",
			Help: "Event files that could not be read or decoded",
		}),
		RecordsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hllmetrics_records_rejected_total",
			Help: "Records dropped by validation",
		}),
		EventsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hllmetrics_events_stored_total",
			Help: "Events inserted into the store",
		}),
		EventsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hllmetrics_events_duplicate_total",
			Help: "Events dropped because their id was already known",
		}),
		EventsOrphaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hllmetrics_events_orphaned_total",
			Help: "Events older than their server's open game",
		}),
		Games: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hllmetrics_games_total",
			Help: "Game state transitions observed",
		}, []string{"state"}),
		PlayersExcluded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hllmetrics_players_excluded_total",
			Help: "Players left out of game stats because their presence could not be reconstructed",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hllmetrics_batch_duration_seconds",
			Help:    "Time spent processing and committing one batch",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hllmetrics_last_success_timestamp_seconds",
			Help: "Unix time of the last completed run",
		}),
	}
	m.registry.MustRegister(
		m.FilesProcessed, m.FilesSkipped, m.FilesFailed, m.RecordsRejected,
		m.EventsStored, m.EventsDuplicate, m.EventsOrphaned,
		m.Games, m.PlayersExcluded, m.BatchDuration, m.LastSuccess,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile writes the metrics in the text exposition format, suitable
// for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
