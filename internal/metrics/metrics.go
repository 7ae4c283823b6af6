// Package metrics provides Prometheus metrics for the reconstruction pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchedBytes counts payload bytes received from range and full fetches.
	FetchedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mpdgrab_fetched_bytes_total",
		Help: "Total payload bytes received from origin fetches.",
	})

	// FetchFailures counts failed fetches by failure class (transport, status, body).
	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpdgrab_fetch_failures_total",
		Help: "Total number of failed origin fetches, by failure class.",
	}, []string{"class"})

	// MuxTotal counts external multiplexer invocations by result.
	MuxTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpdgrab_mux_total",
		Help: "Total number of mux invocations, by result (ok/failed) and path (manifest/passive).",
	}, []string{"path", "result"})

	// ArtifactsTotal counts written output artifacts by kind.
	ArtifactsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpdgrab_artifacts_total",
		Help: "Total number of written artifacts, by kind (video/image/track).",
	}, []string{"kind"})

	// ItemFailures counts items whose reconstruction was aborted, by reason.
	ItemFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpdgrab_item_failures_total",
		Help: "Total number of aborted item reconstructions, by reason.",
	}, []string{"reason"})

	// FragmentsObserved counts passively captured fragments accepted into a store.
	FragmentsObserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mpdgrab_fragments_observed_total",
		Help: "Total number of passively captured fragments accepted.",
	})

	// TracksDiscarded counts reassembled passive tracks dropped below the size threshold.
	TracksDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mpdgrab_tracks_discarded_total",
		Help: "Total number of reassembled tracks discarded as noise.",
	})

	// ActiveSessions tracks open capture sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mpdgrab_active_sessions",
		Help: "Current number of open capture sessions.",
	})
)
