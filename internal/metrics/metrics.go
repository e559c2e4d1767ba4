// Package metrics provides Prometheus metrics for the file tree engines.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Content store requests
	contentsRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filetree_contents_requests_total",
			Help: "Total number of content store requests",
		},
		[]string{"backend", "op", "status"},
	)

	contentsRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filetree_contents_request_duration_seconds",
			Help:    "Content store request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	rateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filetree_rate_limit_hits_total",
			Help: "Total 429 responses from the content store",
		},
	)

	// Tree metrics
	treeRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filetree_tree_rows",
			Help: "Number of rendered rows",
		},
	)

	treeRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "filetree_tree_refresh_duration_seconds",
			Help:    "Time to rebuild the tree and restore open directories",
			Buckets: prometheus.DefBuckets,
		},
	)

	treeFetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filetree_tree_fetch_errors_total",
			Help: "Directory fetch failures absorbed during refresh and restore",
		},
		[]string{"phase"},
	)

	staleFetchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filetree_tree_stale_fetches_total",
			Help: "Fetch results discarded because a refresh superseded them",
		},
	)

	// Upload metrics
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filetree_uploads_total",
			Help: "Total uploads by strategy and outcome",
		},
		[]string{"strategy", "status"},
	)

	uploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filetree_upload_bytes_total",
			Help: "Total bytes sent by uploads",
		},
	)

	uploadChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filetree_upload_chunks_total",
			Help: "Total chunks written by chunked uploads",
		},
	)

	// Archive metrics
	archiveFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filetree_archive_files_total",
			Help: "Files added to folder archives",
		},
		[]string{"status"},
	)

	// Sidecar metrics
	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filetree_commands_total",
			Help: "Commands executed through the HTTP sidecar",
		},
		[]string{"command", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordContentsRequest records a content store request.
func RecordContentsRequest(backend, op string, status int, duration time.Duration) {
	contentsRequestsTotal.WithLabelValues(backend, op, strconv.Itoa(status)).Inc()
	contentsRequestDuration.WithLabelValues(backend, op).Observe(duration.Seconds())
	if status == http.StatusTooManyRequests {
		rateLimitHitsTotal.Inc()
	}
}

// SetTreeRows sets the current number of rendered rows.
func SetTreeRows(n int) {
	treeRows.Set(float64(n))
}

// RecordRefresh records a full tree refresh.
func RecordRefresh(duration time.Duration) {
	treeRefreshDuration.Observe(duration.Seconds())
}

// RecordFetchError records an absorbed fetch failure; phase is "refresh" or "restore".
func RecordFetchError(phase string) {
	treeFetchErrorsTotal.WithLabelValues(phase).Inc()
}

// RecordStaleFetch records a discarded out-of-date fetch result.
func RecordStaleFetch() {
	staleFetchesTotal.Inc()
}

// RecordUpload records a finished upload; status is "success", "error" or "cancelled".
func RecordUpload(chunked bool, status string, bytes int64) {
	strategy := "single"
	if chunked {
		strategy = "chunked"
	}
	uploadsTotal.WithLabelValues(strategy, status).Inc()
	uploadBytesTotal.Add(float64(bytes))
}

// RecordChunk records one chunk written.
func RecordChunk() {
	uploadChunksTotal.Inc()
}

// RecordArchiveFile records a file added to (or failed for) a folder archive.
func RecordArchiveFile(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	archiveFilesTotal.WithLabelValues(status).Inc()
}

// RecordCommand records a command handled by the sidecar.
func RecordCommand(command string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	commandsTotal.WithLabelValues(command, status).Inc()
}
