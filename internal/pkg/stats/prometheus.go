package stats

import (
	"net/http"
	"os"

	"github.com/internetarchive/Talos/internal/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type prometheusStats struct {
	pagesProcessed  *prometheus.CounterVec
	pagesSkipped    *prometheus.CounterVec
	pagesFailed     *prometheus.CounterVec
	itemsPersisted  *prometheus.CounterVec
	itemsSkipped    *prometheus.CounterVec
	itemsErrored    *prometheus.CounterVec
	itemsBanned     *prometheus.CounterVec
	bytesDownloaded *prometheus.CounterVec
	http2xx         *prometheus.CounterVec
	http3xx         *prometheus.CounterVec
	http4xx         *prometheus.CounterVec
	http5xx         *prometheus.CounterVec
}

var (
	globalPromStats *prometheusStats
	hostname        string
)

func promPrefix() string {
	if config.Get() != nil && config.Get().PrometheusPrefix != "" {
		return config.Get().PrometheusPrefix
	}
	return "talos_"
}

func promLabels() []string {
	job := ""
	if config.Get() != nil {
		job = config.Get().Job
	}
	return []string{job, hostname}
}

func initPrometheus() {
	hostname, _ = os.Hostname()

	labels := []string{"job", "hostname"}
	globalPromStats = &prometheusStats{
		pagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: promPrefix() + "pages_processed", Help: "Total number of search pages fully processed"},
			labels,
		),
		pagesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: promPrefix() + "pages_skipped", Help: "Total number of search pages skipped as already completed"},
			labels,
		),
		pagesFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: promPrefix() + "pages_failed", Help: "Total number of search pages recorded as failed"},
			labels,
		),
		itemsPersisted: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: promPrefix() + "items_persisted", Help: "Total number of items validated and recorded"},
			labels,
		),
		itemsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: promPrefix() + "items_skipped", Help: "Total number of items skipped by deduplication"},
			labels,
		),
		itemsErrored: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: promPrefix() + "items_errored", Help: "Total number of items that failed in any stage"},
			labels,
		),
		itemsBanned: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: promPrefix() + "items_banned", Help: "Total number of items discarded because their author is banned"},
			labels,
		),
		bytesDownloaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: promPrefix() + "bytes_downloaded", Help: "Total number of binary bytes downloaded"},
			labels,
		),
		http2xx: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: promPrefix() + "http_2xx", Help: "Number of HTTP 2xx responses"},
			labels,
		),
		http3xx: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: promPrefix() + "http_3xx", Help: "Number of HTTP 3xx responses"},
			labels,
		),
		http4xx: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: promPrefix() + "http_4xx", Help: "Number of HTTP 4xx responses"},
			labels,
		),
		http5xx: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: promPrefix() + "http_5xx", Help: "Number of HTTP 5xx responses"},
			labels,
		),
	}

	prometheus.MustRegister(globalPromStats.pagesProcessed)
	prometheus.MustRegister(globalPromStats.pagesSkipped)
	prometheus.MustRegister(globalPromStats.pagesFailed)
	prometheus.MustRegister(globalPromStats.itemsPersisted)
	prometheus.MustRegister(globalPromStats.itemsSkipped)
	prometheus.MustRegister(globalPromStats.itemsErrored)
	prometheus.MustRegister(globalPromStats.itemsBanned)
	prometheus.MustRegister(globalPromStats.bytesDownloaded)
	prometheus.MustRegister(globalPromStats.http2xx)
	prometheus.MustRegister(globalPromStats.http3xx)
	prometheus.MustRegister(globalPromStats.http4xx)
	prometheus.MustRegister(globalPromStats.http5xx)
}

// PrometheusHandler returns the HTTP handler serving the registered metrics.
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}
