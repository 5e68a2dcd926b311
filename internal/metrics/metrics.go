// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "commit_tracker"

// Metrics groups the collectors exported by the tracker.
type Metrics struct {
	SyncCycles         prometheus.Counter
	SyncCycleDuration  prometheus.Histogram
	CommitsAnnounced   prometheus.Counter
	CommitsUnannounced prometheus.Counter
	BaselinesCaptured  prometheus.Counter
	TrackedChannels    prometheus.Gauge
	StoreSaveFailures  prometheus.Counter
	PrunedChannels     prometheus.Counter
	GithubRequests     *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SyncCycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_cycles_total",
			Help:      "Number of completed sync-all cycles.",
		}),
		SyncCycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_cycle_duration_seconds",
			Help:      "Duration of sync-all cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		CommitsAnnounced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_announced_total",
			Help:      "Commits handed to the notifier.",
		}),
		CommitsUnannounced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_unannounced_total",
			Help:      "New commits skipped because of the per-cycle batch cap.",
		}),
		BaselinesCaptured: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "baselines_captured_total",
			Help:      "Watermarks established without notification.",
		}),
		TrackedChannels: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_channels",
			Help:      "Number of channels currently linked to a repository.",
		}),
		StoreSaveFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_save_failures_total",
			Help:      "Failed attempts to persist the mapping set.",
		}),
		PrunedChannels: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pruned_channels_total",
			Help:      "Mappings removed because their channel no longer exists.",
		}),
		GithubRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "github_requests_total",
			Help:      "Requests made to the GitHub API by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}
}
