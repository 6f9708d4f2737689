// Package metrics holds Prometheus instruments that are used across the
// service.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// IdentityResolutions counts Resolve outcomes by source
	// ("session", "host", "none", "error").
	IdentityResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteconf_identity_resolutions_total",
			Help: "Tenant identity resolutions by winning source.",
		}, []string{"source"})

	HostCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "siteconf_host_cache_entries",
			Help: "Number of host mappings currently cached in memory.",
		})

	HostLoadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "siteconf_host_load_total",
			Help: "Cumulative number of host mappings loaded from the metadata store.",
		})

	HostLoadErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "siteconf_host_load_errors_total",
			Help: "Cumulative number of host lookups that failed upstream.",
		})

	HostEvictTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "siteconf_host_evict_total",
			Help: "Cumulative number of host mappings evicted from the cache.",
		})

	// FragmentFetchFailures counts fragments collapsed to null, by reason
	// ("upstream", "invalid_json").
	FragmentFetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteconf_fragment_fetch_failures_total",
			Help: "Fragments collapsed to null during composition.",
		}, []string{"reason"})

	ComposeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "siteconf_compose_duration_seconds",
			Help:    "Wall time of one full composition fan-out.",
			Buckets: prometheus.DefBuckets,
		})

	// SaveKeys counts per-key save outcomes ("ok", "failed").
	SaveKeys = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteconf_save_keys_total",
			Help: "Per-key outcomes of save bundles.",
		}, []string{"outcome"})

	// AuthEvents counts auth operations by event and result.
	AuthEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteconf_auth_events_total",
			Help: "Signup, login, logout, and reset events by result.",
		}, []string{"event", "result"})

	JanitorPurged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteconf_janitor_purged_total",
			Help: "Expired rows removed by the janitor job.",
		}, []string{"table"})
)

func init() {
	prometheus.MustRegister(
		IdentityResolutions,
		HostCacheEntries,
		HostLoadTotal,
		HostLoadErrorsTotal,
		HostEvictTotal,
		FragmentFetchFailures,
		ComposeDuration,
		SaveKeys,
		AuthEvents,
		JanitorPurged,
	)
}
