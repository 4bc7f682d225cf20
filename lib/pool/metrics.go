package pool

import "github.com/go-i2p/sqlpool/lib/metrics"

// Pool utilization metrics
var (
	// PoolResourcesMax is the maximum pool size.
	PoolResourcesMax = metrics.NewGauge(
		"sqlpool_pool_resources_max",
		"Maximum number of resources in the pool",
	)
	// PoolResourcesMin is the minimum pool size.
	PoolResourcesMin = metrics.NewGauge(
		"sqlpool_pool_resources_min",
		"Minimum number of resources kept in the pool",
	)
	// PoolResourcesOpen is the current number of resources in existence.
	PoolResourcesOpen = metrics.NewGauge(
		"sqlpool_pool_resources_open",
		"Current number of open resources, idle or leased",
	)
	// PoolResourcesIdle is the current number of idle resources.
	PoolResourcesIdle = metrics.NewGauge(
		"sqlpool_pool_resources_idle",
		"Current number of idle resources in the pool",
	)
	// PoolResourcesLeased is the number of outstanding handles.
	PoolResourcesLeased = metrics.NewGauge(
		"sqlpool_pool_resources_leased",
		"Number of resources currently leased",
	)
	// PoolAcquireTotal is the total number of acquire attempts.
	PoolAcquireTotal = metrics.NewCounter(
		"sqlpool_pool_acquire_total",
		"Total number of acquire attempts",
	)
	// PoolAcquireSuccessTotal is the number of successful acquires.
	PoolAcquireSuccessTotal = metrics.NewCounter(
		"sqlpool_pool_acquire_success_total",
		"Total number of successful acquires",
	)
	// PoolAcquireFailedTotal is the number of failed acquires.
	PoolAcquireFailedTotal = metrics.NewCounter(
		"sqlpool_pool_acquire_failed_total",
		"Total number of failed acquires",
	)
	// PoolReleaseTotal is the number of explicit releases.
	PoolReleaseTotal = metrics.NewCounter(
		"sqlpool_pool_release_total",
		"Total number of explicit releases",
	)
	// PoolReclaimTotal is the number of handles released by the idle reclaimer.
	PoolReclaimTotal = metrics.NewCounter(
		"sqlpool_pool_reclaim_total",
		"Total number of leases reclaimed after the idle timeout",
	)
	// PoolCreateTotal is the number of resources created by the factory.
	PoolCreateTotal = metrics.NewCounter(
		"sqlpool_pool_create_total",
		"Total number of resources created",
	)
	// PoolDiscardTotal is the number of invalid resources discarded.
	PoolDiscardTotal = metrics.NewCounter(
		"sqlpool_pool_discard_total",
		"Total number of resources discarded as invalid",
	)
	// PoolReplenishTotal is the number of resources created to restore the minimum.
	PoolReplenishTotal = metrics.NewCounter(
		"sqlpool_pool_replenish_total",
		"Total number of resources created to restore the minimum size",
	)
	// PoolAcquireLatency tracks time spent acquiring resources.
	PoolAcquireLatency = metrics.NewHistogram(
		"sqlpool_pool_acquire_duration_seconds",
		"Time spent acquiring a resource from the pool",
		metrics.DefaultLatencyBuckets,
	)
)

// UpdateMetrics updates the pool gauges from Stats.
func UpdateMetrics(stats Stats) {
	PoolResourcesMax.Set(int64(stats.MaxSize))
	PoolResourcesMin.Set(int64(stats.MinSize))
	PoolResourcesOpen.Set(int64(stats.Count))
	PoolResourcesIdle.Set(int64(stats.Idle))
	PoolResourcesLeased.Set(int64(stats.Leased))
}
