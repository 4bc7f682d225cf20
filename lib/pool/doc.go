// Package pool provides a bounded pool of expensive, reusable resources
// such as database connections.
//
// The pool supports:
//   - A minimum size filled eagerly and restored when invalid resources are discarded
//   - A hard maximum size; Acquire fails fast instead of waiting
//   - FIFO reuse of idle resources
//   - Idle reclamation of leases that go unused for too long
//   - Dependent child resources closed together with their lease
//   - Metrics for pool utilization
//
// # Basic Usage
//
//	factory := func(ctx context.Context) (pool.Resource, error) {
//	    return dialResource(ctx)
//	}
//
//	cfg := pool.DefaultConfig()
//	cfg.MinSize = 2
//	cfg.MaxSize = 10
//	cfg.IdleTimeout = 5 * time.Minute
//
//	p, err := pool.New(factory, cfg)
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	h, err := p.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer h.Release()
//
//	err = h.Do(func(r pool.Resource) error {
//	    // Use the resource...
//	    return nil
//	})
//
// # Idle Reclamation
//
// With a non-zero IdleTimeout every lease carries a timer. Each operation
// through the handle touches it. When the timer fires, the remaining time is
// recomputed from the last touch; if the handle has been idle for the full
// timeout it is released back to the pool, otherwise the timer is set again.
//
// # Child Resources
//
// Resources derived from a lease, such as prepared statements, are wrapped
// in a Child registered on the handle:
//
//	stmt := pool.NewChild(h, rawStmt)
//
// Releasing the handle closes the child, and closing a child closes its own
// children.
//
// # Metrics
//
// Pool utilization metrics are registered with the metrics package:
//   - sqlpool_pool_resources_max: Maximum pool size
//   - sqlpool_pool_resources_min: Minimum pool size
//   - sqlpool_pool_resources_open: Resources in existence
//   - sqlpool_pool_resources_idle: Idle resources
//   - sqlpool_pool_resources_leased: Leased resources
//   - sqlpool_pool_acquire_total: Total acquire attempts
//   - sqlpool_pool_acquire_success_total: Successful acquires
//   - sqlpool_pool_acquire_failed_total: Failed acquires
//   - sqlpool_pool_release_total: Explicit releases
//   - sqlpool_pool_reclaim_total: Idle reclamations
//   - sqlpool_pool_create_total: Resources created
//   - sqlpool_pool_discard_total: Invalid resources discarded
//   - sqlpool_pool_replenish_total: Resources created to restore the minimum
//   - sqlpool_pool_acquire_duration_seconds: Acquire latency
package pool
