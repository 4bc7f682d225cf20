package pool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-i2p/sqlpool/lib/metrics"
)

// Resource is a raw pooled resource.
type Resource interface {
	// IsValid reports whether the resource can still be used. It must not
	// panic and should return promptly.
	IsValid() bool
	// Close releases the resource for good.
	Close() error
}

// Factory creates new resources.
type Factory func(ctx context.Context) (Resource, error)

// Config configures the pool.
type Config struct {
	// MinSize is the number of resources created up front and kept around
	// when invalid ones are discarded. It is best effort: factory failures
	// can leave the pool below it.
	// Default: 0
	MinSize int
	// MaxSize is the maximum number of resources in existence, idle or
	// leased. Must be at least 1; a Config literal that leaves it zero is
	// rejected. Use DefaultConfig for an unbounded pool.
	// Default: math.MaxInt
	MaxSize int
	// IdleTimeout is how long a leased handle may go without activity before
	// it is released automatically. Zero disables reclamation.
	// Default: 0
	IdleTimeout time.Duration
	// ReplenishTimeout bounds each factory call made to top the pool back
	// up to MinSize after a discard, so a hung dial cannot stall Release.
	// Zero means DefaultReplenishTimeout.
	ReplenishTimeout time.Duration
	// Clock drives idle reclamation. Nil means the system clock.
	Clock Clock
}

// DefaultReplenishTimeout is used when Config.ReplenishTimeout is zero.
const DefaultReplenishTimeout = 10 * time.Second

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		MinSize:     0,
		MaxSize:     math.MaxInt,
		IdleTimeout: 0,
	}
}

// Validate checks the size and timeout bounds.
func (c Config) Validate() error {
	if c.MinSize < 0 {
		return fmt.Errorf("%w: minimum size %d is less than zero", ErrInvalidConfiguration, c.MinSize)
	}
	if c.MaxSize < 1 {
		return fmt.Errorf("%w: maximum size %d is less than one", ErrInvalidConfiguration, c.MaxSize)
	}
	if c.MinSize > c.MaxSize {
		return fmt.Errorf("%w: minimum size %d is greater than maximum size %d",
			ErrInvalidConfiguration, c.MinSize, c.MaxSize)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("%w: idle timeout %v is negative", ErrInvalidConfiguration, c.IdleTimeout)
	}
	if c.ReplenishTimeout < 0 {
		return fmt.Errorf("%w: replenish timeout %v is negative", ErrInvalidConfiguration, c.ReplenishTimeout)
	}
	return nil
}

// Pool hands out leases on resources created by a Factory. Acquire never
// waits: it reuses an idle resource, creates a new one while fewer than
// MaxSize exist, or fails with ErrPoolExhausted.
type Pool struct {
	factory Factory
	config  Config
	clock   Clock

	count  atomic.Int64
	idle   idleQueue
	closed atomic.Bool

	leaseMu sync.Mutex
	leases  map[*Handle]struct{}

	acquireCount   atomic.Uint64
	acquireSuccess atomic.Uint64
	acquireFailed  atomic.Uint64
	releaseCount   atomic.Uint64
	reclaimCount   atomic.Uint64
	createCount    atomic.Uint64
	discardCount   atomic.Uint64
	replenishCount atomic.Uint64
}

// New creates a pool and fills it with cfg.MinSize idle resources. A
// factory failure during the fill stops it early without failing New.
func New(factory Factory, cfg Config) (*Pool, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: factory is required", ErrInvalidConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.ReplenishTimeout == 0 {
		cfg.ReplenishTimeout = DefaultReplenishTimeout
	}

	p := &Pool{
		factory: factory,
		config:  cfg,
		clock:   cfg.Clock,
		leases:  make(map[*Handle]struct{}),
	}
	p.fill(context.Background())

	log.WithField("minSize", cfg.MinSize).
		WithField("maxSize", cfg.MaxSize).
		WithField("idleTimeout", cfg.IdleTimeout).
		WithField("count", p.Count()).
		Debug("pool created")
	return p, nil
}

// fill creates MinSize idle resources.
func (p *Pool) fill(ctx context.Context) {
	for i := 0; i < p.config.MinSize; i++ {
		if !p.reserve() {
			return
		}
		raw, err := p.create(ctx)
		if err != nil {
			p.count.Add(-1)
			log.WithError(err).WithField("created", i).Warn("initial pool fill stopped")
			return
		}
		p.idle.push(raw)
	}
}

// MinSize returns the configured minimum size.
func (p *Pool) MinSize() int { return p.config.MinSize }

// MaxSize returns the configured maximum size.
func (p *Pool) MaxSize() int { return p.config.MaxSize }

// IdleTimeout returns the configured idle timeout.
func (p *Pool) IdleTimeout() time.Duration { return p.config.IdleTimeout }

// Count returns the number of resources in existence, idle or leased.
func (p *Pool) Count() int { return int(p.count.Load()) }

// Idle returns the number of resources waiting in the idle queue.
func (p *Pool) Idle() int { return p.idle.len() }

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool { return p.closed.Load() }

// Acquire leases a resource. An idle resource is reused if one is valid;
// invalid idle resources are discarded along the way. Otherwise a new
// resource is created, unless MaxSize already exist, in which case
// ErrPoolExhausted is returned. Factory errors are wrapped in ErrFactory.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	p.acquireCount.Add(1)
	PoolAcquireTotal.Inc()

	timer := metrics.NewTimer(PoolAcquireLatency)
	h, err := p.acquire(ctx)
	timer.ObserveDuration()

	if err != nil {
		p.acquireFailed.Add(1)
		PoolAcquireFailedTotal.Inc()
		log.WithError(err).Debug("acquire failed")
		return nil, err
	}

	p.acquireSuccess.Add(1)
	PoolAcquireSuccessTotal.Inc()
	return h, nil
}

func (p *Pool) acquire(ctx context.Context) (*Handle, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for {
		raw, ok := p.idle.pop()
		if !ok {
			break
		}
		if raw.IsValid() {
			return p.lease(raw)
		}
		log.Debug("discarding invalid idle resource")
		p.discard(raw)
	}

	if !p.reserve() {
		return nil, ErrPoolExhausted
	}
	raw, err := p.create(ctx)
	if err != nil {
		p.count.Add(-1)
		return nil, fmt.Errorf("%w: %w", ErrFactory, err)
	}
	return p.lease(raw)
}

// reserve claims an admission slot, failing once MaxSize is reached.
func (p *Pool) reserve() bool {
	limit := int64(p.config.MaxSize)
	for {
		n := p.count.Load()
		if n >= limit {
			return false
		}
		if p.count.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (p *Pool) create(ctx context.Context) (Resource, error) {
	raw, err := p.factory(ctx)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("factory returned a nil resource")
	}
	p.createCount.Add(1)
	PoolCreateTotal.Inc()
	return raw, nil
}

// lease wraps raw in a new handle and starts its idle timer.
func (p *Pool) lease(raw Resource) (*Handle, error) {
	h := newHandle(p, raw)

	p.leaseMu.Lock()
	if p.closed.Load() {
		p.leaseMu.Unlock()
		p.drop(raw)
		return nil, ErrPoolClosed
	}
	p.leases[h] = struct{}{}
	p.leaseMu.Unlock()

	if p.config.IdleTimeout > 0 {
		h.armTimer(p.config.IdleTimeout)
	}
	return h, nil
}

func (p *Pool) forget(h *Handle) {
	p.leaseMu.Lock()
	delete(p.leases, h)
	p.leaseMu.Unlock()
}

// Release returns a handle to the pool. The handle must have been leased
// from this pool. Releasing an already released handle does nothing.
func (p *Pool) Release(h *Handle) error {
	if h == nil || h.pool != p {
		return ErrInvalidHandle
	}
	if p.release(h) {
		p.releaseCount.Add(1)
		PoolReleaseTotal.Inc()
	}
	return nil
}

// reclaim is the idle timer's path into Release.
func (p *Pool) reclaim(h *Handle) {
	if !p.release(h) {
		return
	}
	p.reclaimCount.Add(1)
	PoolReclaimTotal.Inc()
	log.WithField("idleTimeout", p.config.IdleTimeout).Debug("reclaimed idle handle")
}

// release ends the lease and routes the resource back. It reports whether
// this call was the one that ended the lease.
func (p *Pool) release(h *Handle) bool {
	raw := h.release()
	if raw == nil {
		return false
	}
	p.forget(h)

	if !raw.IsValid() {
		p.discard(raw)
		return true
	}
	if !p.idle.push(raw) {
		p.drop(raw)
	}
	return true
}

// discard removes an invalid resource from the count and tops the pool
// back up to MinSize.
func (p *Pool) discard(raw Resource) {
	p.discardCount.Add(1)
	PoolDiscardTotal.Inc()
	if err := raw.Close(); err != nil {
		log.WithError(err).Debug("closing discarded resource")
	}
	if p.count.Add(-1) < int64(p.config.MinSize) && !p.closed.Load() {
		p.replenish()
	}
}

// replenish adds one idle resource. Failures are logged and otherwise
// ignored; the caller that triggered it has nothing to do with them.
func (p *Pool) replenish() {
	if !p.reserve() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.config.ReplenishTimeout)
	defer cancel()
	raw, err := p.create(ctx)
	if err != nil {
		p.count.Add(-1)
		log.WithError(err).Debug("replenish failed")
		return
	}
	if !p.idle.push(raw) {
		p.drop(raw)
		return
	}
	p.replenishCount.Add(1)
	PoolReplenishTotal.Inc()
}

// drop closes raw and removes it from the count.
func (p *Pool) drop(raw Resource) error {
	p.count.Add(-1)
	if err := raw.Close(); err != nil {
		log.WithError(err).Debug("closing dropped resource")
		return err
	}
	return nil
}

// Close shuts the pool down. Idle resources are closed, and every handle
// still leased is released (its listeners run) and its resource closed.
// Later calls to Acquire return ErrPoolClosed; releasing a handle that was
// leased before Close is a no-op. Close returns the errors from closing
// resources, or ErrPoolClosed if the pool was already closed.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return ErrPoolClosed
	}

	var errs []error
	for _, raw := range p.idle.close() {
		errs = append(errs, p.drop(raw))
	}

	p.leaseMu.Lock()
	outstanding := make([]*Handle, 0, len(p.leases))
	for h := range p.leases {
		outstanding = append(outstanding, h)
	}
	p.leaseMu.Unlock()

	for _, h := range outstanding {
		if raw := h.release(); raw != nil {
			p.forget(h)
			errs = append(errs, p.drop(raw))
		}
	}

	UpdateMetrics(p.Stats())
	log.WithField("revoked", len(outstanding)).WithField("count", p.Count()).Debug("pool closed")
	return errors.Join(errs...)
}

// Stats is a snapshot of pool state and counters.
type Stats struct {
	MinSize     int           `json:"min_size"`
	MaxSize     int           `json:"max_size"`
	IdleTimeout time.Duration `json:"idle_timeout"`
	// Count is the number of resources in existence.
	Count int `json:"count"`
	// Idle is the number of resources waiting in the idle queue.
	Idle int `json:"idle"`
	// Leased is the number of outstanding handles.
	Leased int  `json:"leased"`
	Closed bool `json:"closed"`

	AcquireCount   uint64 `json:"acquire_count"`
	AcquireSuccess uint64 `json:"acquire_success"`
	AcquireFailed  uint64 `json:"acquire_failed"`
	ReleaseCount   uint64 `json:"release_count"`
	ReclaimCount   uint64 `json:"reclaim_count"`
	CreateCount    uint64 `json:"create_count"`
	DiscardCount   uint64 `json:"discard_count"`
	ReplenishCount uint64 `json:"replenish_count"`
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	p.leaseMu.Lock()
	leased := len(p.leases)
	p.leaseMu.Unlock()

	return Stats{
		MinSize:        p.config.MinSize,
		MaxSize:        p.config.MaxSize,
		IdleTimeout:    p.config.IdleTimeout,
		Count:          p.Count(),
		Idle:           p.idle.len(),
		Leased:         leased,
		Closed:         p.closed.Load(),
		AcquireCount:   p.acquireCount.Load(),
		AcquireSuccess: p.acquireSuccess.Load(),
		AcquireFailed:  p.acquireFailed.Load(),
		ReleaseCount:   p.releaseCount.Load(),
		ReclaimCount:   p.reclaimCount.Load(),
		CreateCount:    p.createCount.Load(),
		DiscardCount:   p.discardCount.Load(),
		ReplenishCount: p.replenishCount.Load(),
	}
}
