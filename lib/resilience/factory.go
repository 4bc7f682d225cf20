package resilience

import (
	"context"

	"github.com/go-i2p/sqlpool/lib/pool"
)

// Factory wraps f so that dials go through b. While b is open the returned
// factory fails with ErrOpen without calling f; the pool reports that as a
// factory error like any other.
func Factory(b *Breaker, f pool.Factory) pool.Factory {
	return func(ctx context.Context) (pool.Resource, error) {
		var r pool.Resource
		err := b.Execute(ctx, func(ctx context.Context) error {
			var err error
			r, err = f(ctx)
			return err
		})
		return r, err
	}
}
