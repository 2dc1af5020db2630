package shared

import "context"

// CacheInvalidator receives tag-based invalidation signals after successful
// mutations. Signals are advisory; implementations must not fail the
// business operation.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, tags ...string)
}
