package port

import (
	"context"

	"github.com/rl1809/quick-commerce/internal/core/domain"
)

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a key whose request failed before any side effect
	ReleaseIdempotency(ctx context.Context, key string) error
}

// ReconciliationLog keeps settlements that decremented stock without a
// matching order write, until someone reconciles them by hand.
type ReconciliationLog interface {
	RecordDiscrepancy(ctx context.Context, d domain.Discrepancy) error
	ListPending(ctx context.Context) ([]domain.Discrepancy, error)
	// MarkResolved resolves a pending discrepancy and returns it. It returns
	// nil when the id is unknown or already resolved, so concurrent callers
	// cannot both claim it.
	MarkResolved(ctx context.Context, id string) (*domain.Discrepancy, error)
}
