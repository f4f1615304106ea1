package repo

import (
	"context"

	"github.com/hamed0406/servicemonitor/internal/domain"
)

// ResultStore keeps the most recent cycle result. It holds no history.
type ResultStore interface {
	Save(ctx context.Context, r domain.CycleResult) error
	// Latest returns nil, nil before the first cycle completes.
	Latest(ctx context.Context) (*domain.CycleResult, error)
}
