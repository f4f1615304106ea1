package repo

import (
	"context"
	"time"

	"github.com/hamed0406/servicemonitor/internal/domain"
)

// AlertRecord is the per-endpoint state used to alert on status changes:
// the status before the latest transition, the current status, and the
// last time a notification mentioned the endpoint.
type AlertRecord struct {
	Endpoint   domain.Endpoint
	Previous   domain.Status
	Current    domain.Status
	ChangedAt  time.Time
	LastSentAt *time.Time
}

// AlertStore is keyed by domain.Endpoint.Key.
type AlertStore interface {
	// Get returns nil, nil if there's no record yet.
	Get(ctx context.Context, key string) (*AlertRecord, error)
	Set(ctx context.Context, rec AlertRecord) error
}
