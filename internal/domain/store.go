package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ResultFilter narrows window-result list queries.
type ResultFilter struct {
	ProductID string
	Detected  *bool
}

// ResultStore persists per-window analysis results.
type ResultStore interface {
	Insert(ctx context.Context, res WindowResult) error
	InsertBatch(ctx context.Context, results []WindowResult) error
	GetByID(ctx context.Context, id string) (WindowResult, error)
	GetLatest(ctx context.Context, productID string) (WindowResult, error)
	List(ctx context.Context, filter ResultFilter, opts ListOpts) ([]WindowResult, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]WindowResult, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// ProductStore persists the registry of tracked products.
type ProductStore interface {
	Upsert(ctx context.Context, info ProductInfo) error
	RecordResult(ctx context.Context, productID string, detected bool, at time.Time) error
	GetByID(ctx context.Context, productID string) (ProductInfo, error)
	List(ctx context.Context, opts ListOpts) ([]ProductInfo, error)
	Count(ctx context.Context) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of engine events.
// DeleteBefore's cutoff is inclusive, matching List's Until bound.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
