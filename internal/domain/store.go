package domain

import (
	"context"
	"time"
)

// ListOpts carries pagination and time filtering for store listings.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ResultStore persists execution results for analytics and archival.
type ResultStore interface {
	Create(ctx context.Context, res ExecutionResult) error
	List(ctx context.Context, opts ListOpts) ([]ExecutionResult, error)
	// DeleteBefore removes results older than cutoff and returns the count.
	// Used by the archiver after a successful upload.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditEntry is one append-only audit record.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore is the append-only operational audit log (rejections, emergency
// stops, stranded positions, approvals).
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// PriceCache caches the latest observed mid price per asset for dashboards
// and monitoring consumers.
type PriceCache interface {
	SetPrice(ctx context.Context, asset string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, asset string) (float64, time.Time, error)
}

// SignalBus fans execution events out to external consumers (alerting,
// analytics, dashboard feeds).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// BlobWriter writes a blob to object storage under the given key.
type BlobWriter interface {
	Write(ctx context.Context, key string, data []byte, contentType string) error
}

// Archiver moves aged rows from hot storage into object storage.
type Archiver interface {
	ArchiveBefore(ctx context.Context, cutoff time.Time) error
}
