package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market records.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	GetByAsset(ctx context.Context, asset string) (Market, error)
	List(ctx context.Context) ([]Market, error)
}

// OrderStore persists order snapshots. The in-memory engine is the source
// of truth; this store is a query and audit projection of it.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	Update(ctx context.Context, order Order) error
	GetByID(ctx context.Context, asset string, id uint64) (Order, error)
	ListByOwner(ctx context.Context, asset string, owner common.Address) ([]Order, error)
	ListByAsset(ctx context.Context, asset string, opts ListOpts) ([]Order, error)
	// ListTerminalBefore returns filled/cancelled orders that reached their
	// terminal state strictly before the cutoff, for archival.
	ListTerminalBefore(ctx context.Context, before time.Time) ([]Order, error)
}

// FillStore persists accepted fills.
type FillStore interface {
	Insert(ctx context.Context, fill Fill) error
	ListByOrder(ctx context.Context, asset string, orderID uint64) ([]Fill, error)
	ListBefore(ctx context.Context, before time.Time) ([]Fill, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
