// Package remote defines the Remote Collection Store: the document backend
// the terminal syncs against whenever it is online. Implementations live in
// the postgres, mongo, and memory subpackages.
package remote

import (
	"context"
	"errors"
	"time"
)

// Collection names used by the domain repositories. Products and sales are
// one collection each; active shift and shift history share the shifts
// collection, split by whether endTime is null.
const (
	CollectionProducts = "products"
	CollectionSales    = "sales"
	CollectionShifts   = "shifts"
)

var (
	ErrNotFound = errors.New("remote: document not found")
	// ErrUnavailable wraps any transport or store-side failure. Callers
	// treat it as "queue and carry on", never as a hard failure.
	ErrUnavailable = errors.New("remote: store unavailable")
)

// Record is one document in a collection. Data is the JSON-encoded domain
// entity; UpdatedAt is stamped by Upsert and carried so a future
// conflict-detection pass has a per-entity timestamp to compare.
type Record struct {
	ID        string
	Data      []byte
	UpdatedAt time.Time
}

// Filter is the single predicate shape the repositories need: a field that
// must be JSON null/absent (Null true) or present and non-null (Null false).
// The zero Filter matches every document.
type Filter struct {
	Field string
	Null  bool
}

func (f Filter) Empty() bool { return f.Field == "" }

type Store interface {
	// QueryAll returns every document in the collection.
	QueryAll(ctx context.Context, collection string) ([]Record, error)
	// Query returns the documents matching filter, newest UpdatedAt first.
	Query(ctx context.Context, collection string, filter Filter) ([]Record, error)
	// GetSingleton returns the single document matching filter, or
	// ErrNotFound. If several match, the most recently updated wins.
	GetSingleton(ctx context.Context, collection string, filter Filter) (*Record, error)
	// Upsert inserts or fully replaces the document with rec.ID and stamps
	// UpdatedAt. The sale id doubles as the idempotency key: replaying an
	// upsert can never double-insert.
	Upsert(ctx context.Context, collection string, rec Record) (*Record, error)
	DeleteByID(ctx context.Context, collection string, id string) error
	// Ping reports whether the store is reachable; the connectivity
	// monitor probes it.
	Ping(ctx context.Context) error
}
