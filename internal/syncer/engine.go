// Package syncer is the offline-first synchronization engine. Every domain
// write lands in the local durable store first, then chases the remote
// collection store; failures become durable PendingSync records replayed by
// Drain. Local durability is never blocked on remote success.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"royalbakes/backend/internal/connectivity"
	"royalbakes/backend/internal/localstore"
	"royalbakes/backend/internal/remote"
	"royalbakes/backend/internal/xid"
)

// Kind names the domain write a PendingSync record replays.
type Kind string

const (
	KindSale         Kind = "sale"
	KindProducts     Kind = "products"
	KindSales        Kind = "sales"
	KindShift        Kind = "shift"
	KindShiftHistory Kind = "shiftHistory"
)

// maxAttempts bounds retries per record. A record that keeps failing (for
// example a payload the remote schema will never accept) is dropped rather
// than clogging the queue forever.
const maxAttempts = 3

// ErrRetryExhausted marks a PendingSync record dropped after maxAttempts
// failed replays. This is the one data-loss path; dropped records stay
// visible through Dropped().
var ErrRetryExhausted = errors.New("syncer: retry attempts exhausted")

// PendingSync is a queued, retryable description of a write that has not
// yet reached the remote store. The id is a creation-timestamp token.
type PendingSync struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
	Attempts  int             `json:"attempts"`
}

type DrainResult struct {
	Synced    int `json:"synced"`
	Remaining int `json:"remaining"`
	Dropped   int `json:"dropped"`
}

// Engine owns the PendingSync queue and the connectivity flag; repositories
// receive it by injection, there is no package-level state.
type Engine struct {
	local   localstore.Store
	remote  remote.Store
	monitor *connectivity.Monitor

	mu      sync.Mutex
	queue   []PendingSync
	dropped []PendingSync
}

// New restores any queue persisted by a previous run, so records survive a
// restart the same way the original survived a page reload.
func New(ctx context.Context, local localstore.Store, remoteStore remote.Store, monitor *connectivity.Monitor) (*Engine, error) {
	e := &Engine{local: local, remote: remoteStore, monitor: monitor}

	raw, ok, err := local.Get(ctx, localstore.KeyPendingSyncs)
	if err != nil {
		return nil, fmt.Errorf("syncer: load pending queue: %w", err)
	}
	if ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &e.queue); err != nil {
			return nil, fmt.Errorf("syncer: corrupt pending queue: %w", err)
		}
	}
	if len(e.queue) > 0 {
		log.Printf("[syncer] restored %d pending sync record(s)", len(e.queue))
	}
	return e, nil
}

func (e *Engine) Online() bool { return e.monitor.Online() }

func (e *Engine) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Pending returns a snapshot of the queue, oldest first.
func (e *Engine) Pending() []PendingSync {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PendingSync, len(e.queue))
	copy(out, e.queue)
	return out
}

// Dropped returns the records discarded after exhausting their retries, so
// the operator can see exactly what was lost.
func (e *Engine) Dropped() []PendingSync {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PendingSync, len(e.dropped))
	copy(out, e.dropped)
	return out
}

// Sync is the single write path for every domain repository. The payload is
// always written to the local store before any network is touched; a remote
// failure (or being offline) enqueues a PendingSync record and still
// returns nil. Only a local write failure is surfaced, because that breaks
// the durability guarantee the caller relies on.
func (e *Engine) Sync(ctx context.Context, kind Kind, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("syncer: encode %s payload: %w", kind, err)
	}

	if err := e.applyLocal(ctx, kind, data); err != nil {
		return err
	}

	if !e.monitor.Online() {
		e.enqueue(ctx, kind, data)
		return nil
	}

	if err := e.applyRemote(ctx, kind, data); err != nil {
		log.Printf("[syncer] WARN: remote write failed kind=%s, queued for retry: %v", kind, err)
		e.enqueue(ctx, kind, data)
	}
	return nil
}

// Drain replays queued records against the remote store, oldest first. The
// queue is persisted after every record, so a crash mid-drain leaves the
// remainder intact. Drain replays only the remote side: re-running the
// local write would regress the cache with a stale snapshot.
func (e *Engine) Drain(ctx context.Context) DrainResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.monitor.Online() {
		return DrainResult{Remaining: len(e.queue)}
	}

	var result DrainResult
	pending := e.queue
	remaining := make([]PendingSync, 0, len(pending))
	for i, rec := range pending {
		err := e.applyRemote(ctx, rec.Kind, rec.Payload)
		if err == nil {
			result.Synced++
		} else {
			rec.Attempts++
			if rec.Attempts >= maxAttempts {
				log.Printf("[syncer] ERROR: %v: dropping record id=%s kind=%s after %d attempts, data was not synced", ErrRetryExhausted, rec.ID, rec.Kind, rec.Attempts)
				e.dropped = append(e.dropped, rec)
				result.Dropped++
			} else {
				remaining = append(remaining, rec)
			}
		}
		// Persist after every record: kept records so far plus the
		// untouched tail, so a crash mid-drain loses nothing.
		e.queue = append(append([]PendingSync{}, remaining...), pending[i+1:]...)
		e.persistQueueLocked(ctx)
	}

	e.queue = remaining
	e.persistQueueLocked(ctx)
	result.Remaining = len(e.queue)

	if result.Remaining == 0 && result.Synced > 0 {
		log.Printf("[syncer] all data synced (%d record(s))", result.Synced)
	} else if result.Remaining > 0 {
		log.Printf("[syncer] drain finished with %d record(s) still pending", result.Remaining)
	}
	return result
}

func (e *Engine) enqueue(ctx context.Context, kind Kind, payload json.RawMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queue = append(e.queue, PendingSync{
		ID:        xid.New("sync"),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
	e.persistQueueLocked(ctx)
}

func (e *Engine) persistQueueLocked(ctx context.Context) {
	data, err := json.Marshal(e.queue)
	if err != nil {
		log.Printf("[syncer] ERROR: encode pending queue: %v", err)
		return
	}
	if err := e.local.Set(ctx, localstore.KeyPendingSyncs, data); err != nil {
		log.Printf("[syncer] ERROR: persist pending queue: %v", err)
	}
}

// applyLocal writes the payload into the cache key owned by kind,
// replacing the previous snapshot. KindSale merges the single sale into the
// cached sales snapshot by id so the cache keeps the newest local intent.
func (e *Engine) applyLocal(ctx context.Context, kind Kind, payload json.RawMessage) error {
	switch kind {
	case KindProducts:
		return e.local.Set(ctx, localstore.KeyProducts, payload)
	case KindSales:
		return e.local.Set(ctx, localstore.KeySales, payload)
	case KindShift:
		return e.local.Set(ctx, localstore.KeyActiveShift, payload)
	case KindShiftHistory:
		return e.local.Set(ctx, localstore.KeyShiftHistory, payload)
	case KindSale:
		return e.mergeSaleLocal(ctx, payload)
	default:
		return fmt.Errorf("syncer: unknown sync kind %q", kind)
	}
}

func (e *Engine) mergeSaleLocal(ctx context.Context, payload json.RawMessage) error {
	id, err := documentID(payload)
	if err != nil {
		return err
	}

	var sales []json.RawMessage
	raw, ok, err := e.local.Get(ctx, localstore.KeySales)
	if err != nil {
		return err
	}
	if ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &sales); err != nil {
			return fmt.Errorf("syncer: corrupt sales cache: %w", err)
		}
	}

	replaced := false
	for i, existing := range sales {
		existingID, err := documentID(existing)
		if err != nil {
			continue
		}
		if existingID == id {
			sales[i] = payload
			replaced = true
			break
		}
	}
	if !replaced {
		sales = append(sales, payload)
	}

	data, err := json.Marshal(sales)
	if err != nil {
		return err
	}
	return e.local.Set(ctx, localstore.KeySales, data)
}

// applyRemote performs the remote half of a write. Bulk kinds diff the
// snapshot against current remote content instead of delete-all-then-
// insert-all, so replays are idempotent and there is no empty-collection
// window. Single-entity kinds upsert by id for the same reason.
func (e *Engine) applyRemote(ctx context.Context, kind Kind, payload json.RawMessage) error {
	switch kind {
	case KindProducts:
		return e.replaceCollection(ctx, remote.CollectionProducts, payload)
	case KindSales:
		return e.replaceCollection(ctx, remote.CollectionSales, payload)
	case KindSale:
		return e.upsertOne(ctx, remote.CollectionSales, payload)
	case KindShift:
		return e.upsertOne(ctx, remote.CollectionShifts, payload)
	case KindShiftHistory:
		// History is append-only and shares the shifts collection with
		// the active shift, so deletes are never issued here.
		return e.upsertEach(ctx, remote.CollectionShifts, payload)
	default:
		return fmt.Errorf("syncer: unknown sync kind %q", kind)
	}
}

func (e *Engine) upsertOne(ctx context.Context, collection string, payload json.RawMessage) error {
	id, err := documentID(payload)
	if err != nil {
		return err
	}
	_, err = e.remote.Upsert(ctx, collection, remote.Record{ID: id, Data: payload})
	return err
}

func (e *Engine) upsertEach(ctx context.Context, collection string, payload json.RawMessage) error {
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return fmt.Errorf("syncer: %s payload is not a collection: %w", collection, err)
	}
	for _, item := range items {
		if err := e.upsertOne(ctx, collection, item); err != nil {
			return err
		}
	}
	return nil
}

// replaceCollection makes the remote collection equal to the snapshot:
// upsert documents that are new or changed, delete documents the snapshot
// no longer contains.
func (e *Engine) replaceCollection(ctx context.Context, collection string, payload json.RawMessage) error {
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return fmt.Errorf("syncer: %s payload is not a collection: %w", collection, err)
	}

	current, err := e.remote.QueryAll(ctx, collection)
	if err != nil {
		return err
	}
	existing := make(map[string]remote.Record, len(current))
	for _, rec := range current {
		existing[rec.ID] = rec
	}

	want := make(map[string]bool, len(items))
	for _, item := range items {
		id, err := documentID(item)
		if err != nil {
			return err
		}
		want[id] = true

		if prev, ok := existing[id]; ok && jsonEqual(prev.Data, item) {
			continue
		}
		if _, err := e.remote.Upsert(ctx, collection, remote.Record{ID: id, Data: item}); err != nil {
			return err
		}
	}

	for id := range existing {
		if want[id] {
			continue
		}
		if err := e.remote.DeleteByID(ctx, collection, id); err != nil {
			return err
		}
	}
	return nil
}

func documentID(data json.RawMessage) (string, error) {
	var doc struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("syncer: document has no readable id: %w", err)
	}
	if doc.ID == "" {
		return "", errors.New("syncer: document id is empty")
	}
	return doc.ID, nil
}

func jsonEqual(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return deepEqual(av, bv)
}

func deepEqual(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !deepEqual(v, bvv) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
