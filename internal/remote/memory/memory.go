// Package memory is the in-process remote.Store. It backs tests (with
// failure injection) and dev mode when no remote backend is configured.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"royalbakes/backend/internal/remote"
)

type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]remote.Record
	failing     bool
	failures    int
}

func New() *Store {
	return &Store{collections: make(map[string]map[string]remote.Record)}
}

// SetFailing makes every operation (including Ping) return
// remote.ErrUnavailable until cleared. Tests use it to simulate an
// unreachable backend.
func (s *Store) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

// FailureCount returns how many operations were rejected while failing.
func (s *Store) FailureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

func (s *Store) checkLocked() error {
	if s.failing {
		s.failures++
		return remote.ErrUnavailable
	}
	return nil
}

func (s *Store) QueryAll(ctx context.Context, collection string) ([]remote.Record, error) {
	return s.Query(ctx, collection, remote.Filter{})
}

func (s *Store) Query(_ context.Context, collection string, filter remote.Filter) ([]remote.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return nil, err
	}

	var out []remote.Record
	for _, rec := range s.collections[collection] {
		if matches(rec, filter) {
			out = append(out, cloned(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) GetSingleton(ctx context.Context, collection string, filter remote.Filter) (*remote.Record, error) {
	recs, err := s.Query(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, remote.ErrNotFound
	}
	return &recs[0], nil
}

func (s *Store) Upsert(_ context.Context, collection string, rec remote.Record) (*remote.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return nil, err
	}

	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]remote.Record)
	}
	rec.UpdatedAt = time.Now().UTC()
	s.collections[collection][rec.ID] = cloned(rec)
	out := cloned(rec)
	return &out, nil
}

func (s *Store) DeleteByID(_ context.Context, collection string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}

	delete(s.collections[collection], id)
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkLocked()
}

func cloned(rec remote.Record) remote.Record {
	data := make([]byte, len(rec.Data))
	copy(data, rec.Data)
	rec.Data = data
	return rec
}

var jsonNull = []byte("null")

func matches(rec remote.Record, filter remote.Filter) bool {
	if filter.Empty() {
		return true
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(rec.Data, &fields); err != nil {
		return false
	}
	raw, present := fields[filter.Field]
	isNull := !present || bytes.Equal(bytes.TrimSpace(raw), jsonNull)
	return isNull == filter.Null
}
