// Package repo holds the typed domain repositories. Reads are
// remote-authoritative while online (successful results overwrite the local
// cache), local-cache-authoritative otherwise; writes always go through the
// sync engine.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"

	"royalbakes/backend/internal/domain"
	"royalbakes/backend/internal/localstore"
	"royalbakes/backend/internal/remote"
	"royalbakes/backend/internal/syncer"
)

type Repositories struct {
	Products     *Products
	Sales        *Sales
	ActiveShift  *ActiveShift
	ShiftHistory *ShiftHistory
	Cart         *Cart
}

func New(engine *syncer.Engine, local localstore.Store, remoteStore remote.Store) *Repositories {
	base := base{engine: engine, local: local, remote: remoteStore}
	return &Repositories{
		Products:     &Products{base},
		Sales:        &Sales{base},
		ActiveShift:  &ActiveShift{base},
		ShiftHistory: &ShiftHistory{base},
		Cart:         &Cart{base},
	}
}

type base struct {
	engine *syncer.Engine
	local  localstore.Store
	remote remote.Store
}

func (b base) writeCache(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("[repo] WARN: encode cache %s: %v", key, err)
		return
	}
	if err := b.local.Set(ctx, key, data); err != nil {
		log.Printf("[repo] WARN: write cache %s: %v", key, err)
	}
}

func (b base) loadCache(ctx context.Context, key string, out any) (bool, error) {
	raw, ok, err := b.local.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("repo: corrupt cache %s: %w", key, err)
	}
	return true, nil
}

type Products struct {
	base
}

func (r *Products) Get(ctx context.Context) ([]domain.Product, error) {
	if r.engine.Online() {
		recs, err := r.remote.QueryAll(ctx, remote.CollectionProducts)
		if err == nil {
			products := make([]domain.Product, 0, len(recs))
			for _, rec := range recs {
				var p domain.Product
				if err := json.Unmarshal(rec.Data, &p); err != nil {
					return nil, fmt.Errorf("repo: decode product %s: %w", rec.ID, err)
				}
				products = append(products, p)
			}
			sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
			r.writeCache(ctx, localstore.KeyProducts, products)
			return products, nil
		}
		log.Printf("[repo] WARN: remote products read failed, using local cache: %v", err)
	}

	products := []domain.Product{}
	if _, err := r.loadCache(ctx, localstore.KeyProducts, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *Products) Save(ctx context.Context, products []domain.Product) error {
	return r.engine.Sync(ctx, syncer.KindProducts, products)
}

type Sales struct {
	base
}

func (r *Sales) Get(ctx context.Context) ([]domain.Sale, error) {
	if r.engine.Online() {
		recs, err := r.remote.QueryAll(ctx, remote.CollectionSales)
		if err == nil {
			sales := make([]domain.Sale, 0, len(recs))
			for _, rec := range recs {
				var s domain.Sale
				if err := json.Unmarshal(rec.Data, &s); err != nil {
					return nil, fmt.Errorf("repo: decode sale %s: %w", rec.ID, err)
				}
				sales = append(sales, s)
			}
			sort.Slice(sales, func(i, j int) bool { return sales[i].Date.Before(sales[j].Date) })
			r.writeCache(ctx, localstore.KeySales, sales)
			return sales, nil
		}
		log.Printf("[repo] WARN: remote sales read failed, using local cache: %v", err)
	}

	sales := []domain.Sale{}
	if _, err := r.loadCache(ctx, localstore.KeySales, &sales); err != nil {
		return nil, err
	}
	return sales, nil
}

// Record captures a single new sale. The single-entity kind replays as an
// upsert keyed by the sale id, so a retry can never double-insert.
func (r *Sales) Record(ctx context.Context, sale domain.Sale) error {
	return r.engine.Sync(ctx, syncer.KindSale, sale)
}

// SaveAll replaces the whole sales snapshot (refund mutations).
func (r *Sales) SaveAll(ctx context.Context, sales []domain.Sale) error {
	return r.engine.Sync(ctx, syncer.KindSales, sales)
}

type ActiveShift struct {
	base
}

var activeShiftFilter = remote.Filter{Field: "endTime", Null: true}

func (r *ActiveShift) Get(ctx context.Context) (*domain.Shift, error) {
	if r.engine.Online() {
		rec, err := r.remote.GetSingleton(ctx, remote.CollectionShifts, activeShiftFilter)
		switch {
		case err == nil:
			var shift domain.Shift
			if err := json.Unmarshal(rec.Data, &shift); err != nil {
				return nil, fmt.Errorf("repo: decode shift %s: %w", rec.ID, err)
			}
			r.writeCache(ctx, localstore.KeyActiveShift, shift)
			return &shift, nil
		case errors.Is(err, remote.ErrNotFound):
			// Remote is authoritative: no active shift anywhere.
			r.writeCache(ctx, localstore.KeyActiveShift, nil)
			return nil, nil
		default:
			log.Printf("[repo] WARN: remote shift read failed, using local cache: %v", err)
		}
	}

	var shift *domain.Shift
	if _, err := r.loadCache(ctx, localstore.KeyActiveShift, &shift); err != nil {
		return nil, err
	}
	return shift, nil
}

func (r *ActiveShift) Save(ctx context.Context, shift domain.Shift) error {
	return r.engine.Sync(ctx, syncer.KindShift, shift)
}

// Clear empties the active-shift slot in the local cache. The remote side
// needs no delete: a closed shift stops matching the endTime-null filter.
func (r *ActiveShift) Clear(ctx context.Context) error {
	return r.local.Set(ctx, localstore.KeyActiveShift, []byte("null"))
}

type ShiftHistory struct {
	base
}

var closedShiftFilter = remote.Filter{Field: "endTime", Null: false}

func (r *ShiftHistory) Get(ctx context.Context) ([]domain.Shift, error) {
	if r.engine.Online() {
		recs, err := r.remote.Query(ctx, remote.CollectionShifts, closedShiftFilter)
		if err == nil {
			history := make([]domain.Shift, 0, len(recs))
			for _, rec := range recs {
				var s domain.Shift
				if err := json.Unmarshal(rec.Data, &s); err != nil {
					return nil, fmt.Errorf("repo: decode shift %s: %w", rec.ID, err)
				}
				history = append(history, s)
			}
			sort.Slice(history, func(i, j int) bool { return history[i].StartTime.After(history[j].StartTime) })
			r.writeCache(ctx, localstore.KeyShiftHistory, history)
			return history, nil
		}
		log.Printf("[repo] WARN: remote shift history read failed, using local cache: %v", err)
	}

	history := []domain.Shift{}
	if _, err := r.loadCache(ctx, localstore.KeyShiftHistory, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (r *ShiftHistory) Save(ctx context.Context, history []domain.Shift) error {
	return r.engine.Sync(ctx, syncer.KindShiftHistory, history)
}

// Cart is local-only working state; it never syncs to the remote store.
type Cart struct {
	base
}

func (r *Cart) Get(ctx context.Context) ([]domain.CartLine, error) {
	lines := []domain.CartLine{}
	if _, err := r.loadCache(ctx, localstore.KeyCart, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *Cart) Save(ctx context.Context, lines []domain.CartLine) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	return r.local.Set(ctx, localstore.KeyCart, data)
}

func (r *Cart) Clear(ctx context.Context) error {
	return r.local.Delete(ctx, localstore.KeyCart)
}
