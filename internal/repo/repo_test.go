package repo

import (
	"context"
	"testing"
	"time"

	"royalbakes/backend/internal/connectivity"
	"royalbakes/backend/internal/domain"
	"royalbakes/backend/internal/localstore"
	memremote "royalbakes/backend/internal/remote/memory"
	"royalbakes/backend/internal/syncer"
)

func newTestRepos(t *testing.T) (*Repositories, *memremote.Store, *connectivity.Monitor) {
	t.Helper()
	local := localstore.NewMemoryStore()
	remoteStore := memremote.New()
	monitor := connectivity.NewMonitor(nil, time.Second)

	engine, err := syncer.New(context.Background(), local, remoteStore, monitor)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return New(engine, local, remoteStore), remoteStore, monitor
}

func TestProductsReadFallsBackToCacheOnRemoteFailure(t *testing.T) {
	repos, remoteStore, monitor := newTestRepos(t)
	ctx := context.Background()
	monitor.SetOnline(true)

	products := []domain.Product{{ID: "prod-1", Name: "Bread", Price: 1000, Quantity: domain.Limited(20)}}
	if err := repos.Products.Save(ctx, products); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Remote starts failing mid-session; the monitor has not noticed yet.
	remoteStore.SetFailing(true)

	got, err := repos.Products.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 || got[0].ID != "prod-1" {
		t.Fatalf("expected the cached product, got %+v", got)
	}
}

func TestProductsReadRefreshesCacheWhileOnline(t *testing.T) {
	repos, remoteStore, monitor := newTestRepos(t)
	ctx := context.Background()
	monitor.SetOnline(true)

	if err := repos.Products.Save(ctx, []domain.Product{
		{ID: "prod-1", Name: "Bread", Price: 1000, Quantity: domain.Limited(20)},
		{ID: "prod-2", Name: "Apple Pie", Price: 2000, Quantity: domain.Limited(4)},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repos.Products.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Apple Pie" {
		t.Fatalf("expected name-sorted products, got %+v", got)
	}

	// Later reads must survive the backend vanishing entirely.
	remoteStore.SetFailing(true)
	monitor.SetOnline(false)
	got, err = repos.Products.Get(ctx)
	if err != nil || len(got) != 2 {
		t.Fatalf("offline read from cache failed: %v %+v", err, got)
	}
}

func TestActiveShiftTracksEndTimeFilter(t *testing.T) {
	repos, _, monitor := newTestRepos(t)
	ctx := context.Background()
	monitor.SetOnline(true)

	shift, err := repos.ActiveShift.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if shift != nil {
		t.Fatalf("expected no active shift, got %+v", shift)
	}

	open := domain.Shift{ID: "shift-1", StartTime: time.Now().UTC(), Cashier: "Ama", Sales: []string{}, Refunds: []string{}}
	if err := repos.ActiveShift.Save(ctx, open); err != nil {
		t.Fatalf("save: %v", err)
	}

	shift, err = repos.ActiveShift.Get(ctx)
	if err != nil || shift == nil {
		t.Fatalf("expected the open shift, got %+v err=%v", shift, err)
	}
	if shift.ID != "shift-1" {
		t.Fatalf("wrong shift: %+v", shift)
	}

	// Closing is just an upsert with endTime set; the shift then stops
	// matching the active filter and shows up in history instead.
	now := time.Now().UTC()
	closed := open
	closed.EndTime = &now
	if err := repos.ActiveShift.Save(ctx, closed); err != nil {
		t.Fatalf("save closed: %v", err)
	}
	if err := repos.ActiveShift.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	shift, err = repos.ActiveShift.Get(ctx)
	if err != nil {
		t.Fatalf("get after close: %v", err)
	}
	if shift != nil {
		t.Fatalf("closed shift still reported active: %+v", shift)
	}

	history, err := repos.ShiftHistory.Get(ctx)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != "shift-1" {
		t.Fatalf("closed shift missing from history: %+v", history)
	}
}

func TestCartIsLocalOnly(t *testing.T) {
	repos, remoteStore, monitor := newTestRepos(t)
	ctx := context.Background()
	monitor.SetOnline(true)

	lines := []domain.CartLine{{ProductID: "prod-1", Quantity: 2}}
	if err := repos.Cart.Save(ctx, lines); err != nil {
		t.Fatalf("save cart: %v", err)
	}
	got, err := repos.Cart.Get(ctx)
	if err != nil || len(got) != 1 {
		t.Fatalf("get cart: %v %+v", err, got)
	}

	// The cart never syncs, so the remote store sees no traffic at all.
	remoteStore.SetFailing(true)
	if err := repos.Cart.Clear(ctx); err != nil {
		t.Fatalf("clear cart: %v", err)
	}
	if remoteStore.FailureCount() != 0 {
		t.Fatalf("cart operations must not touch the remote store, saw %d calls", remoteStore.FailureCount())
	}
}
