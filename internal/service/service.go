// Package service composes repository operations into the POS workflows:
// stock management, checkout, refunds, and the shift lifecycle. Workflows
// are multi-step and not transactional; each step is an independent sync
// whose remote half may be retried later.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"royalbakes/backend/internal/domain"
	"royalbakes/backend/internal/localstore"
	"royalbakes/backend/internal/remote"
	"royalbakes/backend/internal/repo"
	"royalbakes/backend/internal/syncer"
	"royalbakes/backend/internal/xid"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNoActiveShift     = errors.New("no active shift")
	ErrShiftAlreadyOpen  = errors.New("a shift is already open")
	ErrAlreadyRefunded   = errors.New("sale is already refunded")
	ErrOffline           = errors.New("cannot sync while offline")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repos  *repo.Repositories
	engine *syncer.Engine
	remote remote.Store
	local  localstore.Store
}

func New(repos *repo.Repositories, engine *syncer.Engine, remoteStore remote.Store, local localstore.Store) *Service {
	return &Service{repos: repos, engine: engine, remote: remoteStore, local: local}
}

// EnsureSeedData loads the sample catalogue on first run, guarded by the
// initialized flag so a restart never re-seeds over real data.
func (s *Service) EnsureSeedData(ctx context.Context) error {
	_, ok, err := s.local.Get(ctx, localstore.KeyInitialized)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	seed := []domain.Product{
		{ID: "prod-1", Name: "Bread", Price: 1000, Quantity: domain.Limited(20)},
		{ID: "prod-2", Name: "Croissant", Price: 1500, Quantity: domain.Limited(15)},
		{ID: "prod-3", Name: "Cake", Price: 5000, Quantity: domain.Limited(5)},
		{ID: "prod-4", Name: "Donut", Price: 800, Quantity: domain.Limited(30)},
		{ID: "prod-5", Name: "Cookie", Price: 300, Quantity: domain.Limited(50)},
	}
	if err := s.repos.Products.Save(ctx, seed); err != nil {
		return err
	}
	log.Printf("[service] seeded %d sample products", len(seed))
	return s.local.Set(ctx, localstore.KeyInitialized, []byte(`true`))
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repos.Products.Get(ctx)
}

// AddStock inserts a product. The name is a case-insensitive dedup key:
// adding an existing name restocks that product instead of creating a
// duplicate entry.
func (s *Service) AddStock(ctx context.Context, req domain.AddStockRequest) (domain.Product, error) {
	product := domain.Product{
		Name:     strings.TrimSpace(req.Name),
		Price:    req.Price,
		Quantity: req.Quantity,
	}
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}

	products, err := s.repos.Products.Get(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	for i := range products {
		if !strings.EqualFold(products[i].Name, product.Name) {
			continue
		}
		existing := &products[i]
		existing.Price = product.Price
		if product.Quantity.Unlimited {
			existing.Quantity = domain.UnlimitedQty()
		} else {
			existing.Quantity = existing.Quantity.Restore(product.Quantity.Count)
		}
		if err := s.repos.Products.Save(ctx, products); err != nil {
			return domain.Product{}, err
		}
		return *existing, nil
	}

	product.ID = xid.New("prod")
	products = append(products, product)
	if err := s.repos.Products.Save(ctx, products); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (s *Service) UpdateStock(ctx context.Context, id string, req domain.UpdateStockRequest) (domain.Product, error) {
	products, err := s.repos.Products.Get(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	for i := range products {
		if products[i].ID != id {
			continue
		}
		updated := products[i]
		if req.Name != nil {
			updated.Name = strings.TrimSpace(*req.Name)
		}
		if req.Price != nil {
			updated.Price = *req.Price
		}
		if req.Quantity != nil {
			updated.Quantity = *req.Quantity
		}
		if err := updated.Validate(); err != nil {
			return domain.Product{}, err
		}
		products[i] = updated
		if err := s.repos.Products.Save(ctx, products); err != nil {
			return domain.Product{}, err
		}
		return updated, nil
	}
	return domain.Product{}, fmt.Errorf("%w: product %s", domain.ErrNotFound, id)
}

func (s *Service) DeleteStock(ctx context.Context, id string) error {
	products, err := s.repos.Products.Get(ctx)
	if err != nil {
		return err
	}

	kept := products[:0]
	found := false
	for _, p := range products {
		if p.ID == id {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return fmt.Errorf("%w: product %s", domain.ErrNotFound, id)
	}
	return s.repos.Products.Save(ctx, kept)
}

// LowStock returns limited-quantity products at or below threshold.
func (s *Service) LowStock(ctx context.Context, threshold int) ([]domain.LowStockAlert, error) {
	if threshold < 1 {
		threshold = 5
	}
	products, err := s.repos.Products.Get(ctx)
	if err != nil {
		return nil, err
	}

	alerts := []domain.LowStockAlert{}
	for _, p := range products {
		if !p.Quantity.Unlimited && p.Quantity.Count <= threshold {
			alerts = append(alerts, domain.LowStockAlert{Product: p, Threshold: threshold})
		}
	}
	return alerts, nil
}

func (s *Service) GetCart(ctx context.Context) ([]domain.CartLine, error) {
	return s.repos.Cart.Get(ctx)
}

func (s *Service) SaveCart(ctx context.Context, lines []domain.CartLine) error {
	for _, line := range lines {
		if line.ProductID == "" || line.Quantity < 1 {
			return fmt.Errorf("%w: cart lines need a product and a positive quantity", domain.ErrValidation)
		}
	}
	return s.repos.Cart.Save(ctx, lines)
}

// Checkout turns the requested cart into a sale: stock is decremented, the
// sale recorded, and the active shift's totals updated. Three independent
// syncs; a failure between steps leaves the earlier steps applied.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Sale, error) {
	if len(req.Items) == 0 {
		return domain.Sale{}, fmt.Errorf("%w: cart is empty", domain.ErrValidation)
	}
	if req.PaymentMethod != domain.PaymentCash && req.PaymentMethod != domain.PaymentMomo {
		return domain.Sale{}, fmt.Errorf("%w: payment method must be %q or %q", domain.ErrValidation, domain.PaymentCash, domain.PaymentMomo)
	}

	shift, err := s.repos.ActiveShift.Get(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if shift == nil {
		return domain.Sale{}, ErrNoActiveShift
	}

	products, err := s.repos.Products.Get(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	index := make(map[string]int, len(products))
	for i, p := range products {
		index[p.ID] = i
	}

	sale := domain.Sale{
		ID:            xid.New("sale"),
		Date:          time.Now().UTC(),
		PaymentMethod: req.PaymentMethod,
		ShiftID:       shift.ID,
		Items:         make([]domain.SaleItem, 0, len(req.Items)),
	}

	for _, line := range req.Items {
		if line.Quantity < 1 {
			return domain.Sale{}, fmt.Errorf("%w: quantity must be at least 1", domain.ErrValidation)
		}
		i, ok := index[line.ProductID]
		if !ok {
			return domain.Sale{}, fmt.Errorf("%w: product %s", domain.ErrNotFound, line.ProductID)
		}
		p := products[i]
		if !p.Quantity.Enough(line.Quantity) {
			return domain.Sale{}, fmt.Errorf("%w: %s has %s left", ErrInsufficientStock, p.Name, p.Quantity)
		}
		products[i].Quantity = p.Quantity.Take(line.Quantity)
		sale.Items = append(sale.Items, domain.SaleItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  line.Quantity,
		})
		sale.Total += p.Price * float64(line.Quantity)
	}

	if err := s.repos.Products.Save(ctx, products); err != nil {
		return domain.Sale{}, err
	}
	if err := s.repos.Sales.Record(ctx, sale); err != nil {
		return domain.Sale{}, err
	}

	shift.Sales = append(shift.Sales, sale.ID)
	shift.Total += sale.Total
	if sale.PaymentMethod == domain.PaymentCash {
		shift.CashTotal += sale.Total
	} else {
		shift.MomoTotal += sale.Total
	}
	if err := s.repos.ActiveShift.Save(ctx, *shift); err != nil {
		return domain.Sale{}, err
	}

	if err := s.repos.Cart.Clear(ctx); err != nil {
		log.Printf("[service] WARN: clear cart after checkout: %v", err)
	}
	return sale, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repos.Sales.Get(ctx)
}

// Refund reverses a completed sale: stock restored, shift totals
// decremented, sale marked refunded. Refunding twice is rejected with no
// state change.
func (s *Service) Refund(ctx context.Context, saleID string) (domain.Sale, error) {
	shift, err := s.repos.ActiveShift.Get(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if shift == nil {
		return domain.Sale{}, ErrNoActiveShift
	}

	sales, err := s.repos.Sales.Get(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	target := -1
	for i := range sales {
		if sales[i].ID == saleID {
			target = i
			break
		}
	}
	if target < 0 {
		return domain.Sale{}, fmt.Errorf("%w: sale %s", domain.ErrNotFound, saleID)
	}
	if sales[target].Refunded {
		return domain.Sale{}, ErrAlreadyRefunded
	}

	products, err := s.repos.Products.Get(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	for _, item := range sales[target].Items {
		for i := range products {
			if products[i].ID == item.ProductID {
				products[i].Quantity = products[i].Quantity.Restore(item.Quantity)
				break
			}
		}
	}

	now := time.Now().UTC()
	sales[target].Refunded = true
	sales[target].RefundDate = &now
	sales[target].RefundShiftID = shift.ID

	if err := s.repos.Products.Save(ctx, products); err != nil {
		return domain.Sale{}, err
	}
	if err := s.repos.Sales.SaveAll(ctx, sales); err != nil {
		return domain.Sale{}, err
	}

	refunded := sales[target]
	shift.Refunds = append(shift.Refunds, refunded.ID)
	shift.Total -= refunded.Total
	if refunded.PaymentMethod == domain.PaymentCash {
		shift.CashTotal -= refunded.Total
	} else {
		shift.MomoTotal -= refunded.Total
	}
	if err := s.repos.ActiveShift.Save(ctx, *shift); err != nil {
		return domain.Sale{}, err
	}

	return refunded, nil
}

func (s *Service) ActiveShift(ctx context.Context) (*domain.Shift, error) {
	return s.repos.ActiveShift.Get(ctx)
}

func (s *Service) OpenShift(ctx context.Context, req domain.OpenShiftRequest) (domain.Shift, error) {
	cashier := strings.TrimSpace(req.Cashier)
	if cashier == "" {
		return domain.Shift{}, fmt.Errorf("%w: cashier name is required", domain.ErrValidation)
	}
	if req.StartingCash < 0 {
		return domain.Shift{}, fmt.Errorf("%w: starting cash must not be negative", domain.ErrValidation)
	}

	existing, err := s.repos.ActiveShift.Get(ctx)
	if err != nil {
		return domain.Shift{}, err
	}
	if existing != nil {
		return domain.Shift{}, ErrShiftAlreadyOpen
	}

	shift := domain.Shift{
		ID:           xid.New("shift"),
		StartTime:    time.Now().UTC(),
		Cashier:      cashier,
		StartingCash: req.StartingCash,
		Sales:        []string{},
		Refunds:      []string{},
	}
	if err := s.repos.ActiveShift.Save(ctx, shift); err != nil {
		return domain.Shift{}, err
	}
	return shift, nil
}

// CloseShift ends the active shift, archives it into history, and frees
// the active slot.
func (s *Service) CloseShift(ctx context.Context) (domain.ShiftSummary, error) {
	shift, err := s.repos.ActiveShift.Get(ctx)
	if err != nil {
		return domain.ShiftSummary{}, err
	}
	if shift == nil {
		return domain.ShiftSummary{}, ErrNoActiveShift
	}

	now := time.Now().UTC()
	shift.EndTime = &now

	history, err := s.repos.ShiftHistory.Get(ctx)
	if err != nil {
		return domain.ShiftSummary{}, err
	}
	history = append([]domain.Shift{*shift}, history...)

	// The closed shift is upserted with endTime set, so it stops matching
	// the active-shift filter remotely; locally the slot is cleared.
	if err := s.repos.ActiveShift.Save(ctx, *shift); err != nil {
		return domain.ShiftSummary{}, err
	}
	if err := s.repos.ShiftHistory.Save(ctx, history); err != nil {
		return domain.ShiftSummary{}, err
	}
	if err := s.repos.ActiveShift.Clear(ctx); err != nil {
		return domain.ShiftSummary{}, err
	}

	return Summarize(*shift), nil
}

func (s *Service) ShiftHistory(ctx context.Context) ([]domain.Shift, error) {
	return s.repos.ShiftHistory.Get(ctx)
}

// SyncNow drains the pending queue on explicit request.
func (s *Service) SyncNow(ctx context.Context) (syncer.DrainResult, error) {
	if !s.engine.Online() {
		return syncer.DrainResult{Remaining: s.engine.QueueLen()}, ErrOffline
	}
	return s.engine.Drain(ctx), nil
}

// SyncStock merges remote products the terminal has never seen into the
// local catalogue, then saves the merged set. Local entries win on id
// collision.
func (s *Service) SyncStock(ctx context.Context) ([]domain.Product, error) {
	if !s.engine.Online() {
		return nil, ErrOffline
	}

	recs, err := s.remote.QueryAll(ctx, remote.CollectionProducts)
	if err != nil {
		return nil, err
	}

	local := []domain.Product{}
	if raw, ok, err := s.local.Get(ctx, localstore.KeyProducts); err != nil {
		return nil, err
	} else if ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &local); err != nil {
			return nil, fmt.Errorf("sync stock: corrupt products cache: %w", err)
		}
	}

	known := make(map[string]bool, len(local))
	for _, p := range local {
		known[p.ID] = true
	}

	merged := local
	for _, rec := range recs {
		var p domain.Product
		if err := json.Unmarshal(rec.Data, &p); err != nil {
			return nil, fmt.Errorf("sync stock: decode product %s: %w", rec.ID, err)
		}
		if !known[p.ID] {
			merged = append(merged, p)
		}
	}

	if err := s.repos.Products.Save(ctx, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

type SyncStatus struct {
	Online  bool                 `json:"online"`
	Pending []syncer.PendingSync `json:"pending"`
	Dropped []syncer.PendingSync `json:"dropped"`
}

func (s *Service) SyncStatus() SyncStatus {
	return SyncStatus{
		Online:  s.engine.Online(),
		Pending: s.engine.Pending(),
		Dropped: s.engine.Dropped(),
	}
}
