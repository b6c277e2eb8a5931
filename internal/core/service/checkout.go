package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/quick-commerce/internal/core/domain"
	"github.com/rl1809/quick-commerce/internal/platform/logger"
	"github.com/rl1809/quick-commerce/internal/platform/metrics"
	"github.com/rl1809/quick-commerce/internal/port"
)

const (
	opPreview = "preview"
	opConfirm = "confirm"
)

type CheckoutConfig struct {
	BaseETAMinutes float64
	MinutesPerKm   float64
}

func DefaultCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{BaseETAMinutes: 10, MinutesPerKm: 5}
}

// Dependencies groups the collaborators of a CheckoutService. Cache, Events,
// Reconciliation, FollowUps and Metrics are optional.
type Dependencies struct {
	Stores         port.StoreCatalog
	Products       port.ProductCatalog
	Ledger         port.InventoryLedger
	Orders         port.OrderRepository
	Carts          port.CartRepository
	Cache          port.CacheRepository
	Events         port.EventPublisher
	Reconciliation port.ReconciliationLog
	FollowUps      *FollowUpDispatcher
	Metrics        *metrics.CheckoutMetrics
}

type PreviewRequest struct {
	UserID   string
	Items    []domain.LineItem
	Location *domain.Location
}

type ConfirmRequest struct {
	UserID          string
	Items           []domain.LineItem
	Location        *domain.Location
	ShippingAddress domain.Address
	PaymentMethod   string
	IdempotencyKey  string
}

// CheckoutService quotes and settles orders. Preview and Confirm share the
// store selection, and Confirm always selects again instead of trusting an
// earlier quote.
type CheckoutService struct {
	selector  *FulfillmentSelector
	prices    *PriceResolver
	ledger    port.InventoryLedger
	orders    port.OrderRepository
	carts     port.CartRepository
	cache     port.CacheRepository
	events    port.EventPublisher
	recon     port.ReconciliationLog
	followUps *FollowUpDispatcher
	metrics   *metrics.CheckoutMetrics
	cfg       CheckoutConfig

	now   func() time.Time
	newID func() string
}

func NewCheckoutService(deps Dependencies, cfg CheckoutConfig) *CheckoutService {
	return &CheckoutService{
		selector:  NewFulfillmentSelector(deps.Stores, deps.Ledger),
		prices:    NewPriceResolver(deps.Products),
		ledger:    deps.Ledger,
		orders:    deps.Orders,
		carts:     deps.Carts,
		cache:     deps.Cache,
		events:    deps.Events,
		recon:     deps.Reconciliation,
		followUps: deps.FollowUps,
		metrics:   deps.Metrics,
		cfg:       cfg,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (s *CheckoutService) Preview(ctx context.Context, req PreviewRequest) (*domain.Quote, error) {
	started := time.Now()
	quote, err := s.preview(ctx, req)
	s.metrics.Observe(opPreview, outcome(err, "quoted"), started)
	return quote, err
}

func (s *CheckoutService) preview(ctx context.Context, req PreviewRequest) (*domain.Quote, error) {
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}
	if err := validateLocation(req.Location); err != nil {
		return nil, err
	}

	lines := domain.MergeLines(req.Items)

	selection, err := s.selector.SelectStore(ctx, lines, *req.Location)
	if err != nil {
		if errors.Is(err, ErrNoEligibleStore) {
			logger.Info("preview: no eligible store for user %s (%d lines)", req.UserID, len(lines))
		}
		return nil, err
	}

	priced, total, err := s.priceLines(ctx, lines, selection.Store.ID)
	if err != nil {
		return nil, err
	}

	items := make([]domain.QuoteLine, 0, len(priced))
	for _, line := range priced {
		items = append(items, domain.QuoteLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.Price,
			LineTotal: line.Extension(),
		})
	}

	return &domain.Quote{
		Store: domain.StoreSummary{
			ID:         selection.Store.ID,
			Name:       selection.Store.Name,
			DistanceKm: selection.DistanceKm,
		},
		Items:      items,
		Total:      total,
		ETAMinutes: s.eta(selection.DistanceKm),
		Status:     domain.QuoteStatusReadyForPayment,
	}, nil
}

func (s *CheckoutService) Confirm(ctx context.Context, req ConfirmRequest) (*domain.Order, error) {
	started := time.Now()
	order, err := s.confirm(ctx, req)
	s.metrics.Observe(opConfirm, outcome(err, "placed"), started)
	return order, err
}

func (s *CheckoutService) confirm(ctx context.Context, req ConfirmRequest) (*domain.Order, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: missing user", ErrInvalidRequest)
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}
	if err := validateLocation(req.Location); err != nil {
		return nil, err
	}
	if req.ShippingAddress.IsZero() {
		return nil, fmt.Errorf("%w: shipping address is required", ErrInvalidRequest)
	}

	idempotencyKey, err := s.claimIdempotency(ctx, req)
	if err != nil {
		return nil, err
	}

	lines := domain.MergeLines(req.Items)

	storeID, priced, total, err := s.reserve(ctx, req, lines)
	if err != nil {
		s.releaseIdempotency(ctx, idempotencyKey)
		return nil, err
	}

	// Stock is gone from the ledger now. Finish the writes even if the caller
	// disconnects so the decrement is not left without an order.
	persistCtx := context.WithoutCancel(ctx)

	now := s.now().UTC()
	order := domain.Order{
		ID:              s.newID(),
		UserID:          req.UserID,
		StoreID:         storeID,
		Lines:           priced,
		TotalAmount:     total,
		Status:          domain.OrderStatusPlaced,
		ShippingAddress: req.ShippingAddress,
		Location:        *req.Location,
		PaymentMethod:   req.PaymentMethod,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.orders.CreateOrder(persistCtx, order); err != nil {
		s.reportDiscrepancy(persistCtx, domain.DiscrepancyOrderNotPersisted, order, err)
		return nil, fmt.Errorf("%w: order %s: %v", ErrPersistenceFailure, order.ID, err)
	}

	if err := s.carts.ClearCart(persistCtx, req.UserID); err != nil {
		s.reportDiscrepancy(persistCtx, domain.DiscrepancyCartNotCleared, order, err)
		return nil, fmt.Errorf("%w: clear cart for order %s: %v", ErrPersistenceFailure, order.ID, err)
	}

	if s.followUps != nil {
		s.followUps.Enqueue(order)
	}

	logger.Info("order %s placed: user %s store %s total %s", order.ID, order.UserID, order.StoreID, order.TotalAmount.StringFixed(2))
	return &order, nil
}

// reserve re-selects the store, prices every line and then decrements all
// lines at once. Any failure here leaves the ledger untouched.
func (s *CheckoutService) reserve(ctx context.Context, req ConfirmRequest, lines []domain.LineItem) (string, []domain.OrderLine, decimal.Decimal, error) {
	selection, err := s.selector.SelectStore(ctx, lines, *req.Location)
	if err != nil {
		if errors.Is(err, ErrNoEligibleStore) {
			logger.Info("confirm: no eligible store for user %s", req.UserID)
			return "", nil, decimal.Zero, fmt.Errorf("%w: %v", ErrStockUnavailable, err)
		}
		return "", nil, decimal.Zero, err
	}
	storeID := selection.Store.ID

	priced, total, err := s.priceLines(ctx, lines, storeID)
	if err != nil {
		return "", nil, decimal.Zero, err
	}

	ok, err := s.ledger.ReserveLines(ctx, storeID, lines)
	if err != nil {
		return "", nil, decimal.Zero, fmt.Errorf("stock decrement failed: %w", err)
	}
	if !ok {
		logger.Info("confirm: store %s lost stock between selection and decrement for user %s", storeID, req.UserID)
		return "", nil, decimal.Zero, ErrStockUnavailable
	}

	return storeID, priced, total, nil
}

func (s *CheckoutService) claimIdempotency(ctx context.Context, req ConfirmRequest) (string, error) {
	if s.cache == nil || strings.TrimSpace(req.IdempotencyKey) == "" {
		return "", nil
	}

	key := fmt.Sprintf("checkout:%s:%s", req.UserID, strings.TrimSpace(req.IdempotencyKey))
	ok, err := s.cache.SetIdempotency(ctx, key)
	if err != nil {
		return "", fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return "", ErrDuplicateRequest
	}
	return key, nil
}

func (s *CheckoutService) releaseIdempotency(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); err != nil {
		logger.Warn("failed to release idempotency key %s: %v", key, err)
	}
}

func (s *CheckoutService) reportDiscrepancy(ctx context.Context, kind domain.DiscrepancyKind, order domain.Order, cause error) {
	lines := make([]domain.LineItem, 0, len(order.Lines))
	for _, l := range order.Lines {
		lines = append(lines, domain.LineItem{ProductID: l.ProductID, Quantity: l.Quantity})
	}

	d := domain.Discrepancy{
		ID:        s.newID(),
		Kind:      kind,
		UserID:    order.UserID,
		StoreID:   order.StoreID,
		OrderID:   order.ID,
		Lines:     lines,
		Reason:    cause.Error(),
		CreatedAt: s.now().UTC(),
	}

	logger.Critical("%s: stock decremented at store %s for user %s (order %s), manual reconciliation required",
		cause, kind, order.StoreID, order.UserID, order.ID)

	if s.recon != nil {
		if err := s.recon.RecordDiscrepancy(ctx, d); err != nil {
			logger.Critical("failed to record discrepancy %s for order %s", err, d.ID, order.ID)
		}
	}
	if s.events != nil {
		if err := s.events.PublishDiscrepancy(ctx, d); err != nil {
			logger.Error("failed to publish discrepancy %s", err, d.ID)
		}
	}
}

// GetOrder returns ErrOrderNotFound for orders owned by someone else.
func (s *CheckoutService) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if order == nil || order.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *CheckoutService) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	orders, err := s.orders.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders for %s: %w", userID, err)
	}
	return orders, nil
}

// CartLines returns the saved cart of a user as checkout lines.
func (s *CheckoutService) CartLines(ctx context.Context, userID string) ([]domain.LineItem, error) {
	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart for %s: %w", userID, err)
	}
	if cart == nil {
		return nil, nil
	}
	return cart.LineItems(), nil
}

func (s *CheckoutService) priceLines(ctx context.Context, lines []domain.LineItem, storeID string) ([]domain.OrderLine, decimal.Decimal, error) {
	priced := make([]domain.OrderLine, 0, len(lines))
	total := decimal.Zero
	for _, line := range lines {
		price, err := s.prices.UnitPrice(ctx, line.ProductID, storeID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		ol := domain.OrderLine{ProductID: line.ProductID, Quantity: line.Quantity, Price: price}
		total = total.Add(ol.Extension())
		priced = append(priced, ol)
	}
	return priced, total, nil
}

func (s *CheckoutService) eta(distanceKm float64) int {
	return int(math.Round(s.cfg.BaseETAMinutes + s.cfg.MinutesPerKm*distanceKm))
}

func validateItems(items []domain.LineItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: cart is empty", ErrInvalidRequest)
	}
	for i, it := range items {
		if strings.TrimSpace(it.ProductID) == "" {
			return fmt.Errorf("%w: item %d has no product", ErrInvalidRequest, i)
		}
		if it.Quantity < 1 {
			return fmt.Errorf("%w: quantity for %s must be at least 1", ErrInvalidRequest, it.ProductID)
		}
	}
	return nil
}

func validateLocation(loc *domain.Location) error {
	if loc == nil {
		return fmt.Errorf("%w: location requires lat and lng", ErrInvalidRequest)
	}
	if !loc.Valid() {
		return fmt.Errorf("%w: location out of range", ErrInvalidRequest)
	}
	return nil
}

func outcome(err error, success string) string {
	switch {
	case err == nil:
		return success
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrNoEligibleStore):
		return "no_eligible_store"
	case errors.Is(err, ErrStockUnavailable):
		return "stock_unavailable"
	case errors.Is(err, ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, ErrPersistenceFailure):
		return "persistence_failure"
	default:
		return "error"
	}
}
