package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rl1809/quick-commerce/internal/core/domain"
	"github.com/rl1809/quick-commerce/internal/platform/logger"
	"github.com/rl1809/quick-commerce/internal/platform/metrics"
	"github.com/rl1809/quick-commerce/internal/port"
)

const sweepTimeout = 30 * time.Second

// Reconciler surfaces settlements that decremented stock without a matching
// order. Nothing is compensated automatically: an operator resolves each
// discrepancy, optionally putting the stock back.
type Reconciler struct {
	log       port.ReconciliationLog
	ledger    port.InventoryLedger
	metrics   *metrics.CheckoutMetrics
	scheduler *cron.Cron
}

func NewReconciler(log port.ReconciliationLog, ledger port.InventoryLedger, m *metrics.CheckoutMetrics) *Reconciler {
	return &Reconciler{
		log:       log,
		ledger:    ledger,
		metrics:   m,
		scheduler: cron.New(),
	}
}

// Start schedules Sweep with a cron expression such as "@every 1m".
func (r *Reconciler) Start(schedule string) error {
	_, err := r.scheduler.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := r.Sweep(ctx); err != nil {
			logger.Error("reconcile sweep failed", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reconcile sweep %q: %w", schedule, err)
	}
	r.scheduler.Start()
	logger.Info("reconcile sweep scheduled '%s'", schedule)
	return nil
}

func (r *Reconciler) Stop() {
	<-r.scheduler.Stop().Done()
}

// Sweep reports every pending discrepancy and returns how many there are.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	pending, err := r.log.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending discrepancies: %w", err)
	}

	r.metrics.SetPending(len(pending))
	for _, d := range pending {
		logger.Critical("unreconciled %s since %s: store %s user %s order %s lines %v (%s)", nil,
			d.Kind, d.CreatedAt.Format(time.RFC3339), d.StoreID, d.UserID, d.OrderID, d.Lines, d.Reason)
	}
	return len(pending), nil
}

func (r *Reconciler) Pending(ctx context.Context) ([]domain.Discrepancy, error) {
	return r.log.ListPending(ctx)
}

// Resolve closes a discrepancy. The discrepancy is claimed before any stock
// moves, so concurrent calls for one id restock at most once. With restock
// set, every line goes back into the store's inventory.
func (r *Reconciler) Resolve(ctx context.Context, id string, restock bool) (*domain.Discrepancy, error) {
	resolved, err := r.log.MarkResolved(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("mark discrepancy %s resolved: %w", id, err)
	}
	if resolved == nil {
		return nil, ErrDiscrepancyNotFound
	}

	if restock {
		for i, line := range resolved.Lines {
			if err := r.ledger.Restock(ctx, resolved.StoreID, line.ProductID, line.Quantity); err != nil {
				r.reopen(ctx, *resolved, resolved.Lines[i:], err)
				return nil, fmt.Errorf("restock %s at %s: %w", line.ProductID, resolved.StoreID, err)
			}
		}
	}

	logger.Info("discrepancy %s resolved (restock=%t)", id, restock)
	if remaining, err := r.log.ListPending(ctx); err == nil {
		r.metrics.SetPending(len(remaining))
	}
	return resolved, nil
}

// reopen puts a claimed discrepancy back with only the lines that were not
// restocked yet.
func (r *Reconciler) reopen(ctx context.Context, d domain.Discrepancy, remaining []domain.LineItem, cause error) {
	d.ResolvedAt = nil
	d.Lines = append([]domain.LineItem{}, remaining...)
	d.Reason = fmt.Sprintf("restock failed: %v", cause)
	if err := r.log.RecordDiscrepancy(ctx, d); err != nil {
		logger.Critical("discrepancy %s lost after a failed restock, lines %v", err, d.ID, d.Lines)
		return
	}
	logger.Warn("discrepancy %s reopened with %d lines after a failed restock", d.ID, len(d.Lines))
}
