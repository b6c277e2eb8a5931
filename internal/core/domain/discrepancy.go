package domain

import "time"

type DiscrepancyKind string

const (
	// DiscrepancyOrderNotPersisted: stock was decremented but no order exists.
	DiscrepancyOrderNotPersisted DiscrepancyKind = "order_not_persisted"
	// DiscrepancyCartNotCleared: the order exists but the cart still holds its items.
	DiscrepancyCartNotCleared DiscrepancyKind = "cart_not_cleared"
)

// Discrepancy records a settlement that left inventory and orders out of step
// and needs manual reconciliation.
type Discrepancy struct {
	ID         string          `json:"id"`
	Kind       DiscrepancyKind `json:"kind"`
	UserID     string          `json:"user_id"`
	StoreID    string          `json:"store_id"`
	OrderID    string          `json:"order_id,omitempty"`
	Lines      []LineItem      `json:"lines"`
	Reason     string          `json:"reason"`
	CreatedAt  time.Time       `json:"created_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}
