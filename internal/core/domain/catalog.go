package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Store struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	Location  Location  `json:"location"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	IsActive        bool            `json:"is_active"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// StorePrice is a store-level override. A nil field falls back to the
// product's own value.
type StorePrice struct {
	StoreID         string
	ProductID       string
	Price           *decimal.Decimal
	DiscountPercent *decimal.Decimal
}

type InventoryRecord struct {
	StoreID   string    `json:"store_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}
