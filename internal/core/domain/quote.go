package domain

import "github.com/shopspring/decimal"

const QuoteStatusReadyForPayment = "ready_for_payment"

type StoreSummary struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	DistanceKm float64 `json:"distance_km"`
}

type QuoteLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Quote is the non-binding result of a preview.
type Quote struct {
	Store      StoreSummary    `json:"store"`
	Items      []QuoteLine     `json:"items"`
	Total      decimal.Decimal `json:"total"`
	ETAMinutes int             `json:"eta"`
	Status     string          `json:"status"`
}
