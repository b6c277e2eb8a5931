package service

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrNoEligibleStore     = errors.New("no nearby store has enough stock for your order")
	ErrStockUnavailable    = errors.New("stock unavailable")
	ErrPersistenceFailure  = errors.New("order persistence failed after stock was decremented")
	ErrDuplicateRequest    = errors.New("duplicate request")
	ErrProductUnavailable  = errors.New("product unavailable")
	ErrOrderNotFound       = errors.New("order not found")
	ErrDiscrepancyNotFound = errors.New("discrepancy not found")
)
