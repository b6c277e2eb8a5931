package storage

import "errors"

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrOrderExists     = errors.New("order already exists")
)
