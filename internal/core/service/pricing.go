package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rl1809/quick-commerce/internal/port"
)

var hundred = decimal.NewFromInt(100)

// PriceResolver reads the authoritative unit price on every call. Settlement
// must use the price in effect at confirm time, so nothing is cached here.
type PriceResolver struct {
	products port.ProductCatalog
}

func NewPriceResolver(products port.ProductCatalog) *PriceResolver {
	return &PriceResolver{products: products}
}

// UnitPrice returns the product price at a store. A store override replaces
// the base price and the discount independently; storeID may be empty.
func (r *PriceResolver) UnitPrice(ctx context.Context, productID, storeID string) (decimal.Decimal, error) {
	product, err := r.products.GetProduct(ctx, productID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get product %s: %w", productID, err)
	}
	if product == nil || !product.IsActive {
		return decimal.Zero, fmt.Errorf("%w: %w: %s", ErrInvalidRequest, ErrProductUnavailable, productID)
	}

	price := product.Price
	discount := product.DiscountPercent

	if storeID != "" {
		override, err := r.products.GetStorePrice(ctx, storeID, productID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("get store price %s/%s: %w", storeID, productID, err)
		}
		if override != nil {
			if override.Price != nil {
				price = *override.Price
			}
			if override.DiscountPercent != nil {
				discount = *override.DiscountPercent
			}
		}
	}

	if discount.IsPositive() {
		if discount.GreaterThan(hundred) {
			discount = hundred
		}
		price = price.Mul(hundred.Sub(discount)).Div(hundred)
	}
	return price.Round(2), nil
}
