package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rl1809/quick-commerce/internal/core/domain"
)

// Seed is a catalog snapshot used to populate the memory driver.
type Seed struct {
	Stores      []SeedStore      `yaml:"stores"`
	Products    []SeedProduct    `yaml:"products"`
	StorePrices []SeedStorePrice `yaml:"store_prices"`
	Inventory   []SeedInventory  `yaml:"inventory"`
}

type SeedStore struct {
	ID     string  `yaml:"id"`
	Name   string  `yaml:"name"`
	Active *bool   `yaml:"active"`
	Lat    float64 `yaml:"lat"`
	Lng    float64 `yaml:"lng"`
}

type SeedProduct struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Price    string `yaml:"price"`
	Discount string `yaml:"discount_percent"`
	Active   *bool  `yaml:"active"`
}

type SeedStorePrice struct {
	StoreID   string `yaml:"store_id"`
	ProductID string `yaml:"product_id"`
	Price     string `yaml:"price"`
	Discount  string `yaml:"discount_percent"`
}

type SeedInventory struct {
	StoreID   string `yaml:"store_id"`
	ProductID string `yaml:"product_id"`
	Quantity  int    `yaml:"quantity"`
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse seed YAML: %w", err)
	}
	return &s, nil
}

// DomainStores converts the seed stores, spacing creation times so that catalog
// order follows file order.
func (s *Seed) DomainStores(base time.Time) []domain.Store {
	stores := make([]domain.Store, 0, len(s.Stores))
	for i, st := range s.Stores {
		stores = append(stores, domain.Store{
			ID:        st.ID,
			Name:      st.Name,
			IsActive:  st.Active == nil || *st.Active,
			Location:  domain.Location{Lat: st.Lat, Lng: st.Lng},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	return stores
}

func (s *Seed) DomainProducts(now time.Time) ([]domain.Product, error) {
	products := make([]domain.Product, 0, len(s.Products))
	for _, p := range s.Products {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("product %s: invalid price %q: %w", p.ID, p.Price, err)
		}
		discount := decimal.Zero
		if p.Discount != "" {
			if discount, err = decimal.NewFromString(p.Discount); err != nil {
				return nil, fmt.Errorf("product %s: invalid discount %q: %w", p.ID, p.Discount, err)
			}
		}
		products = append(products, domain.Product{
			ID:              p.ID,
			Name:            p.Name,
			Price:           price,
			IsActive:        p.Active == nil || *p.Active,
			DiscountPercent: discount,
			UpdatedAt:       now,
		})
	}
	return products, nil
}

func (s *Seed) DomainStorePrices() ([]domain.StorePrice, error) {
	out := make([]domain.StorePrice, 0, len(s.StorePrices))
	for _, sp := range s.StorePrices {
		override := domain.StorePrice{StoreID: sp.StoreID, ProductID: sp.ProductID}
		if sp.Price != "" {
			price, err := decimal.NewFromString(sp.Price)
			if err != nil {
				return nil, fmt.Errorf("store price %s/%s: invalid price %q: %w", sp.StoreID, sp.ProductID, sp.Price, err)
			}
			override.Price = &price
		}
		if sp.Discount != "" {
			discount, err := decimal.NewFromString(sp.Discount)
			if err != nil {
				return nil, fmt.Errorf("store price %s/%s: invalid discount %q: %w", sp.StoreID, sp.ProductID, sp.Discount, err)
			}
			override.DiscountPercent = &discount
		}
		out = append(out, override)
	}
	return out, nil
}

func (s *Seed) DomainInventory(now time.Time) []domain.InventoryRecord {
	records := make([]domain.InventoryRecord, 0, len(s.Inventory))
	for _, inv := range s.Inventory {
		records = append(records, domain.InventoryRecord{
			StoreID:   inv.StoreID,
			ProductID: inv.ProductID,
			Quantity:  inv.Quantity,
			UpdatedAt: now,
		})
	}
	return records
}
