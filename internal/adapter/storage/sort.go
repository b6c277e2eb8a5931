package storage

import (
	"sort"

	"github.com/rl1809/quick-commerce/internal/core/domain"
)

func sortDiscrepancies(ds []domain.Discrepancy) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].CreatedAt.Before(ds[j].CreatedAt) })
}
