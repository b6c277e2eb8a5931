package handler

import (
	"context"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/quick-commerce/internal/adapter/storage"
	"github.com/rl1809/quick-commerce/internal/core/domain"
	"github.com/rl1809/quick-commerce/internal/core/service"
	"github.com/rl1809/quick-commerce/internal/platform/metrics"
)

const testSecret = "test-secret"

// 1 km north of the customer in Bengaluru
var (
	customerLat = 12.9716
	customerLng = 77.5946
	storeLat    = customerLat + 1/111.19492664455873
)

type stack struct {
	mem      *storage.MemoryAdapter
	auth     *Authenticator
	checkout *service.CheckoutService
	recon    *service.Reconciler
	registry *prometheus.Registry
	router   *gin.Engine
}

func newStack(t *testing.T, stock int) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx := context.Background()
	mem := storage.NewMemoryAdapter()
	mem.PutStore(domain.Store{ID: "A", Name: "Store A", IsActive: true, Location: domain.Location{Lat: storeLat, Lng: customerLng}})
	mem.PutProduct(domain.Product{ID: "p1", Name: "Milk", Price: decimal.NewFromInt(100), IsActive: true})
	require.NoError(t, mem.SetStock(ctx, "A", "p1", stock))

	registry := prometheus.NewRegistry()
	m := metrics.NewCheckoutMetrics(registry)

	checkout := service.NewCheckoutService(service.Dependencies{
		Stores:         mem,
		Products:       mem,
		Ledger:         mem,
		Orders:         mem,
		Carts:          mem,
		Cache:          mem,
		Reconciliation: mem,
		Metrics:        m,
	}, service.DefaultCheckoutConfig())
	recon := service.NewReconciler(mem, mem, m)
	auth := NewAuthenticator(testSecret)

	return &stack{
		mem:      mem,
		auth:     auth,
		checkout: checkout,
		recon:    recon,
		registry: registry,
		router:   NewRouter(NewHTTPHandler(checkout, recon, auth, m), registry),
	}
}

func (s *stack) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := s.auth.IssueToken(userID, role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func locationDTO() *LocationDTO {
	lat, lng := customerLat, customerLng
	return &LocationDTO{Lat: &lat, Lng: &lng}
}
