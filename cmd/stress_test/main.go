package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/quick-commerce/internal/adapter/handler"
	"github.com/rl1809/quick-commerce/internal/core/domain"
	"github.com/rl1809/quick-commerce/internal/platform/config"
	"github.com/rl1809/quick-commerce/internal/platform/logger"
)

// Fires concurrent confirms for one product at a running server. Run it
// against a fresh seed where STOCK units of PRODUCT_ID are on hand near the
// given location: exactly STOCK orders must be placed.
func main() {
	addr := config.GetEnv("GRPC_ADDR", "localhost:50051")
	secret := config.GetEnv("JWT_SECRET", "dev-secret")
	productID := config.GetEnv("PRODUCT_ID", "milk-1l")
	stock := config.GetEnvAsInt("STOCK", 20)
	total := config.GetEnvAsInt("REQUESTS", 50)
	lat := envFloat("LAT", 12.9716)
	lng := envFloat("LNG", 77.5946)

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logger.Critical("failed to create grpc client", err)
		os.Exit(1)
	}
	defer conn.Close()
	client := handler.NewCheckoutClient(conn)
	auth := handler.NewAuthenticator(secret)

	req := &handler.CheckoutRequest{
		Items:           []domain.LineItem{{ProductID: productID, Quantity: 1}},
		UserLocation:    &handler.LocationDTO{Lat: &lat, Lng: &lng},
		ShippingAddress: domain.Address{Street: "1 Load Test Lane", City: "Bengaluru"},
		PaymentMethod:   "cod",
	}

	var placed, unavailable, other atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			token, err := auth.IssueToken(fmt.Sprintf("user-%d", n), "", time.Minute)
			if err != nil {
				other.Add(1)
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			ctx = metadata.AppendToOutgoingContext(ctx,
				"authorization", "Bearer "+token,
				"idempotency-key", fmt.Sprintf("stress-%d-%d", start.UnixNano(), n))

			_, err = client.Confirm(ctx, req)
			switch status.Code(err) {
			case codes.OK:
				placed.Add(1)
			case codes.Aborted:
				unavailable.Add(1)
			default:
				logger.Warn("user-%d: %v", n, err)
				other.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", stock)
	fmt.Printf("Total Requests:   %d\n", total)
	fmt.Printf("Placed:           %d\n", placed.Load())
	fmt.Printf("Unavailable:      %d\n", unavailable.Load())
	fmt.Printf("Other Errors:     %d\n", other.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	want := min(stock, total)
	if int(placed.Load()) == want && int(unavailable.Load()) == total-want {
		fmt.Printf("PASS: exactly %d orders placed, %d rejected\n", want, total-want)
		return
	}
	fmt.Printf("FAIL: expected %d placed/%d rejected, got %d/%d\n",
		want, total-want, placed.Load(), unavailable.Load())
	os.Exit(1)
}

func envFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(config.GetEnv(key, ""), 64); err == nil {
		return v
	}
	return fallback
}
