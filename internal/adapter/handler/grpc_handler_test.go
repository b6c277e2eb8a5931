package handler

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startGRPC(t *testing.T, s *stack) *CheckoutClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterCheckoutServer(srv, NewGRPCHandler(s.checkout, s.auth))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewCheckoutClient(conn)
}

func withAuth(t *testing.T, s *stack, userID string, pairs ...string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	kv := append([]string{"authorization", s.token(t, userID, "")}, pairs...)
	return metadata.NewOutgoingContext(ctx, metadata.Pairs(kv...))
}

func TestGRPCPreview(t *testing.T) {
	s := newStack(t, 5)
	client := startGRPC(t, s)

	req := checkoutBody(2)
	quote, err := client.Preview(withAuth(t, s, "u1"), &req)
	require.NoError(t, err)
	assert.Equal(t, "A", quote.Store.ID)
	assert.Equal(t, "200", quote.Total.String())
	assert.Equal(t, 15, quote.ETAMinutes)

	req = checkoutBody(6)
	_, err = client.Preview(withAuth(t, s, "u1"), &req)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestGRPCConfirm(t *testing.T) {
	s := newStack(t, 5)
	client := startGRPC(t, s)

	req := checkoutBody(2)
	resp, err := client.Confirm(withAuth(t, s, "u1", "idempotency-key", "k1"), &req)
	require.NoError(t, err)
	require.NotNil(t, resp.Order)
	assert.Equal(t, "u1", resp.Order.UserID)
	assert.Equal(t, "200", resp.Order.TotalAmount.String())

	_, err = client.Confirm(withAuth(t, s, "u1", "idempotency-key", "k1"), &req)
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	req = checkoutBody(4)
	_, err = client.Confirm(withAuth(t, s, "u1"), &req)
	assert.Equal(t, codes.Aborted, status.Code(err))

	req.ShippingAddress.Street = ""
	req.ShippingAddress.City = ""
	_, err = client.Confirm(withAuth(t, s, "u1"), &req)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPCRequiresToken(t *testing.T) {
	s := newStack(t, 5)
	client := startGRPC(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := checkoutBody(1)
	_, err := client.Preview(ctx, &req)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestGRPCConfirm_ConcurrentBuyers(t *testing.T) {
	s := newStack(t, 5)
	client := startGRPC(t, s)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		placed   int
		rejected int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := checkoutBody(1)
			_, err := client.Confirm(withAuth(t, s, "buyer"), &req)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				placed++
			} else if status.Code(err) == codes.Aborted {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, placed)
	assert.Equal(t, 15, rejected)
}
