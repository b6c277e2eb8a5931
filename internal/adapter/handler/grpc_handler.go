package handler

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/quick-commerce/internal/core/domain"
	"github.com/rl1809/quick-commerce/internal/core/service"
	"github.com/rl1809/quick-commerce/internal/platform/logger"
)

const (
	CodecName = "json"

	checkoutServiceName = "quickcommerce.checkout.v1.CheckoutService"
	previewMethod       = "/" + checkoutServiceName + "/Preview"
	confirmMethod       = "/" + checkoutServiceName + "/Confirm"
)

// jsonCodec carries the HTTP DTOs over gRPC, so both transports share one
// message shape.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type CheckoutServer interface {
	Preview(ctx context.Context, req *CheckoutRequest) (*domain.Quote, error)
	Confirm(ctx context.Context, req *CheckoutRequest) (*ConfirmResponse, error)
}

var CheckoutServiceDesc = grpc.ServiceDesc{
	ServiceName: checkoutServiceName,
	HandlerType: (*CheckoutServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Preview", Handler: previewHandler},
		{MethodName: "Confirm", Handler: confirmHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterCheckoutServer(s grpc.ServiceRegistrar, srv CheckoutServer) {
	s.RegisterService(&CheckoutServiceDesc, srv)
}

func previewHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CheckoutRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckoutServer).Preview(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: previewMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CheckoutServer).Preview(ctx, req.(*CheckoutRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func confirmHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CheckoutRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckoutServer).Confirm(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: confirmMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CheckoutServer).Confirm(ctx, req.(*CheckoutRequest))
	}
	return interceptor(ctx, in, info, handler)
}

type GRPCHandler struct {
	checkout *service.CheckoutService
	auth     *Authenticator
}

func NewGRPCHandler(checkout *service.CheckoutService, auth *Authenticator) *GRPCHandler {
	return &GRPCHandler{checkout: checkout, auth: auth}
}

func (h *GRPCHandler) Preview(ctx context.Context, req *CheckoutRequest) (*domain.Quote, error) {
	id, err := h.identify(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	items, err := h.itemsOrCart(ctx, id.UserID, req.Items)
	if err != nil {
		return nil, toStatus(err)
	}

	quote, err := h.checkout.Preview(ctx, service.PreviewRequest{
		UserID:   id.UserID,
		Items:    items,
		Location: req.UserLocation.toDomain(),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return quote, nil
}

func (h *GRPCHandler) Confirm(ctx context.Context, req *CheckoutRequest) (*ConfirmResponse, error) {
	id, err := h.identify(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	items, err := h.itemsOrCart(ctx, id.UserID, req.Items)
	if err != nil {
		return nil, toStatus(err)
	}

	order, err := h.checkout.Confirm(ctx, service.ConfirmRequest{
		UserID:          id.UserID,
		Items:           items,
		Location:        req.UserLocation.toDomain(),
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		IdempotencyKey:  firstMetadata(ctx, "idempotency-key"),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &ConfirmResponse{Message: "order placed successfully", Order: order}, nil
}

func (h *GRPCHandler) identify(ctx context.Context) (*Identity, error) {
	return h.auth.Authenticate(firstMetadata(ctx, "authorization"))
}

func (h *GRPCHandler) itemsOrCart(ctx context.Context, userID string, items []domain.LineItem) ([]domain.LineItem, error) {
	if len(items) > 0 {
		return items, nil
	}
	return h.checkout.CartLines(ctx, userID)
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

func toStatus(err error) error {
	_, code, message := mapError(err)
	if code == codes.Internal {
		logger.Error("grpc checkout call failed", err)
	}
	return status.Error(code, message)
}

// CheckoutClient calls the checkout service with the JSON codec.
type CheckoutClient struct {
	cc grpc.ClientConnInterface
}

func NewCheckoutClient(cc grpc.ClientConnInterface) *CheckoutClient {
	return &CheckoutClient{cc: cc}
}

func (c *CheckoutClient) Preview(ctx context.Context, req *CheckoutRequest, opts ...grpc.CallOption) (*domain.Quote, error) {
	out := new(domain.Quote)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, previewMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CheckoutClient) Confirm(ctx context.Context, req *CheckoutRequest, opts ...grpc.CallOption) (*ConfirmResponse, error) {
	out := new(ConfirmResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, confirmMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
