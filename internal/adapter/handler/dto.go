package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/quick-commerce/internal/core/domain"
	"github.com/rl1809/quick-commerce/internal/core/service"
)

// LocationDTO keeps pointers so a missing coordinate can be told apart
// from zero.
type LocationDTO struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (l *LocationDTO) toDomain() *domain.Location {
	if l == nil || l.Lat == nil || l.Lng == nil {
		return nil
	}
	return &domain.Location{Lat: *l.Lat, Lng: *l.Lng}
}

// CheckoutRequest is the body of both preview and confirm. Confirm also
// reads the address and payment method. Empty items fall back to the
// saved cart.
type CheckoutRequest struct {
	Items           []domain.LineItem `json:"items"`
	UserLocation    *LocationDTO      `json:"user_location"`
	ShippingAddress domain.Address    `json:"shipping_address"`
	PaymentMethod   string            `json:"payment_method,omitempty"`
}

type ConfirmResponse struct {
	Message string        `json:"message"`
	Order   *domain.Order `json:"order"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

type errorMapping struct {
	target  error
	status  int
	code    codes.Code
	message string
}

// an empty message means the error text itself is shown
var errorMappings = []errorMapping{
	{service.ErrInvalidRequest, http.StatusBadRequest, codes.InvalidArgument, ""},
	{service.ErrNoEligibleStore, http.StatusConflict, codes.FailedPrecondition, ""},
	{service.ErrStockUnavailable, http.StatusConflict, codes.Aborted, "items are no longer available, please review your cart"},
	{service.ErrDuplicateRequest, http.StatusConflict, codes.AlreadyExists, "duplicate request"},
	{service.ErrPersistenceFailure, http.StatusInternalServerError, codes.Internal, "order could not be recorded, support has been notified"},
	{service.ErrOrderNotFound, http.StatusNotFound, codes.NotFound, "order not found"},
	{service.ErrDiscrepancyNotFound, http.StatusNotFound, codes.NotFound, "discrepancy not found"},
	{ErrUnauthorized, http.StatusUnauthorized, codes.Unauthenticated, "unauthorized"},
}

func mapError(err error) (int, codes.Code, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.message == "" {
				return m.status, m.code, err.Error()
			}
			return m.status, m.code, m.message
		}
	}
	return http.StatusInternalServerError, codes.Internal, "internal error"
}
