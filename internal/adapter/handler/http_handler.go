package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rl1809/quick-commerce/internal/core/domain"
	"github.com/rl1809/quick-commerce/internal/core/service"
	"github.com/rl1809/quick-commerce/internal/platform/logger"
	"github.com/rl1809/quick-commerce/internal/platform/metrics"
)

type HTTPHandler struct {
	checkout   *service.CheckoutService
	reconciler *service.Reconciler
	auth       *Authenticator
	metrics    *metrics.CheckoutMetrics
}

func NewHTTPHandler(checkout *service.CheckoutService, reconciler *service.Reconciler, auth *Authenticator, m *metrics.CheckoutMetrics) *HTTPHandler {
	return &HTTPHandler{checkout: checkout, reconciler: reconciler, auth: auth, metrics: m}
}

// NewRouter builds the gin engine with health, metrics and the versioned API.
func NewRouter(h *HTTPHandler, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.countRequests())

	router.GET("/health", h.HealthCheck)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))
	}

	h.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func (h *HTTPHandler) RegisterRoutes(router *gin.RouterGroup) {
	authed := router.Group("", h.auth.RequireAuth())
	{
		authed.POST("/checkout/preview", h.Preview)
		authed.POST("/checkout/confirm", h.Confirm)
		authed.GET("/orders", h.ListOrders)
		authed.GET("/orders/:id", h.GetOrder)
	}

	admin := router.Group("/admin", h.auth.RequireAuth(), RequireAdmin())
	{
		admin.GET("/discrepancies", h.ListDiscrepancies)
		admin.POST("/discrepancies/:id/resolve", h.ResolveDiscrepancy)
	}
}

func (h *HTTPHandler) Preview(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	userID := c.GetString(ctxUserID)
	items, err := h.itemsOrCart(c.Request.Context(), userID, req.Items)
	if err != nil {
		h.writeError(c, "preview", err)
		return
	}

	quote, err := h.checkout.Preview(c.Request.Context(), service.PreviewRequest{
		UserID:   userID,
		Items:    items,
		Location: req.UserLocation.toDomain(),
	})
	if err != nil {
		h.writeError(c, "preview", err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

func (h *HTTPHandler) Confirm(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	userID := c.GetString(ctxUserID)
	items, err := h.itemsOrCart(c.Request.Context(), userID, req.Items)
	if err != nil {
		h.writeError(c, "confirm", err)
		return
	}

	order, err := h.checkout.Confirm(c.Request.Context(), service.ConfirmRequest{
		UserID:          userID,
		Items:           items,
		Location:        req.UserLocation.toDomain(),
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		IdempotencyKey:  c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(c, "confirm", err)
		return
	}

	c.JSON(http.StatusCreated, ConfirmResponse{Message: "order placed successfully", Order: order})
}

func (h *HTTPHandler) GetOrder(c *gin.Context) {
	order, err := h.checkout.GetOrder(c.Request.Context(), c.GetString(ctxUserID), c.Param("id"))
	if err != nil {
		h.writeError(c, "get order", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *HTTPHandler) ListOrders(c *gin.Context) {
	orders, err := h.checkout.ListOrders(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		h.writeError(c, "list orders", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *HTTPHandler) ListDiscrepancies(c *gin.Context) {
	pending, err := h.reconciler.Pending(c.Request.Context())
	if err != nil {
		h.writeError(c, "list discrepancies", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"discrepancies": pending})
}

func (h *HTTPHandler) ResolveDiscrepancy(c *gin.Context) {
	restock := false
	if raw := c.Query("restock"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Message: "restock must be a boolean"})
			return
		}
		restock = v
	}

	resolved, err := h.reconciler.Resolve(c.Request.Context(), c.Param("id"), restock)
	if err != nil {
		h.writeError(c, "resolve discrepancy", err)
		return
	}
	c.JSON(http.StatusOK, resolved)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) itemsOrCart(ctx context.Context, userID string, items []domain.LineItem) ([]domain.LineItem, error) {
	if len(items) > 0 {
		return items, nil
	}
	return h.checkout.CartLines(ctx, userID)
}

func (h *HTTPHandler) writeError(c *gin.Context, op string, err error) {
	status, _, message := mapError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("%s failed for user %s", err, op, c.GetString(ctxUserID))
	}
	c.JSON(status, ErrorResponse{Message: message})
}

func (h *HTTPHandler) countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		h.metrics.HTTPRequest(route, strconv.Itoa(c.Writer.Status()))
	}
}
