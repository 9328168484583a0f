// Package handlers exposes the checkout pipeline over HTTP with gin.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-checkout-reconciler/internal/auth"
	"github.com/imrishuroy/go-checkout-reconciler/internal/checkout"
	"github.com/imrishuroy/go-checkout-reconciler/internal/orders"
	"github.com/imrishuroy/go-checkout-reconciler/internal/payments"
	"github.com/imrishuroy/go-checkout-reconciler/internal/ratelimit"
	"github.com/imrishuroy/go-checkout-reconciler/internal/validation"
	"github.com/imrishuroy/go-checkout-reconciler/internal/webhooks"
)

// Acknowledgers resolves the provider-specific webhook reply;
// *gateway.Registry satisfies it.
type Acknowledgers interface {
	Acknowledger(p payments.Provider) payments.Acknowledger
}

// HandlerConfig groups the dependencies of every route.
type HandlerConfig struct {
	Checkout   *checkout.Orchestrator
	Payments   *checkout.PaymentsOrchestrator
	Orders     *orders.Service
	Reconciler *webhooks.Reconciler
	Acks       Acknowledgers
	Verifier   *auth.Verifier
	Limiter    ratelimit.Limiter
	Metrics    ratelimit.Counter
	Logger     *slog.Logger

	// defaults for intents that do not name their own redirect targets
	ReturnURL string
	CancelURL string
}

type handler struct {
	cfg HandlerConfig
	v   *validatorv10.Validate
	log *slog.Logger
}

// NewRouter builds the engine with the shared middleware chain and every
// route registered.
func NewRouter(cfg HandlerConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := gin.New()
	r.Use(RequestID(), AccessLog(cfg.Logger), ErrorHandler(cfg.Logger), Recovery(cfg.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	RegisterRoutes(r, cfg)
	return r
}

// RegisterRoutes registers the checkout, payment, webhook and order routes.
func RegisterRoutes(r gin.IRouter, cfg HandlerConfig) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &handler{cfg: cfg, v: validation.New(), log: cfg.Logger}

	// providers call these; they authenticate by signature, not bearer token
	r.GET("/webhooks/vnpay", h.vnpayIPN)
	r.POST("/webhooks/:provider", h.providerWebhook)

	api := r.Group("/", auth.Middleware(cfg.Verifier))
	limited := func(next gin.HandlerFunc) []gin.HandlerFunc {
		if cfg.Limiter == nil {
			return []gin.HandlerFunc{next}
		}
		return []gin.HandlerFunc{ratelimit.Middleware(cfg.Limiter, cfg.Metrics, cfg.Logger), next}
	}

	api.POST("/checkout/create-order", limited(h.createOrder)...)
	api.POST("/payments/intents", limited(h.createIntent)...)
	api.GET("/orders/:id", h.getOrder)

	// operator routes
	admin := api.Group("/", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/payments/:paymentId/refunds", limited(h.refund)...)
	admin.POST("/orders/:id/status", h.updateOrderStatus)
	admin.DELETE("/orders/:id", h.deleteOrder)
}
