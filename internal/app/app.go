// Package app wires configuration into the concrete store, providers and
// services shared by the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/imrishuroy/go-checkout-reconciler/internal/auth"
	"github.com/imrishuroy/go-checkout-reconciler/internal/aws"
	"github.com/imrishuroy/go-checkout-reconciler/internal/checkout"
	"github.com/imrishuroy/go-checkout-reconciler/internal/config"
	"github.com/imrishuroy/go-checkout-reconciler/internal/gateway"
	"github.com/imrishuroy/go-checkout-reconciler/internal/handlers"
	"github.com/imrishuroy/go-checkout-reconciler/internal/idempotency"
	"github.com/imrishuroy/go-checkout-reconciler/internal/ids"
	"github.com/imrishuroy/go-checkout-reconciler/internal/notify"
	"github.com/imrishuroy/go-checkout-reconciler/internal/orders"
	"github.com/imrishuroy/go-checkout-reconciler/internal/payments"
	"github.com/imrishuroy/go-checkout-reconciler/internal/promotions"
	"github.com/imrishuroy/go-checkout-reconciler/internal/ratelimit"
	"github.com/imrishuroy/go-checkout-reconciler/internal/store"
	"github.com/imrishuroy/go-checkout-reconciler/internal/store/dynamo"
	"github.com/imrishuroy/go-checkout-reconciler/internal/store/sqlstore"
	"github.com/imrishuroy/go-checkout-reconciler/internal/webhooks"
)

// Backend is an opened store plus the limits it imposes on checkout.
type Backend struct {
	Store    store.Store
	MaxLines int
	// SQL is set for the relational backend; seeding and migrations need it.
	SQL   *sqlstore.Store
	close func() error
}

func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// OpenStore opens the backend named by cfg.StoreBackend.
func OpenStore(cfg *config.Config, clients *aws.AWSClients) (*Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendSQL:
		db, err := sqlstore.Open(cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sql handle: %w", err)
		}
		s := sqlstore.New(db)
		return &Backend{Store: s, SQL: s, close: sqlDB.Close}, nil
	case config.BackendDynamo:
		keys := idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.OrderIdempotencyTTL)
		return &Backend{
			Store:    dynamo.New(clients.DynamoDB, cfg.Tables, keys),
			MaxLines: dynamo.MaxCheckoutLines,
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// Providers registers cash on delivery plus every gateway with credentials.
func Providers(cfg *config.Config) *gateway.Registry {
	clients := []payments.ProviderClient{gateway.NewCOD()}
	if cfg.VNPay.Enabled() {
		clients = append(clients, gateway.NewVNPay(gateway.VNPayConfig{
			TmnCode:    cfg.VNPay.TmnCode,
			HashSecret: cfg.VNPay.HashSecret,
			PayURL:     cfg.VNPay.PayURL,
			RefundURL:  cfg.VNPay.RefundURL,
		}, nil))
	}
	if cfg.PayOS.Enabled() {
		clients = append(clients, gateway.NewPayOS(gateway.PayOSConfig{
			ClientID:    cfg.PayOS.ClientID,
			APIKey:      cfg.PayOS.APIKey,
			ChecksumKey: cfg.PayOS.ChecksumKey,
			APIURL:      cfg.PayOS.APIURL,
		}, nil))
	}
	return gateway.NewRegistry(clients...)
}

// API assembles the HTTP handler configuration.
func API(ctx context.Context, cfg *config.Config, clients *aws.AWSClients, backend *Backend, logger *slog.Logger) (handlers.HandlerConfig, error) {
	if logger == nil {
		logger = slog.Default()
	}
	node, err := ids.NewNode(cfg.NodeID)
	if err != nil {
		return handlers.HandlerConfig{}, err
	}
	gen := ids.NewGenerator(node)

	promos := promotions.NewCatalog()
	if cfg.PromotionsFile != "" {
		if promos, err = promotions.LoadFile(cfg.PromotionsFile); err != nil {
			return handlers.HandlerConfig{}, err
		}
	}

	var notifier notify.Notifier = notify.LogNotifier{Logger: logger}
	if p := clients.Publisher(cfg.NotifyQueueURL); p != nil {
		notifier = notify.NewQueueNotifier(p)
	}
	metrics := clients.Metrics(cfg.MetricsNamespace, logger)
	registry := Providers(cfg)

	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitPerMinute)
	if cfg.RateLimitTable != "" {
		limiter = ratelimit.NewDynamoLimiter(clients.DynamoDB, cfg.RateLimitTable, cfg.RateLimitPerMinute)
	} else if !cfg.RunLocal {
		// each instance counts on its own, so the effective limit scales with them
		logger.WarnContext(ctx, "rate limiter is per instance; set RATE_LIMIT_TABLE to share it",
			"limit_per_minute", cfg.RateLimitPerMinute,
		)
	}
	var verifier *auth.Verifier
	if cfg.JWTSecret != "" {
		verifier = auth.NewVerifier(cfg.JWTSecret)
	}

	logger.InfoContext(ctx, "api configured",
		"store_backend", cfg.StoreBackend,
		"providers", registry.Providers(),
		"notify_queue", cfg.NotifyQueueURL != "",
		"auth", verifier != nil,
	)

	return handlers.HandlerConfig{
		Checkout: checkout.NewOrchestrator(backend.Store, promos, gen, notifier, checkout.Config{
			FreeShippingThreshold: cfg.FreeShippingThreshold,
			FlatShippingFee:       cfg.FlatShippingFee,
			Currency:              cfg.Currency,
			MaxLines:              backend.MaxLines,
		}, logger),
		Payments:   checkout.NewPaymentsOrchestrator(backend.Store, registry, gen, logger),
		Orders:     orders.NewService(backend.Store, notifier, logger),
		Reconciler: webhooks.NewReconciler(backend.Store, registry, gen, notifier, metrics, logger),
		Acks:       registry,
		Verifier:   verifier,
		Limiter:    limiter,
		Metrics:    metrics,
		Logger:     logger,
		ReturnURL:  cfg.PaymentReturnURL,
		CancelURL:  cfg.PaymentCancelURL,
	}, nil
}
