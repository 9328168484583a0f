// Package config loads process configuration from the environment. A .env
// file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/imrishuroy/go-checkout-reconciler/internal/store/dynamo"
)

const (
	BackendDynamo = "dynamo"
	BackendSQL    = "sql"
)

type VNPay struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	RefundURL  string
}

func (v VNPay) Enabled() bool { return v.TmnCode != "" && v.HashSecret != "" }

type PayOS struct {
	ClientID    string
	APIKey      string
	ChecksumKey string
	APIURL      string
}

func (p PayOS) Enabled() bool { return p.ClientID != "" && p.APIKey != "" && p.ChecksumKey != "" }

type SMTP struct {
	Host     string
	Port     int `validate:"omitempty,min=1,max=65535"`
	Username string
	Password string
	From     string `validate:"omitempty,email"`
	FromName string
}

type Config struct {
	StoreBackend string `validate:"oneof=dynamo sql"`
	DBDriver     string `validate:"oneof=mysql sqlite"`
	DBDSN        string `validate:"required_if=StoreBackend sql"`

	Tables           dynamo.Tables
	IdempotencyTable string
	RunLocal         bool
	ListenAddr       string

	FreeShippingThreshold int64  `validate:"min=0"`
	FlatShippingFee       int64  `validate:"min=0"`
	Currency              string `validate:"len=3"`
	OrderIdempotencyTTL   time.Duration
	PromotionsFile        string
	NodeID                int64  `validate:"min=0,max=15"`
	PaymentReturnURL      string `validate:"omitempty,url"`
	PaymentCancelURL      string `validate:"omitempty,url"`

	VNPay VNPay
	PayOS PayOS

	JWTSecret          string
	RateLimitPerMinute int `validate:"min=0"`
	RateLimitTable     string
	NotifyQueueURL     string
	MetricsNamespace   string

	SMTP SMTP
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv. Tests pass a map lookup.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := env{get: getenv}
	cfg := &Config{
		StoreBackend: e.str("STORE_BACKEND", BackendDynamo),
		DBDriver:     e.str("DB_DRIVER", "mysql"),
		DBDSN:        e.str("DB_DSN", ""),
		Tables: dynamo.Tables{
			Products:       e.str("PRODUCTS_TABLE", "products"),
			Carts:          e.str("CARTS_TABLE", "carts"),
			Users:          e.str("USERS_TABLE", "users"),
			Inventory:      e.str("INVENTORY_TABLE", "inventory"),
			Movements:      e.str("MOVEMENTS_TABLE", "inventory_movements"),
			Orders:         e.str("ORDERS_TABLE", "orders"),
			Intents:        e.str("INTENTS_TABLE", "payment_intents"),
			Payments:       e.str("PAYMENTS_TABLE", "payments"),
			Refunds:        e.str("REFUNDS_TABLE", "refunds"),
			PromotionUsage: e.str("PROMOTION_USAGE_TABLE", "promotion_usage"),
		},
		IdempotencyTable: e.str("IDEMPOTENCY_TABLE", "idempotency"),
		RunLocal:         e.bool("RUN_LOCAL"),
		ListenAddr:       e.str("LISTEN_ADDR", ":8080"),

		FreeShippingThreshold: e.int64("FREE_SHIPPING_THRESHOLD", 10000000),
		FlatShippingFee:       e.int64("FLAT_SHIPPING_FEE", 50000),
		Currency:              e.str("CURRENCY", "VND"),
		OrderIdempotencyTTL:   e.duration("ORDER_IDEMPOTENCY_TTL", 48*time.Hour),
		PromotionsFile:        e.str("PROMOTIONS_FILE", ""),
		NodeID:                e.int64("NODE_ID", 1),
		PaymentReturnURL:      e.str("PAYMENT_RETURN_URL", ""),
		PaymentCancelURL:      e.str("PAYMENT_CANCEL_URL", ""),

		VNPay: VNPay{
			TmnCode:    e.str("VNPAY_TMN_CODE", ""),
			HashSecret: e.str("VNPAY_HASH_SECRET", ""),
			PayURL:     e.str("VNPAY_PAY_URL", ""),
			RefundURL:  e.str("VNPAY_REFUND_URL", ""),
		},
		PayOS: PayOS{
			ClientID:    e.str("PAYOS_CLIENT_ID", ""),
			APIKey:      e.str("PAYOS_API_KEY", ""),
			ChecksumKey: e.str("PAYOS_CHECKSUM_KEY", ""),
			APIURL:      e.str("PAYOS_API_URL", ""),
		},

		JWTSecret:          e.str("JWT_SECRET", ""),
		RateLimitPerMinute: int(e.int64("RATE_LIMIT_PER_MINUTE", 60)),
		RateLimitTable:     e.str("RATE_LIMIT_TABLE", ""),
		NotifyQueueURL:     e.str("NOTIFY_QUEUE_URL", ""),
		MetricsNamespace:   e.str("METRICS_NAMESPACE", "CheckoutReconciler"),

		SMTP: SMTP{
			Host:     e.str("SMTP_HOST", ""),
			Port:     int(e.int64("SMTP_PORT", 587)),
			Username: e.str("SMTP_USERNAME", ""),
			Password: e.str("SMTP_PASSWORD", ""),
			From:     e.str("MAIL_FROM", ""),
			FromName: e.str("MAIL_FROM_NAME", "Orders"),
		},
	}
	if err := e.err(); err != nil {
		return nil, err
	}
	if err := validatorv10.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// env collects parse errors so Load reports every bad variable at once.
type env struct {
	get  func(string) string
	errs []error
}

func (e *env) str(key, def string) string {
	if v := e.get(key); v != "" {
		return v
	}
	return def
}

func (e *env) bool(key string) bool {
	v := e.get(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
	}
	return b
}

func (e *env) int64(key string, def int64) int64 {
	v := e.get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.get(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *env) err() error { return errors.Join(e.errs...) }
