// Package promotions evaluates promotion codes against a cart. Rules are
// loaded from a YAML catalog; usage counts come from the caller's store so
// the check runs inside the checkout transaction.
package promotions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Type string

const (
	TypePercentage   Type = "percentage"
	TypeFixed        Type = "fixed"
	TypeFreeShipping Type = "free_shipping"
)

// Rule is one promotion as written in the catalog file. Value is a percent
// for percentage rules and minor units for fixed rules.
type Rule struct {
	Code         string     `yaml:"code"`
	Type         Type       `yaml:"type"`
	Value        float64    `yaml:"value"`
	MaxDiscount  int64      `yaml:"max_discount"`
	MinSubtotal  int64      `yaml:"min_subtotal"`
	UsageLimit   int        `yaml:"usage_limit"`
	PerUserLimit int        `yaml:"per_user_limit"`
	StartsAt     *time.Time `yaml:"starts_at"`
	ExpiresAt    *time.Time `yaml:"expires_at"`
	Active       bool       `yaml:"active"`
	Description  string     `yaml:"description"`
}

type Item struct {
	ProductID      string
	Quantity       int
	UnitPriceCents int64
}

type Request struct {
	Code          string
	SubtotalCents int64
	UserID        string
	Items         []Item
}

// Result mirrors the evaluator contract: when Valid is false, Error holds
// the reason shown to the customer. The limits are carried to the usage
// record so the store can enforce them when it writes.
type Result struct {
	Valid         bool
	Code          string
	DiscountCents int64
	FreeShipping  bool
	Error         string
	UsageLimit    int
	PerUserLimit  int
}

// Usage is recorded once per order that applied a code. A store recording a
// usage with a limit set claims a slot on the code's counter and fails with
// ErrUsageLimitReached when none is left.
type Usage struct {
	UsageID       string    `dynamodbav:"usage_id"`
	Code          string    `dynamodbav:"code"`
	UserID        string    `dynamodbav:"user_id"`
	OrderID       string    `dynamodbav:"order_id"`
	DiscountCents int64     `dynamodbav:"discount_cents"`
	CreatedAt     time.Time `dynamodbav:"created_at"`
	UsageLimit    int       `dynamodbav:"-"`
	PerUserLimit  int       `dynamodbav:"-"`
}

// ErrUsageLimitReached is returned by RecordPromotionUsage when another
// order took the last use of a limited code after it was validated.
var ErrUsageLimitReached = errors.New("promotion usage limit reached")

// UsageCounter reports how often a code was used overall and by one user.
type UsageCounter interface {
	CountPromotionUsage(ctx context.Context, code, userID string) (total, byUser int, err error)
}

// Evaluator is the contract the checkout consumes.
type Evaluator interface {
	Validate(ctx context.Context, usage UsageCounter, req Request) (Result, error)
}

// Catalog is an Evaluator over a fixed rule set.
type Catalog struct {
	rules map[string]Rule
	now   func() time.Time
}

type catalogFile struct {
	Promotions []Rule `yaml:"promotions"`
}

func NewCatalog(rules ...Rule) *Catalog {
	c := &Catalog{rules: make(map[string]Rule, len(rules)), now: time.Now}
	for _, r := range rules {
		r.Code = normalize(r.Code)
		c.rules[r.Code] = r
	}
	return c
}

// Parse reads a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse promotions: %w", err)
	}
	for i, r := range f.Promotions {
		if r.Code == "" {
			return nil, fmt.Errorf("promotion %d: missing code", i)
		}
		switch r.Type {
		case TypePercentage, TypeFixed, TypeFreeShipping:
		default:
			return nil, fmt.Errorf("promotion %s: unknown type %q", r.Code, r.Type)
		}
	}
	return NewCatalog(f.Promotions...), nil
}

// LoadFile reads the catalog at path. An empty path yields an empty catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return NewCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read promotions file: %w", err)
	}
	return Parse(data)
}

func normalize(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

func invalid(code, msg string) Result { return Result{Code: code, Error: msg} }

func (c *Catalog) Validate(ctx context.Context, usage UsageCounter, req Request) (Result, error) {
	code := normalize(req.Code)
	r, ok := c.rules[code]
	if !ok {
		return invalid(code, "promotion code does not exist"), nil
	}
	if !r.Active {
		return invalid(code, "promotion code is disabled"), nil
	}
	now := c.now()
	if r.StartsAt != nil && now.Before(*r.StartsAt) {
		return invalid(code, "promotion code is not active yet"), nil
	}
	if r.ExpiresAt != nil && now.After(*r.ExpiresAt) {
		return invalid(code, "promotion code has expired"), nil
	}
	if r.MinSubtotal > 0 && req.SubtotalCents < r.MinSubtotal {
		return invalid(code, fmt.Sprintf("order subtotal must be at least %d to use this code", r.MinSubtotal)), nil
	}

	if usage != nil && (r.UsageLimit > 0 || (r.PerUserLimit > 0 && req.UserID != "")) {
		total, byUser, err := usage.CountPromotionUsage(ctx, code, req.UserID)
		if err != nil {
			return Result{}, fmt.Errorf("count promotion usage: %w", err)
		}
		if r.UsageLimit > 0 && total >= r.UsageLimit {
			return invalid(code, "promotion code has been fully redeemed"), nil
		}
		if r.PerUserLimit > 0 && req.UserID != "" && byUser >= r.PerUserLimit {
			return invalid(code, "promotion code already used by this customer"), nil
		}
	}

	res := Result{Valid: true, Code: code, UsageLimit: r.UsageLimit, PerUserLimit: r.PerUserLimit}
	switch r.Type {
	case TypePercentage:
		d := decimal.NewFromInt(req.SubtotalCents).
			Mul(decimal.NewFromFloat(r.Value)).
			Div(decimal.NewFromInt(100)).
			Floor().
			IntPart()
		if r.MaxDiscount > 0 && d > r.MaxDiscount {
			d = r.MaxDiscount
		}
		res.DiscountCents = d
	case TypeFixed:
		res.DiscountCents = int64(r.Value)
	case TypeFreeShipping:
		res.FreeShipping = true
	}
	if res.DiscountCents > req.SubtotalCents {
		res.DiscountCents = req.SubtotalCents
	}
	return res, nil
}
