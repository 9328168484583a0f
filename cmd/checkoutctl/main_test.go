package main

import (
	"bytes"
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-checkout-reconciler/internal/auth"
	"github.com/imrishuroy/go-checkout-reconciler/internal/gateway"
	"github.com/imrishuroy/go-checkout-reconciler/internal/payments"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return strings.TrimSpace(out.String()), err
}

func useSQLite(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_BACKEND", "sql")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", filepath.Join(t.TempDir(), "checkout.db"))
}

const seedYAML = `
products:
  - id: p1
    name: Keyboard
    price_cents: 1500000
    stock: 5
carts:
  - id: cart-1
    lines:
      - {product_id: p1, quantity: 2}
`

func TestMigrateSeedAndAdjust(t *testing.T) {
	useSQLite(t)
	seed := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(seedYAML), 0o600))

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "schema up to date", out)

	out, err = run(t, "seed", seed)
	require.NoError(t, err)
	assert.Equal(t, "seeded 1 products, 1 carts", out)

	out, err = run(t, "inventory", "adjust", "--product", "p1", "--delta", "3", "--reason", "recount")
	require.NoError(t, err)
	assert.Equal(t, "p1: +3, stock now 8", out)

	out, err = run(t, "inventory", "show", "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1: stock=8 reserved=0 available=8", out)

	_, err = run(t, "inventory", "adjust", "--product", "p1", "--delta", "0")
	assert.Error(t, err)
}

func TestSeedNeedsSQLBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "dynamo")
	t.Setenv("AWS_REGION", "us-east-1")
	seed := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(seedYAML), 0o600))

	_, err := run(t, "seed", seed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_BACKEND=sql")
}

func TestWebhookSignVNPay(t *testing.T) {
	t.Setenv("VNPAY_TMN_CODE", "TMN01")
	t.Setenv("VNPAY_HASH_SECRET", "secret")

	out, err := run(t, "webhook", "sign", "--provider", "vnpay", "--correlation", "1234567890", "--amount", "150000")
	require.NoError(t, err)
	q, err := url.ParseQuery(out)
	require.NoError(t, err)

	vnp := gateway.NewVNPay(gateway.VNPayConfig{TmnCode: "TMN01", HashSecret: "secret"}, nil)
	ev, err := vnp.VerifyWebhookSignature(context.Background(), payments.WebhookRequest{Query: q})
	require.NoError(t, err)
	assert.Equal(t, "1234567890", ev.CorrelationID)
	assert.Equal(t, payments.ResultSucceeded, ev.Result)
	require.NotNil(t, ev.Amount)
	assert.EqualValues(t, 150000, *ev.Amount)

	out, err = run(t, "webhook", "sign", "--correlation", "1234567890", "--amount", "150000", "--failed")
	require.NoError(t, err)
	q, err = url.ParseQuery(out)
	require.NoError(t, err)
	ev, err = vnp.VerifyWebhookSignature(context.Background(), payments.WebhookRequest{Query: q})
	require.NoError(t, err)
	assert.Equal(t, payments.ResultFailed, ev.Result)
}

func TestWebhookSignPayOS(t *testing.T) {
	t.Setenv("PAYOS_CHECKSUM_KEY", "checksum")

	out, err := run(t, "webhook", "sign", "--provider", "payos", "--correlation", "987654", "--amount", "48000", "--transaction", "FT123")
	require.NoError(t, err)

	pos := gateway.NewPayOS(gateway.PayOSConfig{ChecksumKey: "checksum"}, nil)
	ev, err := pos.VerifyWebhookSignature(context.Background(), payments.WebhookRequest{Body: []byte(out)})
	require.NoError(t, err)
	assert.Equal(t, "987654", ev.CorrelationID)
	assert.Equal(t, "FT123", ev.TransactionID)
	assert.Equal(t, payments.ResultSucceeded, ev.Result)
	require.NotNil(t, ev.Amount)
	assert.EqualValues(t, 48000, *ev.Amount)
}

func TestWebhookSignNeedsSecret(t *testing.T) {
	t.Setenv("VNPAY_HASH_SECRET", "")
	_, err := run(t, "webhook", "sign", "--provider", "vnpay", "--correlation", "1", "--amount", "1")
	assert.Error(t, err)

	_, err = run(t, "webhook", "sign", "--provider", "cod", "--correlation", "1", "--amount", "1")
	assert.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "jwt-secret")

	out, err := run(t, "token", "user-42", "--ttl", "10m")
	require.NoError(t, err)

	userID, err := auth.NewVerifier("jwt-secret").UserID(out)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)

	out, err = run(t, "token", "ops-1", "--role", auth.RoleAdmin)
	require.NoError(t, err)
	claims, err := auth.NewVerifier("jwt-secret").Parse(out)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
}
