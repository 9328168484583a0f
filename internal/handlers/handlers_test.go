package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-checkout-reconciler/internal/auth"
	"github.com/imrishuroy/go-checkout-reconciler/internal/catalog"
	"github.com/imrishuroy/go-checkout-reconciler/internal/checkout"
	"github.com/imrishuroy/go-checkout-reconciler/internal/gateway"
	"github.com/imrishuroy/go-checkout-reconciler/internal/ids"
	"github.com/imrishuroy/go-checkout-reconciler/internal/notify"
	"github.com/imrishuroy/go-checkout-reconciler/internal/orders"
	"github.com/imrishuroy/go-checkout-reconciler/internal/promotions"
	"github.com/imrishuroy/go-checkout-reconciler/internal/ratelimit"
	"github.com/imrishuroy/go-checkout-reconciler/internal/store/sqlstore"
	"github.com/imrishuroy/go-checkout-reconciler/internal/webhooks"
)

type testAPI struct {
	router   *gin.Engine
	store    *sqlstore.Store
	vnpay    *gateway.VNPay
	verifier *auth.Verifier
}

func newTestAPI(t *testing.T, limiter ratelimit.Limiter) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlstore.Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, sqlstore.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	st := sqlstore.New(db)

	node, err := ids.NewNode(3)
	require.NoError(t, err)
	gen := ids.NewGenerator(node)
	notifier := notify.LogNotifier{}
	vnp := gateway.NewVNPay(gateway.VNPayConfig{TmnCode: "TEST", HashSecret: "secret"}, nil)
	registry := gateway.NewRegistry(vnp, gateway.NewCOD())
	verifier := auth.NewVerifier("jwt-secret")

	cfg := HandlerConfig{
		Checkout: checkout.NewOrchestrator(st, promotions.NewCatalog(), gen, notifier,
			checkout.Config{FreeShippingThreshold: 10000000, FlatShippingFee: 50000, Currency: "VND"}, nil),
		Payments:   checkout.NewPaymentsOrchestrator(st, registry, gen, nil),
		Orders:     orders.NewService(st, notifier, nil),
		Reconciler: webhooks.NewReconciler(st, registry, gen, notifier, nil, nil),
		Acks:       registry,
		Verifier:   verifier,
		Limiter:    limiter,
		ReturnURL:  "https://shop.example/return",
	}
	return &testAPI{router: NewRouter(cfg), store: st, vnpay: vnp, verifier: verifier}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (a *testAPI) seedCart(t *testing.T, cartID, userID string) {
	t.Helper()
	require.NoError(t, a.store.PutProduct(context.Background(), catalog.Product{ProductID: "p1", Name: "Kettle", PriceCents: 100000, Active: true}, 10))
	require.NoError(t, a.store.PutCart(context.Background(), catalog.Cart{CartID: cartID, UserID: userID, Lines: []catalog.CartLine{{ProductID: "p1", Quantity: 1}}}))
}

func (a *testAPI) bearer(t *testing.T, userID, role string) map[string]string {
	t.Helper()
	tok, err := a.verifier.IssueRole(userID, role, time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + tok}
}

func guestOrder(cartID string) map[string]any {
	return map[string]any{
		"cart_id":          cartID,
		"customer_email":   "buyer@example.com",
		"customer_name":    "Buyer",
		"shipping_address": map[string]any{"city": "Hanoi"},
	}
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t, nil)
	w := a.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestCreateOrderReplaysIdempotencyKey(t *testing.T) {
	a := newTestAPI(t, nil)
	a.seedCart(t, "c1", "")
	headers := map[string]string{"Idempotency-Key": "order-key-1"}

	w := a.do(t, http.MethodPost, "/checkout/create-order", guestOrder("c1"), headers)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode(t, w)
	assert.Equal(t, "PENDING", first["status"])
	assert.EqualValues(t, 150000, first["total_cents"])
	assert.Equal(t, "/orders/"+first["order_id"].(string), w.Header().Get("Location"))

	w = a.do(t, http.MethodPost, "/checkout/create-order", guestOrder("c1"), headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, first["order_id"], decode(t, w)["order_id"])
}

func TestCreateOrderValidation(t *testing.T) {
	a := newTestAPI(t, nil)

	w := a.do(t, http.MethodPost, "/checkout/create-order", map[string]any{"cart_id": "c1"}, map[string]string{HeaderRequestID: "rid-1"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "VALIDATION_ERROR", body["error"])
	assert.Equal(t, "rid-1", body["request_id"])
	assert.Contains(t, body["fields"], "customer_email")

	w = a.do(t, http.MethodPost, "/checkout/create-order", guestOrder("missing"), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "EMPTY_CART", decode(t, w)["error"])
}

func TestSignedInCheckoutUsesActiveCart(t *testing.T) {
	a := newTestAPI(t, nil)
	a.seedCart(t, "c1", "u1")
	tok, err := a.verifier.Issue("u1", time.Hour)
	require.NoError(t, err)

	w := a.do(t, http.MethodPost, "/checkout/create-order", map[string]any{}, map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "u1", decode(t, w)["user_id"])

	w = a.do(t, http.MethodPost, "/checkout/create-order", map[string]any{}, map[string]string{"Authorization": "Bearer junk"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPaymentFlow(t *testing.T) {
	a := newTestAPI(t, nil)
	a.seedCart(t, "c1", "")

	w := a.do(t, http.MethodPost, "/checkout/create-order", guestOrder("c1"), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	orderID := decode(t, w)["order_id"].(string)

	intentReq := map[string]any{"order_id": orderID, "provider": "vnpay"}
	w = a.do(t, http.MethodPost, "/payments/intents", intentReq, map[string]string{"Idempotency-Key": "pay-attempt-1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	intent := decode(t, w)
	assert.Equal(t, "PROCESSING", intent["status"])
	checkoutURL, err := url.Parse(intent["checkout_url"].(string))
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/return", checkoutURL.Query().Get("vnp_ReturnUrl"))

	w = a.do(t, http.MethodPost, "/payments/intents", intentReq, map[string]string{"Idempotency-Key": "pay-attempt-1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, intent["intent_id"], decode(t, w)["intent_id"])

	q := url.Values{}
	q.Set("vnp_TxnRef", intent["correlation_id"].(string))
	q.Set("vnp_Amount", strconv.Itoa(150000*100))
	q.Set("vnp_ResponseCode", "00")
	q.Set("vnp_TransactionStatus", "00")
	q.Set("vnp_TransactionNo", "777")
	signed := a.vnpay.SignQuery(q)

	w = a.do(t, http.MethodGet, "/webhooks/vnpay?"+signed.Encode(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "00", decode(t, w)["RspCode"])

	w = a.do(t, http.MethodGet, "/orders/"+orderID+"?email=buyer@example.com", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CONFIRMED", decode(t, w)["status"])

	signed.Set("vnp_Amount", "100")
	w = a.do(t, http.MethodGet, "/webhooks/vnpay?"+signed.Encode(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "97", decode(t, w)["RspCode"])

	// paid orders keep their intents, so they cannot be deleted
	w = a.do(t, http.MethodDelete, "/orders/"+orderID, nil, a.bearer(t, "ops-1", auth.RoleAdmin))
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ORDER_REFERENCED", decode(t, w)["error"])
}

func TestOrderLifecycleRoutes(t *testing.T) {
	a := newTestAPI(t, nil)
	a.seedCart(t, "c1", "")

	w := a.do(t, http.MethodPost, "/checkout/create-order", guestOrder("c1"), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	orderID := created["order_id"].(string)

	admin := a.bearer(t, "ops-1", auth.RoleAdmin)

	w = a.do(t, http.MethodGet, "/orders/"+created["order_number"].(string), nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, orderID, decode(t, w)["order_id"])

	w = a.do(t, http.MethodPost, "/orders/"+orderID+"/status", map[string]any{"status": "completed"}, admin)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_STATE_TRANSITION", decode(t, w)["error"])

	w = a.do(t, http.MethodPost, "/orders/"+orderID+"/status", map[string]any{"status": "cancelled"}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "CANCELLED", decode(t, w)["status"])

	rec, err := a.store.GetInventory(context.Background(), "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 10, rec.Stock)

	w = a.do(t, http.MethodDelete, "/orders/"+orderID, nil, admin)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(t, http.MethodGet, "/orders/"+orderID, nil, admin)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ORDER_NOT_FOUND", decode(t, w)["error"])
}

func TestRefundUnknownPayment(t *testing.T) {
	a := newTestAPI(t, nil)
	w := a.do(t, http.MethodPost, "/payments/nope/refunds", map[string]any{"amount": 1000}, a.bearer(t, "ops-1", auth.RoleAdmin))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "PAYMENT_NOT_FOUND", decode(t, w)["error"])
}

func TestOperatorRoutesRequireAdmin(t *testing.T) {
	a := newTestAPI(t, nil)
	a.seedCart(t, "c1", "")
	w := a.do(t, http.MethodPost, "/checkout/create-order", guestOrder("c1"), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	orderID := decode(t, w)["order_id"].(string)

	customer := a.bearer(t, "u1", "")
	routes := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPost, "/orders/" + orderID + "/status", map[string]any{"status": "cancelled"}},
		{http.MethodDelete, "/orders/" + orderID, nil},
		{http.MethodPost, "/payments/pay-1/refunds", map[string]any{"amount": 1000}},
	}
	for _, rt := range routes {
		w = a.do(t, rt.method, rt.path, rt.body, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, rt.path)
		w = a.do(t, rt.method, rt.path, rt.body, customer)
		assert.Equal(t, http.StatusForbidden, w.Code, rt.path)
		assert.Equal(t, "FORBIDDEN", decode(t, w)["error"])
	}

	o, err := a.store.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, o.Status)
}

func TestGetOrderIsScopedToOwner(t *testing.T) {
	a := newTestAPI(t, nil)
	a.seedCart(t, "c1", "u1")
	w := a.do(t, http.MethodPost, "/checkout/create-order", guestOrder(""), a.bearer(t, "u1", ""))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	path := "/orders/" + decode(t, w)["order_id"].(string)

	w = a.do(t, http.MethodGet, path, nil, a.bearer(t, "u1", ""))
	assert.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodGet, path, nil, a.bearer(t, "ops-1", auth.RoleAdmin))
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, path, nil, a.bearer(t, "u2", ""))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ORDER_NOT_FOUND", decode(t, w)["error"])
	w = a.do(t, http.MethodGet, path, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = a.do(t, http.MethodGet, path+"?email=someone@example.com", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = a.do(t, http.MethodGet, path+"?email=BUYER@example.com", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitedCheckout(t *testing.T) {
	a := newTestAPI(t, ratelimit.NewMemoryLimiter(1))

	w := a.do(t, http.MethodPost, "/checkout/create-order", guestOrder("missing"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/checkout/create-order", guestOrder("missing"), nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", decode(t, w)["error"])
}

func TestUnknownProviderWebhook(t *testing.T) {
	a := newTestAPI(t, nil)
	w := a.do(t, http.MethodPost, "/webhooks/stripe", map[string]any{"x": 1}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "not_found", decode(t, w)["outcome"])
}
