package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-checkout-reconciler/internal/payments"
)

const testChecksum = "payos-checksum"

func signedPayOSBody(t *testing.T, p *PayOS, data map[string]any, code string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"code":      code,
		"desc":      "success",
		"success":   code == "00",
		"data":      data,
		"signature": p.SignData(data),
	})
	require.NoError(t, err)
	return body
}

func paidData() map[string]any {
	return map[string]any{
		"orderCode":           123456789,
		"amount":              48000,
		"description":         "ORD-20250301-X1",
		"accountNumber":       "12345678",
		"reference":           "TF230204212323",
		"transactionDateTime": "2025-03-01 10:00:00",
		"currency":            "VND",
		"paymentLinkId":       "124c33293c43417ab7879e14c8d9eb18",
		"code":                "00",
		"desc":                "Thành công",
		"counterAccountName":  nil,
	}
}

func TestPayOSCreateCheckoutSession(t *testing.T) {
	var gotHeaders http.Header
	var gotBody payosCreateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/payment-requests", r.URL.Path)
		gotHeaders = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{"code":"00","desc":"success","data":{"checkoutUrl":"https://pay.payos.vn/web/abc","paymentLinkId":"abc"}}`))
	}))
	defer srv.Close()

	p := NewPayOS(PayOSConfig{ClientID: "cid", APIKey: "key", ChecksumKey: testChecksum, APIURL: srv.URL}, nil)
	sess, err := p.CreateCheckoutSession(context.Background(), payments.CheckoutRequest{
		CorrelationID: "123456789",
		AmountCents:   48000,
		Description:   "ORD-20250301-X1 thanh toan don hang",
		ReturnURL:     "https://shop.test/return",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.payos.vn/web/abc", sess.CheckoutURL)
	assert.Equal(t, "abc", sess.ProviderRef)

	assert.Equal(t, "cid", gotHeaders.Get("x-client-id"))
	assert.Equal(t, "key", gotHeaders.Get("x-api-key"))
	assert.EqualValues(t, 123456789, gotBody.OrderCode)
	assert.Len(t, []rune(gotBody.Description), payosMaxDescription)
	assert.Equal(t, "https://shop.test/return", gotBody.CancelURL)
	want := p.sign("amount=48000&cancelUrl=https://shop.test/return&description=" + gotBody.Description +
		"&orderCode=123456789&returnUrl=https://shop.test/return")
	assert.Equal(t, want, gotBody.Signature)
}

func TestPayOSCreateCheckoutSessionErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"231","desc":"order exists"}`))
	}))
	defer srv.Close()
	p := NewPayOS(PayOSConfig{ChecksumKey: testChecksum, APIURL: srv.URL}, nil)

	_, err := p.CreateCheckoutSession(context.Background(), payments.CheckoutRequest{CorrelationID: "42", AmountCents: 1})
	assert.ErrorContains(t, err, "231")

	_, err = p.CreateCheckoutSession(context.Background(), payments.CheckoutRequest{CorrelationID: "not-a-number"})
	assert.Error(t, err)
}

func TestPayOSVerifyWebhook(t *testing.T) {
	p := NewPayOS(PayOSConfig{ChecksumKey: testChecksum}, nil)

	ev, err := p.VerifyWebhookSignature(context.Background(), payments.WebhookRequest{Body: signedPayOSBody(t, p, paidData(), "00")})
	require.NoError(t, err)
	assert.Equal(t, payments.ResultSucceeded, ev.Result)
	assert.Equal(t, "123456789", ev.CorrelationID)
	assert.Equal(t, "TF230204212323", ev.TransactionID)
	require.NotNil(t, ev.Amount)
	assert.EqualValues(t, 48000, *ev.Amount)
}

func TestPayOSRejectsTamperedAmount(t *testing.T) {
	p := NewPayOS(PayOSConfig{ChecksumKey: testChecksum}, nil)
	data := paidData()
	sig := p.SignData(data)
	data["amount"] = 1000
	body, _ := json.Marshal(map[string]any{"code": "00", "data": data, "signature": sig})

	_, err := p.VerifyWebhookSignature(context.Background(), payments.WebhookRequest{Body: body})
	assert.ErrorIs(t, err, payments.ErrInvalidSignature)

	_, err = p.VerifyWebhookSignature(context.Background(), payments.WebhookRequest{Body: []byte("{")})
	assert.ErrorIs(t, err, payments.ErrInvalidSignature)
}

func TestPayOSAcknowledge(t *testing.T) {
	p := NewPayOS(PayOSConfig{}, nil)

	status, body := p.Acknowledge(payments.OutcomeDuplicate)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, body.(PayOSAck).Error)

	status, body = p.Acknowledge(payments.OutcomeAmountMismatch)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, -1, body.(PayOSAck).Error)

	status, _ = p.Acknowledge(payments.OutcomeError)
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewCOD(), NewPayOS(PayOSConfig{}, nil))

	_, err := r.Get(payments.ProviderVNPay)
	assert.ErrorIs(t, err, payments.ErrUnsupportedProvider)

	c, err := r.Get(payments.ProviderCOD)
	require.NoError(t, err)
	sess, err := c.CreateCheckoutSession(context.Background(), payments.CheckoutRequest{CorrelationID: "9"})
	require.NoError(t, err)
	assert.True(t, sess.Completed)

	assert.Equal(t, []payments.Provider{payments.ProviderCOD, payments.ProviderPayOS}, r.Providers())
	status, _ := r.Acknowledger(payments.ProviderCOD).Acknowledge(payments.OutcomeInvalidSignature)
	assert.Equal(t, http.StatusBadRequest, status)
}
