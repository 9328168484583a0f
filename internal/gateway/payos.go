package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/imrishuroy/go-checkout-reconciler/internal/payments"
)

const (
	payosDefaultAPI = "https://api-merchant.payos.vn"
	// payOS truncates longer descriptions on the bank transfer.
	payosMaxDescription = 25
)

type PayOSConfig struct {
	ClientID    string
	APIKey      string
	ChecksumKey string
	APIURL      string
}

// PayOS is the bank-transfer gateway. orderCode must be a positive integer,
// so intents carry numeric correlation codes.
type PayOS struct {
	cfg  PayOSConfig
	http *http.Client
}

func NewPayOS(cfg PayOSConfig, client *http.Client) *PayOS {
	if cfg.APIURL == "" {
		cfg.APIURL = payosDefaultAPI
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if client == nil {
		client = defaultHTTPClient()
	}
	return &PayOS{cfg: cfg, http: client}
}

func (p *PayOS) Provider() payments.Provider { return payments.ProviderPayOS }

type payosCreateRequest struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	CancelURL   string `json:"cancelUrl"`
	ReturnURL   string `json:"returnUrl"`
	Signature   string `json:"signature"`
}

type payosEnvelope struct {
	Code string          `json:"code"`
	Desc string          `json:"desc"`
	Data json.RawMessage `json:"data"`
}

type payosCheckoutData struct {
	CheckoutURL   string `json:"checkoutUrl"`
	PaymentLinkID string `json:"paymentLinkId"`
}

func (p *PayOS) CreateCheckoutSession(ctx context.Context, req payments.CheckoutRequest) (payments.CheckoutSession, error) {
	orderCode, err := strconv.ParseInt(req.CorrelationID, 10, 64)
	if err != nil || orderCode <= 0 {
		return payments.CheckoutSession{}, fmt.Errorf("payos: correlation id %q is not a positive integer", req.CorrelationID)
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = req.ReturnURL
	}
	body := payosCreateRequest{
		OrderCode:   orderCode,
		Amount:      req.AmountCents,
		Description: clip(req.Description, payosMaxDescription),
		CancelURL:   cancelURL,
		ReturnURL:   req.ReturnURL,
	}
	body.Signature = p.sign(fmt.Sprintf("amount=%d&cancelUrl=%s&description=%s&orderCode=%d&returnUrl=%s",
		body.Amount, body.CancelURL, body.Description, body.OrderCode, body.ReturnURL))

	payload, err := json.Marshal(body)
	if err != nil {
		return payments.CheckoutSession{}, fmt.Errorf("marshal payos request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIURL+"/v2/payment-requests", bytes.NewReader(payload))
	if err != nil {
		return payments.CheckoutSession{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-client-id", p.cfg.ClientID)
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)

	var env payosEnvelope
	if err := doJSON(p.http, httpReq, &env); err != nil {
		return payments.CheckoutSession{}, fmt.Errorf("payos create payment link: %w", err)
	}
	if env.Code != "00" {
		return payments.CheckoutSession{}, fmt.Errorf("payos create payment link: %s %s", env.Code, env.Desc)
	}
	var data payosCheckoutData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return payments.CheckoutSession{}, fmt.Errorf("decode payos data: %w", err)
	}
	if data.CheckoutURL == "" {
		return payments.CheckoutSession{}, fmt.Errorf("payos create payment link: empty checkoutUrl")
	}
	return payments.CheckoutSession{CheckoutURL: data.CheckoutURL, ProviderRef: data.PaymentLinkID}, nil
}

func (p *PayOS) sign(data string) string {
	mac := hmac.New(sha256.New, []byte(p.cfg.ChecksumKey))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignData signs a webhook data object the way payOS does: keys sorted,
// key=value pairs joined by '&', nulls as empty strings.
func (p *PayOS) SignData(data map[string]any) string {
	return p.sign(payosSignData(data))
}

func payosSignData(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+payosValue(data[k]))
	}
	return strings.Join(parts, "&")
}

func payosValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		if t == "null" || t == "undefined" {
			return ""
		}
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

type payosWebhook struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

func (p *PayOS) VerifyWebhookSignature(_ context.Context, req payments.WebhookRequest) (payments.Event, error) {
	var hook payosWebhook
	if err := json.Unmarshal(req.Body, &hook); err != nil {
		return payments.Event{}, payments.ErrInvalidSignature
	}

	dec := json.NewDecoder(bytes.NewReader(hook.Data))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil || data == nil {
		return payments.Event{}, payments.ErrInvalidSignature
	}

	got, err := hex.DecodeString(strings.ToLower(hook.Signature))
	if err != nil || len(got) == 0 {
		return payments.Event{}, payments.ErrInvalidSignature
	}
	want, _ := hex.DecodeString(p.SignData(data))
	if !hmac.Equal(got, want) {
		return payments.Event{}, payments.ErrInvalidSignature
	}

	ev := payments.Event{
		Provider:      payments.ProviderPayOS,
		CorrelationID: payosValue(data["orderCode"]),
		TransactionID: payosValue(data["reference"]),
		RawCode:       payosValue(data["code"]),
		Result:        payments.ResultFailed,
	}
	if hook.Code == "00" && (ev.RawCode == "" || ev.RawCode == "00") {
		ev.Result = payments.ResultSucceeded
	}
	if raw, ok := data["amount"]; ok && raw != nil {
		n, err := strconv.ParseInt(payosValue(raw), 10, 64)
		if err != nil {
			return payments.Event{}, payments.ErrInvalidSignature
		}
		ev.Amount = &n
	}
	return ev, nil
}

// PayOSAck is the webhook response body.
type PayOSAck struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// Acknowledge answers 200 for anything payOS should stop retrying and 500
// only for internal failures.
func (p *PayOS) Acknowledge(outcome payments.Outcome) (int, any) {
	switch outcome {
	case payments.OutcomeApplied, payments.OutcomeDuplicate:
		return http.StatusOK, PayOSAck{Error: 0, Message: "ok"}
	case payments.OutcomeNotFound:
		return http.StatusOK, PayOSAck{Error: 0, Message: "order not found"}
	case payments.OutcomeInvalidSignature:
		return http.StatusOK, PayOSAck{Error: -1, Message: "invalid signature"}
	case payments.OutcomeAmountMismatch:
		return http.StatusOK, PayOSAck{Error: -1, Message: "invalid amount"}
	default:
		return http.StatusInternalServerError, PayOSAck{Error: 1, Message: "internal error"}
	}
}

// ProcessRefund is unsupported: payOS transfers are refunded by the merchant
// bank outside the gateway.
func (p *PayOS) ProcessRefund(context.Context, payments.RefundRequest) (payments.RefundResult, error) {
	return payments.RefundResult{}, payments.ErrRefundNotSupported
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
