package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-checkout-reconciler/internal/payments"
)

const (
	vnpayVersion         = "2.1.0"
	vnpaySandboxPayURL   = "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"
	vnpaySandboxRefund   = "https://sandbox.vnpayment.vn/merchant_webapi/api/transaction"
	vnpayDateLayout      = "20060102150405"
	vnpaySessionLifetime = 15 * time.Minute
)

// VNPay timestamps are Indochina time regardless of server zone.
var vnpayZone = time.FixedZone("ICT", 7*60*60)

type VNPayConfig struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	RefundURL  string
}

// VNPay is the redirect gateway. Amounts on the wire are the order amount
// times 100; the IPN is a signed GET query string.
type VNPay struct {
	cfg  VNPayConfig
	http *http.Client
	now  func() time.Time
}

func NewVNPay(cfg VNPayConfig, client *http.Client) *VNPay {
	if cfg.PayURL == "" {
		cfg.PayURL = vnpaySandboxPayURL
	}
	if cfg.RefundURL == "" {
		cfg.RefundURL = vnpaySandboxRefund
	}
	if client == nil {
		client = defaultHTTPClient()
	}
	return &VNPay{cfg: cfg, http: client, now: time.Now}
}

func (v *VNPay) Provider() payments.Provider { return payments.ProviderVNPay }

func (v *VNPay) CreateCheckoutSession(_ context.Context, req payments.CheckoutRequest) (payments.CheckoutSession, error) {
	now := v.now().In(vnpayZone)
	ip := req.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}
	q := url.Values{}
	q.Set("vnp_Version", vnpayVersion)
	q.Set("vnp_Command", "pay")
	q.Set("vnp_TmnCode", v.cfg.TmnCode)
	q.Set("vnp_Amount", strconv.FormatInt(req.AmountCents*100, 10))
	q.Set("vnp_CurrCode", "VND")
	q.Set("vnp_TxnRef", req.CorrelationID)
	q.Set("vnp_OrderInfo", req.Description)
	q.Set("vnp_OrderType", "other")
	q.Set("vnp_Locale", "vn")
	q.Set("vnp_ReturnUrl", req.ReturnURL)
	q.Set("vnp_IpAddr", ip)
	q.Set("vnp_CreateDate", now.Format(vnpayDateLayout))
	q.Set("vnp_ExpireDate", now.Add(vnpaySessionLifetime).Format(vnpayDateLayout))

	signed := v.SignQuery(q)
	return payments.CheckoutSession{
		CheckoutURL: v.cfg.PayURL + "?" + signed.Encode(),
	}, nil
}

// SignQuery returns a copy of q carrying vnp_SecureHash.
func (v *VNPay) SignQuery(q url.Values) url.Values {
	out := url.Values{}
	for k, vals := range q {
		out[k] = append([]string(nil), vals...)
	}
	out.Del("vnp_SecureHash")
	out.Del("vnp_SecureHashType")
	out.Set("vnp_SecureHash", v.hash(vnpaySignData(out)))
	return out
}

// vnpaySignData is the sorted, form-encoded vnp_ fields without the hash.
func vnpaySignData(q url.Values) string {
	filtered := url.Values{}
	for k, vals := range q {
		if !strings.HasPrefix(k, "vnp_") || k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		if len(vals) == 0 || vals[0] == "" {
			continue
		}
		filtered.Set(k, vals[0])
	}
	return filtered.Encode()
}

func (v *VNPay) hash(data string) string {
	mac := hmac.New(sha512.New, []byte(v.cfg.HashSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *VNPay) VerifyWebhookSignature(_ context.Context, req payments.WebhookRequest) (payments.Event, error) {
	q := req.Query
	if len(q) == 0 && len(req.Body) > 0 {
		parsed, err := url.ParseQuery(string(req.Body))
		if err != nil {
			return payments.Event{}, payments.ErrInvalidSignature
		}
		q = parsed
	}

	got, err := hex.DecodeString(strings.ToLower(q.Get("vnp_SecureHash")))
	if err != nil || len(got) == 0 {
		return payments.Event{}, payments.ErrInvalidSignature
	}
	want, _ := hex.DecodeString(v.hash(vnpaySignData(q)))
	if !hmac.Equal(got, want) {
		return payments.Event{}, payments.ErrInvalidSignature
	}

	ev := payments.Event{
		Provider:      payments.ProviderVNPay,
		CorrelationID: q.Get("vnp_TxnRef"),
		TransactionID: q.Get("vnp_TransactionNo"),
		RawCode:       q.Get("vnp_ResponseCode"),
		Result:        payments.ResultFailed,
	}
	status := q.Get("vnp_TransactionStatus")
	if ev.RawCode == "00" && (status == "" || status == "00") {
		ev.Result = payments.ResultSucceeded
	}
	if raw := q.Get("vnp_Amount"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return payments.Event{}, payments.ErrInvalidSignature
		}
		amount := n / 100
		if n%100 != 0 {
			// fractional minor units never match a stored intent
			amount = -1
		}
		ev.Amount = &amount
	}
	return ev, nil
}

// VNPayAck is the IPN response body.
type VNPayAck struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// Acknowledge renders the IPN response VNPay expects. Every answer is HTTP
// 200; VNPay only inspects RspCode.
func (v *VNPay) Acknowledge(outcome payments.Outcome) (int, any) {
	code, msg := "99", "Unknown error"
	switch outcome {
	case payments.OutcomeApplied:
		code, msg = "00", "Confirm Success"
	case payments.OutcomeDuplicate:
		code, msg = "00", "Order already confirmed"
	case payments.OutcomeNotFound:
		code, msg = "01", "Order not found"
	case payments.OutcomeAmountMismatch:
		code, msg = "04", "Invalid amount"
	case payments.OutcomeInvalidSignature:
		code, msg = "97", "Invalid signature"
	}
	return http.StatusOK, VNPayAck{RspCode: code, Message: msg}
}

type vnpayRefundResponse struct {
	ResponseCode  string `json:"vnp_ResponseCode"`
	Message       string `json:"vnp_Message"`
	TransactionNo string `json:"vnp_TransactionNo"`
}

// ProcessRefund calls the merchant transaction API. Full refunds use type
// 02, partial refunds 03.
func (v *VNPay) ProcessRefund(ctx context.Context, req payments.RefundRequest) (payments.RefundResult, error) {
	now := v.now().In(vnpayZone)
	txType := "03"
	if req.AmountCents == req.Payment.AmountCents {
		txType = "02"
	}
	fields := []struct{ k, v string }{
		{"vnp_RequestId", strings.ReplaceAll(uuid.NewString(), "-", "")},
		{"vnp_Version", vnpayVersion},
		{"vnp_Command", "refund"},
		{"vnp_TmnCode", v.cfg.TmnCode},
		{"vnp_TransactionType", txType},
		{"vnp_TxnRef", req.CorrelationID},
		{"vnp_Amount", strconv.FormatInt(req.AmountCents*100, 10)},
		{"vnp_TransactionNo", req.Payment.TransactionID},
		{"vnp_TransactionDate", req.Payment.CreatedAt.In(vnpayZone).Format(vnpayDateLayout)},
		{"vnp_CreateBy", "system"},
		{"vnp_CreateDate", now.Format(vnpayDateLayout)},
		{"vnp_IpAddr", "127.0.0.1"},
		{"vnp_OrderInfo", refundInfo(req)},
	}
	body := make(map[string]string, len(fields)+1)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		body[f.k] = f.v
		parts = append(parts, f.v)
	}
	body["vnp_SecureHash"] = v.hash(strings.Join(parts, "|"))

	payload, err := json.Marshal(body)
	if err != nil {
		return payments.RefundResult{}, fmt.Errorf("marshal vnpay refund: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.RefundURL, bytes.NewReader(payload))
	if err != nil {
		return payments.RefundResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out vnpayRefundResponse
	if err := doJSON(v.http, httpReq, &out); err != nil {
		return payments.RefundResult{}, fmt.Errorf("vnpay refund: %w", err)
	}
	if out.ResponseCode != "00" {
		return payments.RefundResult{Status: payments.RefundFailed}, fmt.Errorf("vnpay refund rejected: %s %s", out.ResponseCode, out.Message)
	}
	return payments.RefundResult{ProviderRef: out.TransactionNo, Status: payments.RefundSucceeded}, nil
}

func refundInfo(req payments.RefundRequest) string {
	if req.Reason != "" {
		return req.Reason
	}
	return "Refund " + req.RefundID
}
