package validation

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-checkout-reconciler/internal/apperr"
)

func TestCreateOrderRequest_SignedInNeedsNothing(t *testing.T) {
	v := New()

	if err := v.Struct(CreateOrderRequest{}); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
}

func TestCreateOrderRequest_GuestNeedsCartAndEmail(t *testing.T) {
	v := New()

	err := Validate(v, &CreateOrderRequest{Guest: true})
	if err == nil {
		t.Fatal("expected validation errors for guest without cart and e-mail, got nil")
	}
	ae, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected *apperr.Error, got %T", err)
	}
	if ae.Fields["cart_id"] != "is required" || ae.Fields["customer_email"] != "is required" {
		t.Fatalf("unexpected fields: %v", ae.Fields)
	}

	ok2 := CreateOrderRequest{Guest: true, CartID: "c1", CustomerEmail: "a@example.com"}
	if err := v.Struct(ok2); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
}

func TestCreateOrderRequest_RejectsUnknownPaymentMethod(t *testing.T) {
	v := New()

	if err := v.Struct(CreateOrderRequest{PaymentMethod: "bitcoin"}); err == nil {
		t.Fatal("expected validation error for payment method, got nil")
	}
}

func TestCreateIntentRequest_ShortKey(t *testing.T) {
	v := New()

	err := Validate(v, &CreateIntentRequest{OrderID: "o1", Provider: "vnpay", IdempotencyKey: "short"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	ae, _ := apperr.As(err)
	if ae.Fields["idempotency_key"] != "must be at least 8" {
		t.Fatalf("unexpected fields: %v", ae.Fields)
	}
}

func TestBindAndValidate_MalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	c.Request.Header.Set("Content-Type", "application/json")

	var req CreateIntentRequest
	err := BindAndValidate(c, &req, New())
	if apperr.HTTPStatus(err) != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%v)", apperr.HTTPStatus(err), err)
	}
}
