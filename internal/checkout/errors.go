package checkout

import "github.com/imrishuroy/go-checkout-reconciler/internal/apperr"

var (
	ErrEmptyCart            = apperr.New(apperr.Invalid, "EMPTY_CART", "cart is empty")
	ErrMissingCustomerEmail = apperr.New(apperr.Invalid, "MISSING_CUSTOMER_EMAIL", "customer email is required for guest checkout")
	ErrProductUnavailable   = apperr.New(apperr.Invalid, "PRODUCT_UNAVAILABLE", "product is not available")
	ErrInvalidPromotionCode = apperr.New(apperr.Invalid, "INVALID_PROMOTION_CODE", "invalid promotion code")
	ErrCartTooLarge         = apperr.New(apperr.Invalid, apperr.CodeValidation, "cart has too many lines")
)
