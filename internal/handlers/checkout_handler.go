package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-checkout-reconciler/internal/auth"
	"github.com/imrishuroy/go-checkout-reconciler/internal/checkout"
	"github.com/imrishuroy/go-checkout-reconciler/internal/validation"
)

const headerIdempotencyKey = "Idempotency-Key"

func (h *handler) createOrder(c *gin.Context) {
	ctx := c.Request.Context()
	userID := auth.UserID(c)

	var req validation.CreateOrderRequest
	if err := validation.Bind(c, &req); err != nil {
		fail(c, err)
		return
	}
	if key := c.GetHeader(headerIdempotencyKey); key != "" {
		req.IdempotencyKey = key
	}
	req.Guest = userID == ""
	if err := validation.Validate(h.v, &req); err != nil {
		fail(c, err)
		return
	}

	res, err := h.cfg.Checkout.CreateOrder(ctx, userID, checkout.OrderParams{
		CartID:          req.CartID,
		PromotionCode:   req.PromotionCode,
		ShippingAddress: string(req.ShippingAddress),
		CustomerEmail:   req.CustomerEmail,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		PaymentMethod:   req.PaymentMethod,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		fail(c, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
		c.Header("Location", fmt.Sprintf("/orders/%s", res.Order.OrderID))
	}
	c.JSON(status, res.Order)
}
