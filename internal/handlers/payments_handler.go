package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-checkout-reconciler/internal/checkout"
	"github.com/imrishuroy/go-checkout-reconciler/internal/validation"
)

func (h *handler) createIntent(c *gin.Context) {
	var req validation.CreateIntentRequest
	if err := validation.Bind(c, &req); err != nil {
		fail(c, err)
		return
	}
	if key := c.GetHeader(headerIdempotencyKey); key != "" {
		req.IdempotencyKey = key
	}
	if err := validation.Validate(h.v, &req); err != nil {
		fail(c, err)
		return
	}
	if req.ReturnURL == "" {
		req.ReturnURL = h.cfg.ReturnURL
	}
	if req.CancelURL == "" {
		req.CancelURL = h.cfg.CancelURL
	}

	res, err := h.cfg.Payments.CreateIntent(c.Request.Context(), checkout.IntentParams{
		OrderID:        req.OrderID,
		Provider:       req.Provider,
		IdempotencyKey: req.IdempotencyKey,
		ReturnURL:      req.ReturnURL,
		CancelURL:      req.CancelURL,
		ClientIP:       c.ClientIP(),
	})
	if err != nil {
		fail(c, err)
		return
	}
	status := http.StatusCreated
	if res.Reused {
		status = http.StatusOK
	}
	c.JSON(status, res.Intent)
}

func (h *handler) refund(c *gin.Context) {
	var req validation.RefundRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		fail(c, err)
		return
	}
	refund, err := h.cfg.Payments.Refund(c.Request.Context(), c.Param("paymentId"), req.Amount, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, refund)
}
