package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-checkout-reconciler/internal/payments"
)

const maxWebhookBody = 1 << 20

// vnpayIPN handles VNPay's signed GET callback. The query string is handed
// to the adapter untouched.
func (h *handler) vnpayIPN(c *gin.Context) {
	h.reconcile(c, payments.ProviderVNPay, payments.WebhookRequest{
		Header: c.Request.Header,
		Query:  c.Request.URL.Query(),
	})
}

func (h *handler) providerWebhook(c *gin.Context) {
	provider := payments.Provider(c.Param("provider"))
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		h.log.WarnContext(c.Request.Context(), "webhook body unreadable", "provider", provider, "err", err)
		status, ack := h.cfg.Acks.Acknowledger(provider).Acknowledge(payments.OutcomeInvalidSignature)
		c.JSON(status, ack)
		return
	}
	h.reconcile(c, provider, payments.WebhookRequest{
		Header: c.Request.Header,
		Query:  c.Request.URL.Query(),
		Body:   body,
	})
}

// reconcile always answers in the provider's own acknowledgment shape, even
// on internal failure, so the provider knows whether to retry.
func (h *handler) reconcile(c *gin.Context, provider payments.Provider, req payments.WebhookRequest) {
	ctx := c.Request.Context()
	outcome, err := h.cfg.Reconciler.Handle(ctx, provider, req)
	if err != nil {
		h.log.ErrorContext(ctx, "webhook failed", "provider", provider, "request_id", GetRequestID(c), "err", err)
	}
	status, ack := h.cfg.Acks.Acknowledger(provider).Acknowledge(outcome)
	c.JSON(status, ack)
}
