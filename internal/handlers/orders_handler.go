package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-checkout-reconciler/internal/auth"
	"github.com/imrishuroy/go-checkout-reconciler/internal/orders"
	"github.com/imrishuroy/go-checkout-reconciler/internal/validation"
)

// getOrder accepts either the order id or the customer-facing order number.
// Orders the caller may not read are reported as not found.
func (h *handler) getOrder(c *gin.Context) {
	id := c.Param("id")
	var (
		o   *orders.Order
		err error
	)
	if strings.HasPrefix(id, "ORD-") {
		o, err = h.cfg.Orders.GetByNumber(c.Request.Context(), id)
	} else {
		o, err = h.cfg.Orders.Get(c.Request.Context(), id)
	}
	if err != nil {
		fail(c, err)
		return
	}
	if !canRead(c, o) {
		fail(c, orders.ErrOrderNotFound)
		return
	}
	c.JSON(http.StatusOK, o)
}

// canRead lets admins read any order and signed-in users their own. Guests
// prove ownership with the email the order was placed under.
func canRead(c *gin.Context, o *orders.Order) bool {
	if auth.Role(c) == auth.RoleAdmin {
		return true
	}
	if userID := auth.UserID(c); userID != "" {
		return userID == o.UserID
	}
	email := strings.TrimSpace(c.Query("email"))
	return email != "" && strings.EqualFold(email, o.CustomerEmail)
}

func (h *handler) updateOrderStatus(c *gin.Context) {
	var req validation.UpdateOrderStatusRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		fail(c, err)
		return
	}
	next, err := orders.ParseStatus(req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	o, err := h.cfg.Orders.Transition(c.Request.Context(), c.Param("id"), next)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handler) deleteOrder(c *gin.Context) {
	if err := h.cfg.Orders.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
