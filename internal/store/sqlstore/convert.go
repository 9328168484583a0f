package sqlstore

import (
	"github.com/imrishuroy/go-checkout-reconciler/internal/catalog"
	"github.com/imrishuroy/go-checkout-reconciler/internal/inventory"
	"github.com/imrishuroy/go-checkout-reconciler/internal/orders"
	"github.com/imrishuroy/go-checkout-reconciler/internal/payments"
)

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *productRow) toDomain() *catalog.Product {
	return &catalog.Product{
		ProductID:  r.ID,
		Name:       r.Name,
		PriceCents: r.PriceCents,
		Active:     r.Active,
		Deleted:    r.Deleted,
	}
}

func (r *inventoryRow) toDomain() *inventory.Record {
	return &inventory.Record{
		ProductID: r.ProductID,
		Stock:     r.Stock,
		Reserved:  r.Reserved,
		Available: r.Stock - r.Reserved,
		UpdatedAt: r.UpdatedAt,
	}
}

func (r *cartRow) toDomain() *catalog.Cart {
	c := &catalog.Cart{
		CartID:    r.ID,
		UserID:    deref(r.UserID),
		Status:    r.Status,
		UpdatedAt: r.UpdatedAt,
	}
	for _, it := range r.Items {
		c.Lines = append(c.Lines, catalog.CartLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return c
}

func (r *userRow) toDomain() *catalog.User {
	return &catalog.User{
		UserID:    r.ID,
		Email:     r.Email,
		Name:      r.Name,
		Phone:     r.Phone,
		Guest:     r.Guest,
		CreatedAt: r.CreatedAt,
	}
}

func orderFromDomain(o *orders.Order) *orderRow {
	row := &orderRow{
		ID:               o.OrderID,
		OrderNumber:      o.OrderNumber,
		UserID:           strPtr(o.UserID),
		CustomerEmail:    o.CustomerEmail,
		CustomerName:     o.CustomerName,
		CustomerPhone:    o.CustomerPhone,
		Status:           string(o.Status),
		SubtotalCents:    o.SubtotalCents,
		DiscountCents:    o.DiscountCents,
		ShippingCents:    o.ShippingCents,
		TotalCents:       o.TotalCents,
		Currency:         o.Currency,
		PromotionCode:    strPtr(o.PromotionCode),
		PaymentMethod:    o.PaymentMethod,
		CartID:           o.CartID,
		IdempotencyScope: strPtr(o.IdempotencyScope),
		IdempotencyKey:   strPtr(o.IdempotencyKey),
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
	if o.ShippingAddress != "" {
		row.ShippingAddress = []byte(o.ShippingAddress)
	}
	for i, it := range o.Items {
		row.Items = append(row.Items, orderItemRow{
			ID:             it.ItemID,
			OrderID:        o.OrderID,
			Position:       i,
			ProductID:      it.ProductID,
			Name:           it.Name,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
		})
	}
	return row
}

func (r *orderRow) toDomain() *orders.Order {
	o := &orders.Order{
		OrderID:          r.ID,
		OrderNumber:      r.OrderNumber,
		UserID:           deref(r.UserID),
		CustomerEmail:    r.CustomerEmail,
		CustomerName:     r.CustomerName,
		CustomerPhone:    r.CustomerPhone,
		Status:           orders.Status(r.Status),
		SubtotalCents:    r.SubtotalCents,
		DiscountCents:    r.DiscountCents,
		ShippingCents:    r.ShippingCents,
		TotalCents:       r.TotalCents,
		Currency:         r.Currency,
		PromotionCode:    deref(r.PromotionCode),
		PaymentMethod:    r.PaymentMethod,
		ShippingAddress:  string(r.ShippingAddress),
		CartID:           r.CartID,
		IdempotencyScope: deref(r.IdempotencyScope),
		IdempotencyKey:   deref(r.IdempotencyKey),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	for _, it := range r.Items {
		o.Items = append(o.Items, orders.Item{
			ItemID:         it.ID,
			ProductID:      it.ProductID,
			Name:           it.Name,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
		})
	}
	return o
}

func intentFromDomain(in *payments.Intent) *intentRow {
	return &intentRow{
		ID:             in.IntentID,
		OrderID:        in.OrderID,
		Provider:       string(in.Provider),
		IdempotencyKey: in.IdempotencyKey,
		CorrelationID:  in.CorrelationID,
		Status:         string(in.Status),
		AmountCents:    in.AmountCents,
		Currency:       in.Currency,
		CheckoutURL:    in.CheckoutURL,
		ProviderRef:    in.ProviderRef,
		FailureReason:  in.FailureReason,
		CreatedAt:      in.CreatedAt,
		UpdatedAt:      in.UpdatedAt,
	}
}

func (r *intentRow) toDomain() *payments.Intent {
	return &payments.Intent{
		IntentID:       r.ID,
		OrderID:        r.OrderID,
		Provider:       payments.Provider(r.Provider),
		Status:         payments.IntentStatus(r.Status),
		AmountCents:    r.AmountCents,
		Currency:       r.Currency,
		IdempotencyKey: r.IdempotencyKey,
		CorrelationID:  r.CorrelationID,
		CheckoutURL:    r.CheckoutURL,
		ProviderRef:    r.ProviderRef,
		FailureReason:  r.FailureReason,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (r *paymentRow) toDomain() *payments.Payment {
	return &payments.Payment{
		PaymentID:     r.ID,
		IntentID:      r.IntentID,
		OrderID:       r.OrderID,
		Provider:      payments.Provider(r.Provider),
		AmountCents:   r.AmountCents,
		Currency:      r.Currency,
		TransactionID: r.TransactionID,
		CreatedAt:     r.CreatedAt,
	}
}

func (r *refundRow) toDomain() payments.Refund {
	return payments.Refund{
		RefundID:    r.ID,
		PaymentID:   r.PaymentID,
		OrderID:     r.OrderID,
		Provider:    payments.Provider(r.Provider),
		AmountCents: r.AmountCents,
		Currency:    r.Currency,
		Status:      payments.RefundStatus(r.Status),
		ProviderRef: r.ProviderRef,
		Reason:      r.Reason,
		CreatedAt:   r.CreatedAt,
	}
}

func (r *movementRow) toDomain() *inventory.Movement {
	return &inventory.Movement{
		MovementID:    r.ID,
		ProductID:     r.ProductID,
		Type:          inventory.MovementType(r.Type),
		Quantity:      r.Quantity,
		StockBefore:   r.StockBefore,
		StockAfter:    r.StockAfter,
		ReferenceType: r.ReferenceType,
		ReferenceID:   r.ReferenceID,
		Reason:        r.Reason,
		CreatedAt:     r.CreatedAt,
	}
}
