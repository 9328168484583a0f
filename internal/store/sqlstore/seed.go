package sqlstore

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/imrishuroy/go-checkout-reconciler/internal/catalog"
)

// PutProduct upserts a product and sets its stock. Used by the operator CLI
// seed command and by tests.
func (s *Store) PutProduct(ctx context.Context, p catalog.Product, stock int64) error {
	now := s.now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prod := productRow{
			ID:         p.ProductID,
			Name:       p.Name,
			PriceCents: p.PriceCents,
			Active:     p.Active,
			Deleted:    p.Deleted,
			UpdatedAt:  now,
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&prod).Error; err != nil {
			return fmt.Errorf("put product: %w", err)
		}
		inv := inventoryRow{ProductID: p.ProductID, Stock: stock, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"stock", "updated_at"}),
		}).Create(&inv).Error; err != nil {
			return fmt.Errorf("put inventory: %w", err)
		}
		return nil
	})
}

// PutCart replaces a cart and its lines.
func (s *Store) PutCart(ctx context.Context, c catalog.Cart) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cart_id = ?", c.CartID).Delete(&cartItemRow{}).Error; err != nil {
			return fmt.Errorf("clear cart items: %w", err)
		}
		status := c.Status
		if status == "" {
			status = catalog.CartActive
		}
		row := cartRow{
			ID:        c.CartID,
			UserID:    strPtr(c.UserID),
			Status:    status,
			UpdatedAt: s.now().UTC(),
		}
		if err := tx.Omit("Items").Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("put cart: %w", err)
		}
		for _, ln := range c.Lines {
			item := cartItemRow{CartID: c.CartID, ProductID: ln.ProductID, Quantity: ln.Quantity}
			if err := tx.Create(&item).Error; err != nil {
				return fmt.Errorf("put cart item: %w", err)
			}
		}
		return nil
	})
}
