package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/imrishuroy/go-checkout-reconciler/internal/catalog"
	"github.com/imrishuroy/go-checkout-reconciler/internal/inventory"
	"github.com/imrishuroy/go-checkout-reconciler/internal/store/sqlstore"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the relational schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := openSQL(cmd.Context(), "migrate")
			if err != nil {
				return err
			}
			defer backend.Close()

			if err := sqlstore.Migrate(backend.SQL.DB()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

// seedFile is the YAML layout accepted by the seed command.
type seedFile struct {
	Products []struct {
		ID         string `yaml:"id"`
		Name       string `yaml:"name"`
		PriceCents int64  `yaml:"price_cents"`
		Stock      int64  `yaml:"stock"`
		Inactive   bool   `yaml:"inactive"`
	} `yaml:"products"`
	Carts []struct {
		ID     string `yaml:"id"`
		UserID string `yaml:"user_id"`
		Lines  []struct {
			ProductID string `yaml:"product_id"`
			Quantity  int    `yaml:"quantity"`
		} `yaml:"lines"`
	} `yaml:"carts"`
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed [file.yaml]",
		Short: "Load products, stock and carts into a local database",
		Long: `Load a catalog fixture into the relational backend.

Example file:
  products:
    - id: p1
      name: Mechanical keyboard
      price_cents: 1500000
      stock: 25
  carts:
    - id: cart-1
      lines:
        - {product_id: p1, quantity: 1}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read seed file: %w", err)
			}
			var f seedFile
			if err := yaml.Unmarshal(data, &f); err != nil {
				return fmt.Errorf("parse seed file: %w", err)
			}

			ctx := cmd.Context()
			backend, err := openSQL(ctx, "seed")
			if err != nil {
				return err
			}
			defer backend.Close()

			for _, p := range f.Products {
				if p.ID == "" {
					return fmt.Errorf("seed: product without id")
				}
				prod := catalog.Product{ProductID: p.ID, Name: p.Name, PriceCents: p.PriceCents, Active: !p.Inactive}
				if err := backend.SQL.PutProduct(ctx, prod, p.Stock); err != nil {
					return err
				}
			}
			for _, c := range f.Carts {
				cart := catalog.Cart{CartID: c.ID, UserID: c.UserID, Status: catalog.CartActive}
				for _, ln := range c.Lines {
					cart.Lines = append(cart.Lines, catalog.CartLine{ProductID: ln.ProductID, Quantity: ln.Quantity})
				}
				if err := backend.SQL.PutCart(ctx, cart); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d products, %d carts\n", len(f.Products), len(f.Carts))
			return nil
		},
	}
}

func inventoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Inspect and correct stock",
	}

	var (
		productID string
		delta     int
		reason    string
	)
	adjust := &cobra.Command{
		Use:   "adjust",
		Short: "Apply a signed stock correction and record the movement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, backend, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer backend.Close()

			ledger := inventory.NewLedger(slog.Default())
			mv, err := ledger.Correct(ctx, backend.Store, productID, delta, reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %+d, stock now %d\n", productID, delta, mv.StockAfter)
			return nil
		},
	}
	adjust.Flags().StringVar(&productID, "product", "", "product id")
	adjust.Flags().IntVar(&delta, "delta", 0, "signed quantity change")
	adjust.Flags().StringVar(&reason, "reason", "", "reason recorded on the movement")
	_ = adjust.MarkFlagRequired("product")
	_ = adjust.MarkFlagRequired("delta")

	show := &cobra.Command{
		Use:   "show [product-id]",
		Short: "Print stock and reservations for a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, backend, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer backend.Close()

			rec, err := backend.Store.GetInventory(ctx, args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("no inventory for %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: stock=%d reserved=%d available=%d\n",
				args[0], rec.Stock, rec.Reserved, rec.AvailableToSell())
			return nil
		},
	}

	cmd.AddCommand(adjust, show)
	return cmd
}
