// Command checkoutctl is the operator CLI: schema migration, seeding a
// local catalog, stock corrections, signed test webhooks and API tokens.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-checkout-reconciler/internal/app"
	"github.com/imrishuroy/go-checkout-reconciler/internal/aws"
	"github.com/imrishuroy/go-checkout-reconciler/internal/config"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "checkoutctl",
		Short:         "Operate the checkout and payment reconciliation service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(migrateCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(inventoryCmd())
	root.AddCommand(webhookCmd())
	root.AddCommand(tokenCmd())
	return root
}

// openBackend loads config and opens the configured store. AWS clients are
// only built for the DynamoDB backend.
func openBackend(ctx context.Context) (*config.Config, *app.Backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	clients := &aws.AWSClients{}
	if cfg.StoreBackend == config.BackendDynamo {
		if clients, err = aws.NewAWSClients(ctx); err != nil {
			return nil, nil, fmt.Errorf("init aws clients: %w", err)
		}
	}
	backend, err := app.OpenStore(cfg, clients)
	if err != nil {
		return nil, nil, err
	}
	return cfg, backend, nil
}

// openSQL is openBackend for commands that only make sense on the
// relational backend.
func openSQL(ctx context.Context, command string) (*app.Backend, error) {
	_, backend, err := openBackend(ctx)
	if err != nil {
		return nil, err
	}
	if backend.SQL == nil {
		backend.Close()
		return nil, fmt.Errorf("%s requires STORE_BACKEND=sql", command)
	}
	return backend, nil
}
