package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/congo-pay/branch_ledger/internal/config"
	"github.com/congo-pay/branch_ledger/internal/infra"
	"github.com/congo-pay/branch_ledger/internal/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the branch ledger account store",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newMigrateCmd(), newSeedCmd(), newPromoteCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// env is the runtime shared by every subcommand.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	store  *infra.Store
}

// errEphemeralStore is returned by commands whose effect would vanish with
// the process when the store lives in memory.
var errEphemeralStore = errors.New("STORE_BACKEND=memory keeps accounts in this process only; use postgres or mongo, or SEED_FILE to load the API's memory store")

// persistentBackend rejects the memory backend for commands that write data
// meant to outlive ledgerctl.
func persistentBackend(cfg config.Config) error {
	if cfg.StoreBackend == config.BackendMemory {
		return errEphemeralStore
	}
	return nil
}

func openEnv(ctx context.Context, persistent bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if persistent {
		if err := persistentBackend(cfg); err != nil {
			return nil, err
		}
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	store, err := infra.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	return &env{cfg: cfg, logger: logger, store: store}, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the accounts table or collection indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.store.Close()

			if err := e.store.Migrate(cmd.Context()); err != nil {
				return err
			}
			e.logger.Info("account store migrated", slog.String("backend", e.store.Backend))
			return nil
		},
	}
}
