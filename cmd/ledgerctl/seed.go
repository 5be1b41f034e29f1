package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/congo-pay/branch_ledger/internal/account"
)

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert accounts from a JSON file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			accounts, err := account.LoadSeedFile(file)
			if err != nil {
				return err
			}

			e, err := openEnv(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.store.Close()

			if err := e.store.Migrate(cmd.Context()); err != nil {
				return err
			}
			seeder, ok := e.store.Accounts.(account.Seeder)
			if !ok {
				return errors.New("store does not support seeding")
			}
			if err := seeder.InsertMany(cmd.Context(), accounts); err != nil {
				return fmt.Errorf("insert accounts: %w", err)
			}
			e.logger.Info("accounts seeded",
				slog.String("backend", e.store.Backend),
				slog.Int("count", len(accounts)),
			)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON array of accounts")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
