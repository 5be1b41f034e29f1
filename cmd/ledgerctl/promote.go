package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/congo-pay/branch_ledger/internal/infra"
	"github.com/congo-pay/branch_ledger/internal/ledger"
)

func newPromoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "promote",
		Short: "Move each branch's richest account to the private branch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, true)
			if err != nil {
				return err
			}
			defer e.store.Close()

			cache, err := infra.NewRedisClient(ctx, e.cfg.RedisURL, e.cfg.AppName)
			if err != nil {
				return err
			}
			if cache != nil {
				defer cache.Close()
			}

			svc := ledger.NewService(e.store.Accounts, infra.NewLocker(cache, e.cfg, e.logger), e.logger,
				ledger.WithStoreTimeout(e.cfg.StoreTimeout))
			private, err := svc.PromoteToPrivate(ctx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(private)
		},
	}
}
