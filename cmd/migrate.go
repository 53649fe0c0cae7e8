package cmd

import (
	"github.com/spf13/cobra"

	"github.com/parisxmas/OxiDB/OxiForms/internal/app"
)

func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations, or create OxiDB indexes and the blob bucket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd)
			if err != nil {
				return err
			}
			defer rt.close()
			ctx := rt.context(cmd.Context())

			b, err := app.OpenBackends(ctx, rt.cfg, rt.log)
			if err != nil {
				return err
			}
			defer b.Close()
			if err := b.Prepare(ctx); err != nil {
				return err
			}
			rt.log.Info("Store is up to date", "store", rt.cfg.Store.Driver, "blobs", rt.cfg.Blob.Driver)
			return nil
		},
	}
}
