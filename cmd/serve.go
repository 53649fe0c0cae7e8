package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parisxmas/OxiDB/OxiForms/internal/app"
)

func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server", "start"},
		Short:   "Run the HTTP API",
		Long:    "Prepare the store (migrations, indexes, blob bucket), seed the configured super admin and serve the HTTP API until interrupted.",
		RunE:    runServe,
	}
	cmd.Flags().Bool("skip-prepare", false, "Do not migrate or create indexes on startup")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := signal.NotifyContext(rt.context(cmd.Context()), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	b, err := app.OpenBackends(ctx, rt.cfg, rt.log)
	if err != nil {
		return err
	}
	if skip, _ := cmd.Flags().GetBool("skip-prepare"); !skip {
		if err := b.Prepare(ctx); err != nil {
			_ = b.Close()
			return err
		}
	}
	a, err := app.New(ctx, rt.cfg, b, rt.log)
	if err != nil {
		_ = b.Close()
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			rt.log.Warn("Close failed", "error", err)
		}
	}()
	if err := a.SeedSuperAdmin(ctx); err != nil {
		return err
	}
	return a.Serve(ctx)
}
