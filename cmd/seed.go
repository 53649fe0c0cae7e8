package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parisxmas/OxiDB/OxiForms/internal/app"
)

func SeedSuperAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-super-admin",
		Short: "Create the super admin account",
		Long:  "Create the super admin from --email/--password, or from OXIFORMS_SUPER_ADMIN_EMAIL and OXIFORMS_SUPER_ADMIN_PASSWORD.",
		RunE:  runSeed,
	}
	cmd.Flags().String("email", "", "Super admin email")
	cmd.Flags().String("password", "", "Super admin password")
	return cmd
}

func runSeed(cmd *cobra.Command, _ []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.close()
	if email, _ := cmd.Flags().GetString("email"); email != "" {
		rt.cfg.SuperAdmin.Email = email
	}
	if password, _ := cmd.Flags().GetString("password"); password != "" {
		rt.cfg.SuperAdmin.Password = password
	}
	if rt.cfg.SuperAdmin.Email == "" || rt.cfg.SuperAdmin.Password == "" {
		return fmt.Errorf("seed-super-admin: both email and password are required")
	}
	ctx := rt.context(cmd.Context())

	b, err := app.OpenBackends(ctx, rt.cfg, rt.log)
	if err != nil {
		return err
	}
	if err := b.Prepare(ctx); err != nil {
		_ = b.Close()
		return err
	}
	a, err := app.New(ctx, rt.cfg, b, rt.log)
	if err != nil {
		_ = b.Close()
		return err
	}
	defer a.Close()
	return a.SeedSuperAdmin(ctx)
}
