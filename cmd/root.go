// Package cmd is the oxiforms command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/parisxmas/OxiDB/OxiForms/internal/config"
	"github.com/parisxmas/OxiDB/OxiForms/internal/gelf"
	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
)

const serviceName = "oxiforms"

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "OxiForms - dynamic forms with approval-gated admins",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	root.PersistentFlags().String("env-file", ".env", "Path to a dotenv file loaded before the environment")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (overrides OXIFORMS_LOG_LEVEL)")
	root.PersistentFlags().Bool("log-json", false, "Emit JSON log records")

	root.AddCommand(
		ServeCmd(),
		MigrateCmd(),
		SeedSuperAdminCmd(),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := RootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// runtime is what every subcommand needs before doing its work.
type runtime struct {
	cfg   *config.Config
	log   logger.Logger
	close func()
}

func setup(cmd *cobra.Command) (*runtime, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Log.JSON, _ = cmd.Flags().GetBool("log-json")
	}

	rt := &runtime{cfg: cfg, close: func() {}}
	var out io.Writer = os.Stderr
	var sink *gelf.Writer
	if cfg.Log.GelfAddr != "" {
		if sink, err = gelf.New(cfg.Log.GelfAddr, serviceName); err != nil {
			fmt.Fprintf(os.Stderr, "warning: GELF init failed: %v\n", err)
		} else {
			out = io.MultiWriter(os.Stderr, sink)
			rt.close = func() { _ = sink.Close() }
		}
	}
	rt.log = logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		Output:     out,
		JSON:       cfg.Log.JSON,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	logger.SetDefault(rt.log)
	if sink != nil {
		rt.log.Info("GELF logging enabled", "addr", cfg.Log.GelfAddr)
	}
	return rt, nil
}

func (rt *runtime) context(parent context.Context) context.Context {
	return logger.ContextWithLogger(parent, rt.log)
}
