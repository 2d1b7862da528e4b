// Command notekeeper runs the notes API and its database migrations.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/notekeeper/internal/app"
	"github.com/and161185/notekeeper/internal/config"
	"github.com/and161185/notekeeper/internal/logger"
	"github.com/and161185/notekeeper/internal/migrate"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:           "notekeeper",
		Short:         "Multi-tenant notes API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to a YAML config file (env NOTEKEEPER_* overrides)")
	root.AddCommand(newServeCmd(&cfgFile), newMigrateCmd(&cfgFile))
	return root
}

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Apply migrations and start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}
			log, err := logger.New(logger.Config{Level: cfg.Log.Level, DevMode: cfg.Log.DevMode})
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			log.Info("starting", zap.String("version", version), zap.String("buildDate", buildDate))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app.Version = version
			return app.Run(ctx, cfg, log)
		},
	}
}

func newMigrateCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Manage the database schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(migrate.Up), string(migrate.Down), string(migrate.Status)},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := migrate.Up
			if len(args) == 1 {
				dir = migrate.Direction(args[0])
			}
			cfg, err := config.Read(*cfgFile)
			if err != nil {
				return err
			}
			if err := cfg.Postgres.Validate(); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			log, err := logger.New(logger.Config{Level: cfg.Log.Level, DevMode: cfg.Log.DevMode})
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return migrate.Run(ctx, cfg.Postgres.DSN, dir, log)
		},
	}
}
