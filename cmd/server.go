/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/driveclone/apiserver/config"
	"github.com/driveclone/apiserver/internal/db"
	"github.com/driveclone/apiserver/internal/logging"
	"github.com/driveclone/apiserver/internal/server"
)

const shutdownTimeout = 15 * time.Second

var migrateOnStart bool

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the drive API server",
	Long: `Starts the drive API server. Usage:

	drive server [--migrate]
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg)

		if err := cfg.Validate(); err != nil {
			logger.Error().Err(err).Msg("invalid configuration")
			return fmt.Errorf("invalid configuration: %w", err)
		}

		if migrateOnStart && cfg.Store.Driver == "postgres" {
			if err := db.MigrateUp(db.DSN(cfg), cfg.Database.MigrationsDir); err != nil {
				return err
			}
			logger.Info().Msg("migrations applied")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := server.New(ctx, cfg, logger)
		if err != nil {
			logger.Error().Err(err).Msg("failed to start server")
			return err
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			if err != nil {
				logger.Error().Err(err).Msg("server error")
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			return err
		case <-ctx.Done():
		}

		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		logger.Info().Msg("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply database migrations before serving")
}
