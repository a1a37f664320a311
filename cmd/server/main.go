// Command jiaa-auth runs the authentication service.
//
//	jiaa-auth            same as "jiaa-auth serve"
//	jiaa-auth serve      run the HTTP server
//	jiaa-auth migrate    apply database migrations and exit
//
// Configuration comes from the environment, seeded from .env when present.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/jiaa-auth/internal/config"
	"github.com/sakif/jiaa-auth/internal/server"
	"github.com/sakif/jiaa-auth/internal/telemetry"
)

const serviceName = "jiaa-auth"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string

	serve := newServeCommand(&envFile)
	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Token issuing, session and Google sign-in service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(serve)
	cmd.AddCommand(newMigrateCommand(&envFile))
	return cmd
}

func newServeCommand(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, logger, err := setup(ctx, *envFile)
			if err != nil {
				return err
			}

			shutdownTracing, err := telemetry.InitTracing(ctx, serviceName, cfg.OTLPEndpoint)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(shutdownCtx); err != nil {
					logger.Error("shutting down tracing", slog.String("error", err.Error()))
				}
			}()

			srv, err := server.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			return srv.Start(ctx)
		},
	}
}

func newMigrateCommand(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, logger, err := setup(ctx, *envFile)
			if err != nil {
				return err
			}

			store, err := server.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			logger.Info("database schema is up to date", slog.String("driver", cfg.DBDriver))
			return nil
		},
	}
}

// setup loads config and builds the process logger. The logger is passed
// to every constructor; it is also installed as the slog default so stray
// package-level slog calls share its handler and level.
func setup(ctx context.Context, envFile string) (config.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return config.Config{}, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
