package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"photogen/internal/infra"
	"photogen/internal/service"
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "photogen",
	Short:         "Turn a photo into a provider-generated image from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger := infra.NewLogger(os.Getenv("APP_ENV"))
		logger.Error().Err(err).Msg("command failed")
		stop()
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the shared components for a
// command run. CLI runs record no metrics.
func bootstrap() (*infra.Config, *infra.Logger, *service.Components, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := infra.NewLoggerTo(os.Stderr, cfg.AppEnv)
	components, err := service.Build(cfg, &logger, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, &logger, components, nil
}
