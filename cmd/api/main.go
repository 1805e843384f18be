package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	httpapi "photogen/internal/http"
	"photogen/internal/http/handlers"
	"photogen/internal/infra"
	"photogen/internal/service"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	components, err := service.Build(cfg, &logger, registry)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build service")
	}
	if !cfg.ProviderConfigured() {
		logger.Warn().Msg("LEONARDO_API_KEY is not set; generation requests will be refused")
	}

	app := &handlers.App{
		Config:    cfg,
		Logger:    logger,
		Store:     components.Store,
		Generator: components.Orchestrator,
		Converter: components.Converter,
		Provider:  components.Provider,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(ctx, app, registry))
	logger.Info().Str("addr", server.Addr()).Msg("API listening")
	if err := server.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("http server failed")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}
