// Package service assembles the store, provider client, orchestrator and
// converter from a Config. Both binaries share it.
package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"photogen/internal/convert"
	"photogen/internal/domain"
	"photogen/internal/infra"
	"photogen/internal/providers/leonardo"
	"photogen/internal/storage"
	"photogen/internal/workflow"
)

type Components struct {
	Store        *storage.FileStore
	Provider     *leonardo.Client
	Orchestrator *workflow.Orchestrator
	Converter    *convert.Converter
}

// Build wires the components. reg may be nil, in which case no metrics are
// recorded.
func Build(cfg *infra.Config, logger *infra.Logger, reg prometheus.Registerer) (*Components, error) {
	store, err := storage.NewFileStore(storage.Options{
		UploadDir:    cfg.UploadDir,
		GeneratedDir: cfg.GeneratedDir,
		MaxBytes:     cfg.MaxUploadBytes,
	})
	if err != nil {
		return nil, err
	}

	client := leonardo.NewClient(leonardo.Options{
		APIKey:         cfg.LeonardoAPIKey,
		BaseURL:        cfg.LeonardoBaseURL,
		Model:          cfg.LeonardoModel,
		Logger:         logger,
		RequestTimeout: cfg.ProviderTimeout,
	})

	var metrics *workflow.Metrics
	if reg != nil {
		metrics = workflow.NewMetrics("photogen", reg)
	}
	orch := workflow.New(client, store, workflow.Options{
		Poll: workflow.PollPolicy{
			Interval: cfg.PollInterval,
			Timeout:  cfg.PollTimeout,
			Tolerate: workflow.IsTransient,
		},
		CallTimeout:   cfg.ProviderTimeout,
		DefaultPrompt: cfg.DefaultPrompt,
		Defaults: domain.GenerationRequest{
			Model:    client.Model(),
			Width:    cfg.OutputWidth,
			Height:   cfg.OutputHeight,
			Strength: cfg.ReferenceStrength,
		},
		Logger:  logger,
		Metrics: metrics,
	})

	return &Components{
		Store:        store,
		Provider:     client,
		Orchestrator: orch,
		Converter:    convert.NewConverter(store),
	}, nil
}
