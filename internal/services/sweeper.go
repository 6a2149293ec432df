package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/tenderflow/internal/models"
	"github.com/Lllllllleong/tenderflow/internal/pipeline"
	"github.com/Lllllllleong/tenderflow/internal/repository"
)

// SweeperFunction reports processed-flag inconsistencies left by interrupted jobs.
type SweeperFunction struct {
	store repository.Store
}

func NewSweeper(ctx context.Context) (*SweeperFunction, error) {
	config, err := loadStoreConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	store, err := openStore(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	slog.Info("Consistency sweep logic initialized.", "repository", config.Kind)
	return &SweeperFunction{store: store}, nil
}

func (f *SweeperFunction) Process(ctx context.Context) (*models.SweepResponse, error) {
	report, err := pipeline.Sweep(ctx, f.store)
	if err != nil {
		slog.Error("Consistency sweep failed", "error", err)
		return nil, err
	}
	resp := &models.SweepResponse{
		ProcessedUnreferenced: nonNil(report.ProcessedUnreferenced),
		ReferencedUnprocessed: nonNil(report.ReferencedUnprocessed),
		MissingReferenced:     nonNil(report.MissingReferenced),
	}
	slog.Info("Consistency sweep complete.",
		"processedUnreferenced", len(resp.ProcessedUnreferenced),
		"referencedUnprocessed", len(resp.ReferencedUnprocessed),
		"missingReferenced", len(resp.MissingReferenced))
	return resp, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
