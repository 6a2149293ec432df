package services

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/tenderflow/internal/gcp"
	"github.com/Lllllllleong/tenderflow/internal/repository"
)

// StoreConfig selects and configures the content repository.
type StoreConfig struct {
	Kind              string
	ProjectID         string
	FirestoreDatabase string
	DatabaseURL       string
	ImagesCollection  string
	TendersCollection string
}

func loadStoreConfig() (StoreConfig, error) {
	cfg := StoreConfig{
		Kind:              gcp.GetEnv("REPOSITORY", "firestore"),
		ProjectID:         gcp.GetEnv("PROJECT_ID", ""),
		FirestoreDatabase: gcp.GetEnv("FIRESTORE_DATABASE", ""),
		DatabaseURL:       gcp.GetEnv("DATABASE_URL", ""),
		ImagesCollection:  gcp.GetEnv("IMAGES_COLLECTION", "images"),
		TendersCollection: gcp.GetEnv("TENDERS_COLLECTION", "tenders"),
	}
	switch cfg.Kind {
	case "firestore":
		if cfg.ProjectID == "" {
			return cfg, fmt.Errorf("PROJECT_ID environment variable must be set for the firestore repository")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("DATABASE_URL environment variable must be set for the postgres repository")
		}
	case "memory":
	default:
		return cfg, fmt.Errorf("unknown REPOSITORY %q (want firestore, postgres or memory)", cfg.Kind)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg StoreConfig) (repository.Store, error) {
	switch cfg.Kind {
	case "firestore":
		client, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID, cfg.FirestoreDatabase)
		if err != nil {
			return nil, err
		}
		return repository.NewFirestore(client, cfg.ImagesCollection, cfg.TendersCollection), nil
	case "postgres":
		pg, err := repository.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	case "memory":
		return repository.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown repository kind %q", cfg.Kind)
}
