package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/tenderflow/internal/models"
	"github.com/Lllllllleong/tenderflow/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	registrarInstance *services.ImageRegistrarFunction
	once              sync.Once
	initErr           error
)

func init() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	// Triggered by google.cloud.storage.object.v1.finalized on the scans bucket.
	functions.CloudEvent("RegisterScannedImage", registerScannedImage)
}

// main is required by the Go Functions Framework.
func main() {}

func registerScannedImage(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		registrarInstance, initErr = services.NewImageRegistrar(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "eventId", e.ID(), "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Returning an error marks the invocation failed so the event is retried.
	return registrarInstance.Process(ctx, gcsEvent)
}
