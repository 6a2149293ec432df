package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/tenderflow/internal/models"
	"github.com/Lllllllleong/tenderflow/internal/repository"
	"github.com/Lllllllleong/tenderflow/internal/services"
)

var (
	batchInstance *services.BatchProcessorFunction
	once          sync.Once
	initErr       error
)

func init() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	// "HandleTenderBatch" is the entry point name we'll see in GCP.
	functions.HTTP("HandleTenderBatch", handleTenderBatch)
}

// main is required by the Go Functions Framework.
func main() {}

// handleTenderBatch lists candidate images on GET and runs a batch on POST.
func handleTenderBatch(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		batchInstance, initErr = services.NewBatchProcessor(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Tender batch initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	switch r.Method {
	case http.MethodGet:
		filter := repository.ImageFilter{
			SourceID:    r.URL.Query().Get("sourceId"),
			PublishDate: r.URL.Query().Get("publishDate"),
		}
		res, err := batchInstance.Candidates(r.Context(), filter)
		if err != nil {
			http.Error(w, "Internal Server Error: listing failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, res)

	case http.MethodPost:
		var req models.BatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Error("Could not decode request body", "error", err)
			http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
			return
		}
		res, err := batchInstance.Process(r.Context(), &req)
		if errors.Is(err, services.ErrInvalidRequest) {
			http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			// The specific error is already logged inside the Process method.
			http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, res)

	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
