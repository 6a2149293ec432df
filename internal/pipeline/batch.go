package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/tenderflow/internal/grouping"
	"github.com/Lllllllleong/tenderflow/internal/models"
)

// GroupProcessor runs one group to completion.
type GroupProcessor interface {
	Process(ctx context.Context, g grouping.Group) Outcome
}

// BatchResult accumulates per-group outcomes. Group indexes are 1-based.
type BatchResult struct {
	BatchID   string
	Processed int
	Created   int
	Failed    int
	Messages  []models.GroupMessage
	TenderIDs []string
	Cancelled bool
	Summary   string
}

// Response converts the result to its JSON payload.
func (r *BatchResult) Response() *models.BatchResponse {
	msgs := r.Messages
	if msgs == nil {
		msgs = []models.GroupMessage{}
	}
	ids := r.TenderIDs
	if ids == nil {
		ids = []string{}
	}
	return &models.BatchResponse{
		BatchID:   r.BatchID,
		Processed: r.Processed,
		Created:   r.Created,
		Failed:    r.Failed,
		Messages:  msgs,
		TenderIDs: ids,
		Cancelled: r.Cancelled,
		Summary:   r.Summary,
	}
}

func (r *BatchResult) add(index int, msg string) {
	r.Messages = append(r.Messages, models.GroupMessage{GroupIndex: index, Message: msg})
}

// Coordinator runs groups one after another and never aborts on a failed group.
type Coordinator struct {
	processor GroupProcessor
	logger    *slog.Logger
}

func NewCoordinator(p GroupProcessor, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{processor: p, logger: logger}
}

// Run processes groups in order. Cancelling ctx stops the batch before the next group;
// a group already running finishes.
func (c *Coordinator) Run(ctx context.Context, batchID string, groups []grouping.Group) *BatchResult {
	logCtx := c.logger.With("batchId", batchID)
	result := &BatchResult{BatchID: batchID}
	total := len(groups)
	logCtx.Info("Starting tender batch.", "groupCount", total)

	for i, g := range groups {
		if err := ctx.Err(); err != nil {
			result.Cancelled = true
			logCtx.Warn("Batch cancelled, remaining groups not started.", "remaining", total-i, "error", err)
			break
		}
		index := i + 1
		out := c.runGroup(ctx, logCtx.With("groupIndex", index), g)
		result.Processed++

		switch out.State {
		case StateDone:
			result.Created++
			result.TenderIDs = append(result.TenderIDs, out.TenderID)
			msg := "Created tender: " + out.Title
			if n := len(out.Unmarked); n > 0 {
				msg += fmt.Sprintf(" (%d image(s) could not be marked processed)", n)
			}
			result.add(index, msg)
		default:
			result.Failed++
			result.add(index, failureMessage(g, out.Err))
		}
		logCtx.Info(fmt.Sprintf("Processed %d out of %d groups.", index, total))
	}

	result.Summary = fmt.Sprintf("Successfully created %d tender(s). Failed: %d", result.Created, result.Failed)
	logCtx.Info(result.Summary, "processed", result.Processed, "created", result.Created, "failed", result.Failed, "cancelled", result.Cancelled)
	return result
}

// runGroup converts a panicking job into a failed outcome so later groups still run.
func (c *Coordinator) runGroup(ctx context.Context, logCtx *slog.Logger, g grouping.Group) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logCtx.Error("Group processing panicked.", "panic", r)
			out = Outcome{State: StateFailed, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return c.processor.Process(ctx, g)
}

func failureMessage(g grouping.Group, err error) string {
	switch {
	case err == nil:
		return fmt.Sprintf("Failed to create tender from %d image(s)", len(g.ImageIDs))
	case errors.Is(err, ErrGroupEmpty):
		return "No images found for IDs: " + strings.Join(g.ImageIDs, ", ")
	}
	return fmt.Sprintf("Failed to create tender from %d image(s): %v", len(g.ImageIDs), err)
}
