package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/Lllllllleong/tenderflow/internal/repository"
	"golang.org/x/sync/errgroup"
)

// SweepReport lists images whose processed flag disagrees with tender references.
// It only reports; nothing is repaired.
type SweepReport struct {
	// ProcessedUnreferenced images are flagged processed but no tender lists them.
	ProcessedUnreferenced []string
	// ReferencedUnprocessed images are listed by a tender but still unprocessed.
	ReferencedUnprocessed []string
	// MissingReferenced images are listed by a tender but no longer exist.
	MissingReferenced []string
}

// Sweep compares processed flags with tender image references.
func Sweep(ctx context.Context, a repository.Auditor) (*SweepReport, error) {
	var (
		processed []string
		refs      map[string][]string
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		processed, err = a.ListProcessedImageIDs(gctx)
		return err
	})
	eg.Go(func() error {
		var err error
		refs, err = a.ListTenderImageRefs(gctx)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}

	processedSet := make(map[string]struct{}, len(processed))
	for _, id := range processed {
		processedSet[id] = struct{}{}
	}
	referenced := make(map[string]struct{})
	for _, ids := range refs {
		for _, id := range ids {
			referenced[id] = struct{}{}
		}
	}

	report := &SweepReport{}
	for _, id := range processed {
		if _, ok := referenced[id]; !ok {
			report.ProcessedUnreferenced = append(report.ProcessedUnreferenced, id)
		}
	}

	var suspects []string
	for id := range referenced {
		if _, ok := processedSet[id]; !ok {
			suspects = append(suspects, id)
		}
	}
	sort.Strings(suspects)
	if len(suspects) > 0 {
		images, err := a.LoadImages(ctx, suspects)
		if err != nil {
			return nil, fmt.Errorf("sweep: %w", err)
		}
		found := make(map[string]bool, len(images))
		for _, img := range images {
			found[img.ID] = true
			if !img.Processed {
				report.ReferencedUnprocessed = append(report.ReferencedUnprocessed, img.ID)
			}
		}
		for _, id := range suspects {
			if !found[id] {
				report.MissingReferenced = append(report.MissingReferenced, id)
			}
		}
	}
	sort.Strings(report.ProcessedUnreferenced)
	sort.Strings(report.ReferencedUnprocessed)
	return report, nil
}
