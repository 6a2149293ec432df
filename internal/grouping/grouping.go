// Package grouping turns an operator's image arrangement into ordered image groups.
package grouping

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrEmptyImageID   = errors.New("arrangement entry has an empty image id")
	ErrSelfParent     = errors.New("image cannot be its own parent")
	ErrDuplicateImage = errors.New("image appears more than once in the arrangement")
)

// Entry is one image in an arrangement. ParentID is empty for top-level images.
type Entry struct {
	ImageID  string
	ParentID string
	Weight   int
	Selected bool
}

// Group is an ordered list of image ids. The anchor is always first.
type Group struct {
	ImageIDs []string
}

// Anchor returns the id of the group's anchor image.
func (g Group) Anchor() string {
	if len(g.ImageIDs) == 0 {
		return ""
	}
	return g.ImageIDs[0]
}

// Validate rejects arrangements that Build would silently misinterpret.
func Validate(entries []Entry) error {
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.ImageID == "" {
			return fmt.Errorf("entry %d: %w", i, ErrEmptyImageID)
		}
		if e.ParentID == e.ImageID {
			return fmt.Errorf("image %s: %w", e.ImageID, ErrSelfParent)
		}
		if _, ok := seen[e.ImageID]; ok {
			return fmt.Errorf("image %s: %w", e.ImageID, ErrDuplicateImage)
		}
		seen[e.ImageID] = struct{}{}
	}
	return nil
}

// Build returns one group per selected top-level image, in arrangement order. Children
// follow their anchor ordered by weight; equal weights keep input order. An entry with a
// parent is always a child, even when selected, so no image lands in two groups.
// Children whose parent is not a selected anchor are dropped. Build does not detect cycles.
func Build(entries []Entry) []Group {
	ordered := make([]Entry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Weight < ordered[j].Weight
	})

	children := make(map[string][]string)
	for _, e := range ordered {
		if e.ParentID != "" {
			children[e.ParentID] = append(children[e.ParentID], e.ImageID)
		}
	}

	var groups []Group
	for _, e := range ordered {
		if !e.Selected || e.ParentID != "" {
			continue
		}
		ids := append([]string{e.ImageID}, children[e.ImageID]...)
		groups = append(groups, Group{ImageIDs: ids})
	}
	return groups
}
