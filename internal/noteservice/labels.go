package noteservice

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/starford/notechain/internal/apperr"
	"github.com/starford/notechain/internal/store"
)

// Labels returns the label catalogue.
func (s *Service) Labels(ctx context.Context) ([]string, error) {
	labels, err := s.db.Queries().ListLabels(ctx)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(labels), nil
}

// CreateLabel adds a label to the catalogue.
func (s *Service) CreateLabel(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("label name is required: %w", apperr.ErrInvalidArgument)
	}
	return s.db.Queries().InsertLabels(ctx, name)
}

// DeleteLabel removes a label from the catalogue and from every note
// carrying it. Only label fields are written. It returns the number of notes changed.
func (s *Service) DeleteLabel(ctx context.Context, name string) (int, error) {
	return s.relabel(ctx, name, func(q *store.Queries) error {
		return q.DeleteLabel(ctx, name)
	}, func(labels []string) []string {
		return slices.DeleteFunc(labels, func(l string) bool { return l == name })
	})
}

// UpdateLabel renames a label in the catalogue and on every note carrying it.
// Renaming onto an existing label merges the two.
func (s *Service) UpdateLabel(ctx context.Context, from, to string) (int, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return 0, fmt.Errorf("new label name is required: %w", apperr.ErrInvalidArgument)
	}
	if to == from {
		return 0, nil
	}
	return s.relabel(ctx, from, func(q *store.Queries) error {
		return q.RenameLabel(ctx, from, to)
	}, func(labels []string) []string {
		out := make([]string, 0, len(labels))
		for _, l := range labels {
			if l == from {
				l = to
			}
			if !slices.Contains(out, l) {
				out = append(out, l)
			}
		}
		return out
	})
}

func (s *Service) relabel(ctx context.Context, name string, catalogue func(*store.Queries) error, patch func([]string) []string) (int, error) {
	var changed []int64
	err := s.db.InTx(ctx, func(q *store.Queries) error {
		known, err := q.ListLabels(ctx)
		if err != nil {
			return err
		}
		notes, err := q.ListByLabel(ctx, name)
		if err != nil {
			return err
		}
		if len(notes) == 0 && !slices.Contains(known, name) {
			return fmt.Errorf("label %q: %w", name, apperr.ErrNotFound)
		}
		for _, n := range notes {
			if err := q.UpdateLabels(ctx, n.ID, patch(n.Labels)); err != nil {
				return err
			}
			changed = append(changed, n.ID)
		}
		return catalogue(q)
	})
	if err != nil {
		return 0, fmt.Errorf("noteservice: relabel %q: %w", name, err)
	}
	for _, id := range changed {
		s.publish(EventUpdated, id)
	}
	return len(changed), nil
}
