package application

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/ahrav/go-consensus/internal/domain"
)

// maxSuggestions caps the "did you mean" list.
const maxSuggestions = 3

// UnknownModelError reports a model reference that matches no registered ID
// or slug, with the closest registered slugs.
type UnknownModelError struct {
	Ref         string
	Suggestions []string
}

// Error implements the error interface for UnknownModelError.
func (e *UnknownModelError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("unknown model %q", e.Ref)
	}
	return fmt.Sprintf("unknown model %q (did you mean %s?)", e.Ref, strings.Join(e.Suggestions, ", "))
}

// Unwrap returns domain.ErrModelNotFound.
func (e *UnknownModelError) Unwrap() error { return domain.ErrModelNotFound }

// Resolve maps each reference, either a registry ID or a slug, to its
// registered model in the order given. The first unknown reference yields an
// *UnknownModelError.
func (c *CatalogService) Resolve(ctx context.Context, refs []string) ([]domain.Model, error) {
	models, err := c.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list registry: %w", err)
	}

	byRef := make(map[string]domain.Model, 2*len(models))
	slugs := make([]string, 0, len(models))
	for _, m := range models {
		byRef[m.ID] = m
		byRef[m.Slug] = m
		slugs = append(slugs, m.Slug)
	}

	out := make([]domain.Model, 0, len(refs))
	for _, ref := range refs {
		m, ok := byRef[strings.TrimSpace(ref)]
		if !ok {
			return nil, &UnknownModelError{Ref: ref, Suggestions: SuggestSlugs(ref, slugs, maxSuggestions)}
		}
		out = append(out, m)
	}
	return out, nil
}

// SuggestSlugs returns up to n candidates closest to ref by Levenshtein
// distance, nearest first and ties broken alphabetically. Candidates further
// than half of ref's length away are not suggested.
func SuggestSlugs(ref string, candidates []string, n int) []string {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" || n <= 0 {
		return nil
	}
	limit := max(2, len(ref)/2)

	type scored struct {
		slug     string
		distance int
	}
	var matches []scored
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(ref, strings.ToLower(c))
		if d <= limit {
			matches = append(matches, scored{slug: c, distance: d})
		}
	}

	slices.SortFunc(matches, func(a, b scored) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		return strings.Compare(a.slug, b.slug)
	})

	out := make([]string, 0, min(n, len(matches)))
	for i := 0; i < len(matches) && i < n; i++ {
		out = append(out, matches[i].slug)
	}
	return out
}
