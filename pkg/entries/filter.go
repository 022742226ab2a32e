package entries

import (
	"slices"
	"strings"
)

// Criteria are the active predicates of the entry list. Empty fields don't
// filter anything.
type Criteria struct {
	Search string `query:"search" json:"search" mod:"trim"`
	Type   string `query:"type" json:"type" validate:"omitempty,oneof=movie series anime game book"`
	Genre  string `query:"genre" json:"genre"`
	Status string `query:"status" json:"status" validate:"omitempty,oneof=not_started in_progress completed paused dropped"`
}

// Filter returns the views matching every set predicate, in input order. The
// search term is a case-insensitive substring match on the title; type, genre
// and status must match exactly. The input slice isn't modified.
func Filter(views []EntryView, c Criteria) []EntryView {
	search := strings.ToLower(c.Search)

	out := make([]EntryView, 0, len(views))
	for _, v := range views {
		if search != "" && !strings.Contains(strings.ToLower(v.Title), search) {
			continue
		}
		if c.Type != "" && v.Type != c.Type {
			continue
		}
		if c.Genre != "" && !slices.Contains(v.Genres, c.Genre) {
			continue
		}
		if c.Status != "" && v.Status != c.Status {
			continue
		}
		out = append(out, v)
	}
	return out
}

// KnownGenres is the deduplicated union of the genres on the given views, in
// order of first appearance.
func KnownGenres(views []EntryView) []string {
	seen := map[string]struct{}{}
	genres := []string{}
	for _, v := range views {
		for _, g := range v.Genres {
			if _, ok := seen[g]; ok {
				continue
			}
			seen[g] = struct{}{}
			genres = append(genres, g)
		}
	}
	return genres
}
