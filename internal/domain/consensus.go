// Package domain contains the pure domain models of the consensus service and
// the grouping engine that partitions model responses into consensus groups.
// Nothing in this package performs I/O.
package domain

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Palette is the fixed, ordered list of color tokens assigned to consensus
// groups by rank. The first entry goes to the largest group.
var Palette = [...]string{
	"#3B82F6", // blue
	"#10B981", // green
	"#8B5CF6", // purple
	"#F59E0B", // amber
	"#EF4444", // red
	"#EC4899", // pink
	"#06B6D4", // cyan
	"#F97316", // orange
	"#6366F1", // indigo
	"#14B8A6", // teal
	"#84CC16", // lime
	"#7C3AED", // violet
	"#D946EF", // fuchsia
	"#0EA5E9", // sky
	"#F43F5E", // rose
}

// ModelResponse is a single model's answer to a prompt, identified by the
// source that produced it.
type ModelResponse struct {
	// SourceID identifies the producing model within one submission.
	SourceID string `json:"source"`
	// Text is the raw response text.
	Text string `json:"text"`
}

// ConsensusGroup is a set of responses whose normalized text is identical.
// Groups are derived values: they are rebuilt for every batch and never
// mutated after AnalyzeConsensus returns them.
type ConsensusGroup struct {
	// Key is the normalized text shared by every member.
	Key string `json:"group_name"`
	// Members lists SourceIDs in input order.
	Members []string `json:"models"`
	// Count equals len(Members).
	Count int `json:"count"`
	// Percentage is 100 * Count / total responses in the batch.
	Percentage float64 `json:"percentage"`
	// Color is the palette token assigned by rank.
	Color string `json:"color"`
}

// Normalize reduces a response to its equivalence key: it lowercases the
// text, removes every rune that is neither a word character (letter, digit,
// mark or underscore) nor whitespace, collapses whitespace runs to a single
// space and trims both ends. Text that normalizes to nothing yields the empty
// key, which is a valid key.
func Normalize(text string) string {
	// A Caser carries state and must not be shared across goroutines.
	lowered := cases.Lower(language.Und).String(text)

	var b strings.Builder
	b.Grow(len(lowered))

	pendingSpace := false
	for _, r := range lowered {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case isWordRune(r):
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}

	return b.String()
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// AnalyzeConsensus partitions responses into consensus groups.
//
// Groups are ordered by member count, largest first. Groups with equal
// counts keep the order in which their key first appeared in responses.
// Colors are assigned after ordering, so a group's color depends on its rank
// and not on its text. An empty input yields an empty, non-nil slice.
//
// AnalyzeConsensus never fails and has no side effects. Callers that must
// exclude failed completions filter them out before calling.
func AnalyzeConsensus(responses []ModelResponse) []ConsensusGroup {
	total := len(responses)
	if total == 0 {
		return []ConsensusGroup{}
	}

	// groups keeps first-seen order; index maps a key to its slot.
	groups := make([]ConsensusGroup, 0, total)
	index := make(map[string]int, total)

	for _, resp := range responses {
		key := Normalize(resp.Text)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, ConsensusGroup{Key: key})
		}
		groups[i].Members = append(groups[i].Members, resp.SourceID)
	}

	for i := range groups {
		groups[i].Count = len(groups[i].Members)
		groups[i].Percentage = 100 * float64(groups[i].Count) / float64(total)
	}

	slices.SortStableFunc(groups, func(a, b ConsensusGroup) int {
		return cmp.Compare(b.Count, a.Count)
	})

	colors := AssignColors(len(groups))
	for i := range groups {
		groups[i].Color = colors[i]
	}

	return groups
}

// AssignColors returns n palette tokens in rank order. When n exceeds the
// palette length the palette repeats.
func AssignColors(n int) []string {
	if n <= 0 {
		return []string{}
	}

	colors := make([]string, n)
	for i := range colors {
		colors[i] = Palette[i%len(Palette)]
	}
	return colors
}
