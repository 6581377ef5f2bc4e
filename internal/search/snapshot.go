package search

import (
	"fmt"
	"strings"

	"github.com/DeafMist/parcel-search/internal/models"
)

// SuggestionDelimiter separates the address from the business name in a
// suggestion's display text.
const SuggestionDelimiter = " - "

// Snapshot is an immutable view of a session for rendering. At most one of
// SuggestionsVisible and ResultsVisible is true.
type Snapshot struct {
	Version            uint64                    `json:"version"`
	State              State                     `json:"-"`
	Query              string                    `json:"query"`
	Suggestions        []models.SearchSuggestion `json:"suggestions"`
	SuggestionsVisible bool                      `json:"suggestions_visible"`
	Results            []models.Property         `json:"results"`
	HasSearched        bool                      `json:"has_searched"`
	Loading            bool                      `json:"loading"`
}

// ResultsVisible reports whether the result panel is shown.
func (s Snapshot) ResultsVisible() bool {
	return s.HasSearched
}

// Heading is the result panel title.
func (s Snapshot) Heading() string {
	if !s.HasSearched {
		return ""
	}
	if len(s.Results) == 0 {
		if s.Loading {
			return "Searching..."
		}
		return "No Results Found"
	}
	return fmt.Sprintf("Search Results (%d)", len(s.Results))
}

func deriveState(s Snapshot) State {
	switch {
	case s.Loading:
		return Searching
	case s.HasSearched:
		return ResultsVisible
	case s.SuggestionsVisible:
		return SuggestionsVisible
	case s.Query == "":
		return Idle
	default:
		return Typing
	}
}

// SuggestionAddress returns the text before the first " - ", or the whole
// display string when there is no delimiter.
func SuggestionAddress(display string) string {
	if i := strings.Index(display, SuggestionDelimiter); i >= 0 {
		return display[:i]
	}
	return display
}

// SuggestionSubtitle returns the part after the delimiter, or "Property".
func SuggestionSubtitle(display string) string {
	parts := strings.Split(display, SuggestionDelimiter)
	if len(parts) > 1 {
		return parts[1]
	}
	return "Property"
}
