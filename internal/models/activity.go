package models

import "time"

// ActivityKind names a user interaction in the search front.
type ActivityKind string

const (
	ActivitySearch           ActivityKind = "search"
	ActivitySuggestionSelect ActivityKind = "suggestion_selected"
	ActivityPropertySelect   ActivityKind = "property_selected"
	ActivityClear            ActivityKind = "search_cleared"
)

// ActivityEvent is the canonical structure stored in Elasticsearch.
type ActivityEvent struct {
	ID          string       `json:"id"`
	Kind        ActivityKind `json:"kind"`
	SessionID   string       `json:"session_id"`
	Query       string       `json:"query,omitempty"`
	QueryType   SearchType   `json:"query_type,omitempty"`
	PIN         string       `json:"pin,omitempty"`
	ResultCount int          `json:"result_count"`
	Geohash     string       `json:"geohash,omitempty"`
	Keywords    []string     `json:"keywords,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}
