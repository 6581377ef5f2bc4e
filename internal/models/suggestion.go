package models

// SearchType narrows which fields the backend search matches against.
type SearchType string

const (
	SearchAll      SearchType = "all"
	SearchPIN      SearchType = "pin"
	SearchAddress  SearchType = "address"
	SearchBusiness SearchType = "business"
)

// SearchSuggestion is a lightweight autocomplete candidate. Display may be a
// composite "address - business" string.
type SearchSuggestion struct {
	PIN     string `json:"pin,omitempty"`
	Display string `json:"display"`
	Type    string `json:"type,omitempty"`
}

// SearchEnvelope is the enveloped form of a search response.
type SearchEnvelope struct {
	Count      int        `json:"count"`
	Results    []Property `json:"results"`
	Query      string     `json:"query"`
	SearchType string     `json:"search_type"`
}
