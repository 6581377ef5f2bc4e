package propertyapi

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/DeafMist/parcel-search/internal/models"
)

// decodePropertyList accepts either a JSON array of properties or an object
// with a "results" array. null decodes to an empty list.
func decodePropertyList(raw json.RawMessage) ([]models.Property, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []models.Property{}, nil
	}

	if raw[0] == '[' {
		var list []models.Property
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode property list: %w", err)
		}
		return list, nil
	}

	var env models.SearchEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode search envelope: %w", err)
	}
	if env.Results == nil {
		return []models.Property{}, nil
	}
	return env.Results, nil
}

type rawSuggestion struct {
	PIN     string `json:"pin"`
	Display string `json:"display"`
	Value   string `json:"value"`
	Type    string `json:"type"`
}

func (r rawSuggestion) normalize() models.SearchSuggestion {
	display := r.Display
	if display == "" {
		display = r.Value
	}
	pin := r.PIN
	if pin == "" && r.Type == "pin" {
		pin = r.Value
	}
	return models.SearchSuggestion{PIN: pin, Display: display, Type: r.Type}
}

// decodeSuggestions accepts a JSON array of {pin, display, type} or an object
// {"suggestions": [{value, type}]}.
func decodeSuggestions(raw json.RawMessage) ([]models.SearchSuggestion, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []models.SearchSuggestion{}, nil
	}

	var items []rawSuggestion
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode suggestions: %w", err)
		}
	} else {
		var env struct {
			Suggestions []rawSuggestion `json:"suggestions"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("decode suggestions envelope: %w", err)
		}
		items = env.Suggestions
	}

	out := make([]models.SearchSuggestion, 0, len(items))
	for _, item := range items {
		s := item.normalize()
		if s.Display == "" {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
