package mapview

import (
	"encoding/json"
	"fmt"
)

// Style is a map style document. Keys the builder does not touch are kept in
// Extra and written back unchanged.
type Style struct {
	Version int                        `json:"version"`
	Name    string                     `json:"name,omitempty"`
	Sources map[string]json.RawMessage `json:"sources"`
	Layers  []Layer                    `json:"layers"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Layer is one style layer.
type Layer struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Source      string         `json:"source,omitempty"`
	SourceLayer string         `json:"source-layer,omitempty"`
	Filter      any            `json:"filter,omitempty"`
	MinZoom     *float64       `json:"minzoom,omitempty"`
	MaxZoom     *float64       `json:"maxzoom,omitempty"`
	Layout      map[string]any `json:"layout,omitempty"`
	Paint       map[string]any `json:"paint,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// IsLabel reports whether the layer is a symbol layer that draws text.
func (l Layer) IsLabel() bool {
	if l.Type != "symbol" || l.Layout == nil {
		return false
	}
	v, ok := l.Layout["text-field"]
	return ok && v != nil && v != ""
}

type styleFields Style

func (s *Style) UnmarshalJSON(data []byte) error {
	var f styleFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	extra, err := extraKeys(data, "version", "name", "sources", "layers")
	if err != nil {
		return err
	}
	*s = Style(f)
	s.Extra = extra
	return nil
}

func (s Style) MarshalJSON() ([]byte, error) {
	return withExtra(styleFields(s), s.Extra)
}

type layerFields Layer

func (l *Layer) UnmarshalJSON(data []byte) error {
	var f layerFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	extra, err := extraKeys(data, "id", "type", "source", "source-layer", "filter", "minzoom", "maxzoom", "layout", "paint")
	if err != nil {
		return err
	}
	*l = Layer(f)
	l.Extra = extra
	return nil
}

func (l Layer) MarshalJSON() ([]byte, error) {
	return withExtra(layerFields(l), l.Extra)
}

func extraKeys(data []byte, known ...string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func withExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return b, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := merged[k]; !ok {
			merged[k] = raw
		}
	}
	return json.Marshal(merged)
}

// Clone returns a deep copy of s.
func (s *Style) Clone() (*Style, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal style: %w", err)
	}
	var out Style
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("unmarshal style: %w", err)
	}
	return &out, nil
}

// LayerIndex returns the position of the layer with id, or -1.
func (s *Style) LayerIndex(id string) int {
	for i, l := range s.Layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// FirstLabelLayerID returns the id of the first symbol layer with a text
// label, scanning in draw order. It is empty when there is none.
func FirstLabelLayerID(layers []Layer) string {
	for _, l := range layers {
		if l.IsLabel() {
			return l.ID
		}
	}
	return ""
}
