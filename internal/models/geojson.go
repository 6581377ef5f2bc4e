package models

import "encoding/json"

// FeatureCollection is a GeoJSON feature collection of point features.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a single GeoJSON feature. Geometry is nil for features the
// backend could not place.
type Feature struct {
	Type       string         `json:"type"`
	Geometry   *Geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Geometry is kept generic; only Point coordinates are interpreted.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// NewPointFeature builds a Point feature at lon/lat.
func NewPointFeature(lon, lat float64, props map[string]any) Feature {
	coords, _ := json.Marshal([]float64{lon, lat})
	if props == nil {
		props = map[string]any{}
	}
	return Feature{
		Type:       "Feature",
		Geometry:   &Geometry{Type: "Point", Coordinates: coords},
		Properties: props,
	}
}

// Point decodes Point coordinates. ok is false for other geometry types.
func (g *Geometry) Point() (lon, lat float64, ok bool) {
	if g == nil || g.Type != "Point" {
		return 0, 0, false
	}
	var pair []float64
	if err := json.Unmarshal(g.Coordinates, &pair); err != nil || len(pair) < 2 {
		return 0, 0, false
	}
	return pair[0], pair[1], true
}
