package mapview

import "github.com/DeafMist/parcel-search/internal/models"

const (
	BuildingLayerID = "3d-buildings"
	MarkerSourceID  = "stores"
	MarkerLayerID   = "store-markers"
)

// BuildingLayer extrudes buildings flagged extrude=true from zoom 15, growing
// from flat to full height between zoom 15 and 15.05.
func BuildingLayer() Layer {
	minZoom := 15.0
	return Layer{
		ID:          BuildingLayerID,
		Type:        "fill-extrusion",
		Source:      "composite",
		SourceLayer: "building",
		Filter:      []any{"==", "extrude", "true"},
		MinZoom:     &minZoom,
		Paint: map[string]any{
			"fill-extrusion-color":   "#aaa",
			"fill-extrusion-height":  zoomRamp("height"),
			"fill-extrusion-base":    zoomRamp("min_height"),
			"fill-extrusion-opacity": 0.6,
		},
	}
}

func zoomRamp(property string) []any {
	return []any{
		"interpolate", []any{"linear"}, []any{"zoom"},
		15.0, 0.0,
		15.05, []any{"get", property},
	}
}

// AddBuildingLayer inserts the extrusion layer under the first label layer of
// the loaded style. It returns the id it was inserted before, empty when the
// layer went on top.
func AddBuildingLayer(m Map) (string, error) {
	var labelID string
	if style := m.Style(); style != nil {
		labelID = FirstLabelLayerID(style.Layers)
	}
	return labelID, m.AddLayer(BuildingLayer(), labelID)
}

// MarkerLayer draws every point of the marker source with the named icon.
func MarkerLayer(icon string, size float64) Layer {
	return Layer{
		ID:     MarkerLayerID,
		Type:   "symbol",
		Source: MarkerSourceID,
		Layout: map[string]any{
			"icon-image":         icon,
			"icon-size":          size,
			"icon-allow-overlap": true,
		},
	}
}

// GeoJSONSource wraps inline data as a style source.
type GeoJSONSource struct {
	Type string                    `json:"type"`
	Data *models.FeatureCollection `json:"data"`
}

func NewGeoJSONSource(fc *models.FeatureCollection) GeoJSONSource {
	return GeoJSONSource{Type: "geojson", Data: fc}
}
