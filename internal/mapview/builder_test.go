package mapview

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

const storesGeoJSON = `{
	"type": "FeatureCollection",
	"features": [
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [-87.63, 41.88]}, "properties": {"name": "Loop"}},
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [-87.65, 41.90]}, "properties": {"name": "River North"}}
	]
}`

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func assetDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "apple.png"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stores.geojson"), []byte(storesGeoJSON), 0o644))
	return dir
}

func newTestBuilder(t *testing.T, dir string, settings Settings) *Builder {
	t.Helper()
	return NewBuilder(settings, NewAssets(dir, 0), StaticStyle{Style: baseStyle(t)}, nil)
}

func TestBuildFullSequence(t *testing.T) {
	b := newTestBuilder(t, assetDir(t), DefaultSettings())

	res, err := b.Build(context.Background(), QueryLocator("", ""))
	require.NoError(t, err)
	require.NoError(t, res.MarkerErr)
	require.False(t, res.Located)

	cam := res.Map.Camera()
	require.Equal(t, Chicago, cam.Center)
	require.Equal(t, 12.0, cam.Zoom)
	require.Equal(t, 45.0, cam.Pitch)
	require.Equal(t, -17.6, cam.Bearing)
	require.True(t, cam.Antialias)
	require.Equal(t, []Control{NavigationControl()}, res.Map.Controls())

	img, ok := res.Map.Image("apple-icon")
	require.True(t, ok)
	require.Equal(t, 4, img.Width)
	require.Equal(t, 3, img.Height)

	style := res.Map.Style()
	require.Contains(t, style.Sources, MarkerSourceID)
	ids := layerIDs(style)
	require.Equal(t, BuildingLayerID, ids[2])
	require.Equal(t, "road-label", ids[3])
	require.Contains(t, ids, MarkerLayerID)

	marker := style.Layers[style.LayerIndex(MarkerLayerID)]
	require.Equal(t, "apple-icon", marker.Layout["icon-image"])
	require.Equal(t, 0.02, marker.Layout["icon-size"])
	require.Equal(t, true, marker.Layout["icon-allow-overlap"])
}

func TestBuildUsesGrantedLocation(t *testing.T) {
	b := newTestBuilder(t, assetDir(t), DefaultSettings())

	res, err := b.Build(context.Background(), QueryLocator("40.7128", "-74.0060"))
	require.NoError(t, err)
	require.True(t, res.Located)
	require.Equal(t, Coordinate{Lon: -74.006, Lat: 40.7128}, res.Map.Camera().Center)
}

func TestBuildMarkerImageFailureKeepsBuildings(t *testing.T) {
	settings := DefaultSettings()
	settings.MarkerImage = "missing.png"
	b := newTestBuilder(t, assetDir(t), settings)

	res, err := b.Build(context.Background(), nil)
	require.NoError(t, err)
	require.Error(t, res.MarkerErr)
	require.ErrorIs(t, res.MarkerErr, os.ErrNotExist)

	style := res.Map.Style()
	require.Contains(t, layerIDs(style), BuildingLayerID)
	require.NotContains(t, layerIDs(style), MarkerLayerID)
	require.NotContains(t, style.Sources, MarkerSourceID)
}

func TestBuildDatasetFailureIsSkipped(t *testing.T) {
	dir := assetDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.geojson"), []byte(`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":"x"}}]}`), 0o644))

	for _, dataset := range []string{"absent.geojson", "bad.geojson"} {
		settings := DefaultSettings()
		settings.Dataset = dataset
		res, err := newTestBuilder(t, dir, settings).Build(context.Background(), nil)
		require.NoError(t, err)
		require.NoError(t, res.MarkerErr)

		_, ok := res.Map.Image("apple-icon")
		require.True(t, ok)
		require.NotContains(t, layerIDs(res.Map.Style()), MarkerLayerID)
		require.Contains(t, layerIDs(res.Map.Style()), BuildingLayerID)
	}
}

type failingStyle struct{}

func (failingStyle) LoadStyle(context.Context) (*Style, error) {
	return nil, errors.New("offline")
}

func TestBuildFailsWithoutBaseStyle(t *testing.T) {
	b := NewBuilder(DefaultSettings(), NewAssets(assetDir(t), 0), failingStyle{}, nil)
	_, err := b.Build(context.Background(), nil)
	require.ErrorContains(t, err, "load base style")
}

// fixDBFName moves the attribute table go-shp's writer names "<base>dbf" to
// "<base>.dbf", where its reader looks for it.
func fixDBFName(t *testing.T, dir, base string) {
	t.Helper()
	written := filepath.Join(dir, base+"dbf")
	if _, err := os.Stat(written); err != nil {
		return
	}
	require.NoError(t, os.Rename(written, filepath.Join(dir, base+".dbf")))
}

func TestLoadDatasetFromShapefile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stores.shp")

	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("NAME", 25),
		shp.FloatField("RANK", 10, 2),
	}))
	w.Write(&shp.Point{X: -87.63, Y: 41.88})
	require.NoError(t, w.WriteAttribute(0, 0, "Loop"))
	require.NoError(t, w.WriteAttribute(0, 1, 1.5))
	w.Write(&shp.Point{X: -87.65, Y: 41.9})
	require.NoError(t, w.WriteAttribute(1, 0, "River North"))
	require.NoError(t, w.WriteAttribute(1, 1, 2.0))
	w.Close()
	fixDBFName(t, dir, "stores")

	fc, err := NewAssets(dir, 0).LoadDataset(context.Background(), "stores.shp")
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	lon, lat, ok := fc.Features[0].Geometry.Point()
	require.True(t, ok)
	require.InDelta(t, -87.63, lon, 1e-9)
	require.InDelta(t, 41.88, lat, 1e-9)
	require.Equal(t, "Loop", fc.Features[0].Properties["NAME"])
	require.Equal(t, 1.5, fc.Features[0].Properties["RANK"])
	require.Equal(t, "River North", fc.Features[1].Properties["NAME"])
	require.Equal(t, 2.0, fc.Features[1].Properties["RANK"])
}

func TestLoadDatasetOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stores.geojson" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(storesGeoJSON))
	}))
	defer srv.Close()

	a := NewAssets(t.TempDir(), 0)
	fc, err := a.LoadDataset(context.Background(), srv.URL+"/stores.geojson")
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	_, err = a.LoadDataset(context.Background(), srv.URL+"/missing.geojson")
	require.ErrorContains(t, err, "unexpected status 404")
}

func TestValidateDataset(t *testing.T) {
	require.NoError(t, ValidateDataset([]byte(storesGeoJSON)))
	require.NoError(t, ValidateDataset([]byte(`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":null}]}`)))
	require.Error(t, ValidateDataset([]byte(`{"type":"Feature"}`)))
	require.Error(t, ValidateDataset([]byte(`not json`)))
	require.Error(t, ValidateDataset([]byte(`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]}}]}`)))
}

func TestAssetPathsStayInDir(t *testing.T) {
	dir := assetDir(t)
	a := NewAssets(filepath.Join(dir, "sub"), 0)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	_, err := a.LoadImage("../apple.png")
	require.Error(t, err)
}
