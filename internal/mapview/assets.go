package mapview

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/DeafMist/parcel-search/internal/models"
)

//go:embed dataset.schema.json
var datasetSchemaJSON string

const datasetSchemaURL = "dataset.schema.json"

var (
	datasetSchemaOnce sync.Once
	datasetSchema     *jsonschema.Schema
	datasetSchemaErr  error
)

func compiledDatasetSchema() (*jsonschema.Schema, error) {
	datasetSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(datasetSchemaURL, strings.NewReader(datasetSchemaJSON)); err != nil {
			datasetSchemaErr = fmt.Errorf("add dataset schema: %w", err)
			return
		}
		datasetSchema, datasetSchemaErr = compiler.Compile(datasetSchemaURL)
	})
	return datasetSchema, datasetSchemaErr
}

// ValidateDataset checks raw GeoJSON against the point dataset schema.
func ValidateDataset(raw []byte) error {
	schema, err := compiledDatasetSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("dataset is not valid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("dataset schema validation failed: %w", err)
	}
	return nil
}

// Assets reads marker images and point datasets from a directory. Datasets
// may also be http(s) URLs.
type Assets struct {
	Dir        string
	HTTPClient *http.Client
}

// NewAssets serves files under dir.
func NewAssets(dir string, timeout time.Duration) *Assets {
	return &Assets{Dir: dir, HTTPClient: &http.Client{Timeout: timeout}}
}

func (a *Assets) path(name string) (string, error) {
	clean := filepath.Clean("/" + name)
	if clean == "/" {
		return "", fmt.Errorf("empty asset name")
	}
	return filepath.Join(a.Dir, clean), nil
}

// LoadImage decodes a PNG marker image.
func (a *Assets) LoadImage(name string) (Image, error) {
	p, err := a.path(name)
	if err != nil {
		return Image{}, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return Image{}, fmt.Errorf("read image: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("decode image %s: %w", name, err)
	}
	b := img.Bounds()
	return Image{Width: b.Dx(), Height: b.Dy(), Data: data, Img: img}, nil
}

// LoadDataset reads a point dataset as a FeatureCollection. GeoJSON input is
// validated first; .shp files are converted with their DBF attributes.
func (a *Assets) LoadDataset(ctx context.Context, name string) (*models.FeatureCollection, error) {
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
		raw, err := a.fetch(ctx, name)
		if err != nil {
			return nil, err
		}
		return decodeDataset(raw)
	}

	p, err := a.path(name)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(p), ".shp") {
		return readShapefile(p)
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return decodeDataset(raw)
}

func (a *Assets) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	client := a.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch dataset: unexpected status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return raw, nil
}

func decodeDataset(raw []byte) (*models.FeatureCollection, error) {
	if err := ValidateDataset(raw); err != nil {
		return nil, err
	}
	var fc models.FeatureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &fc, nil
}

// ErrNotPointLayer is returned for shapefiles holding other geometries.
var ErrNotPointLayer = errors.New("shapefile has no point geometry")

func readShapefile(path string) (*models.FeatureCollection, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer r.Close()

	fields := r.Fields()
	fc := &models.FeatureCollection{Type: "FeatureCollection", Features: []models.Feature{}}
	skipped := 0
	for r.Next() {
		idx, shape := r.Shape()
		pt, ok := shape.(*shp.Point)
		if !ok {
			skipped++
			continue
		}

		props := make(map[string]any, len(fields))
		for i, f := range fields {
			props[f.String()] = attributeValue(r.ReadAttribute(idx, i))
		}
		fc.Features = append(fc.Features, models.NewPointFeature(pt.X, pt.Y, props))
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read shapefile: %w", err)
	}
	if len(fc.Features) == 0 && skipped > 0 {
		return nil, ErrNotPointLayer
	}
	return fc, nil
}

// attributeValue turns numeric DBF values into numbers and keeps the rest as
// text.
func attributeValue(raw string) any {
	s := strings.TrimSpace(strings.Trim(raw, "\x00"))
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
