package mapview

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Settings are the fixed parts of the map.
type Settings struct {
	Fallback    Coordinate
	Zoom        float64
	Pitch       float64
	Bearing     float64
	MarkerImage string
	MarkerName  string
	IconSize    float64
	Dataset     string
}

// DefaultSettings centers on Chicago with a tilted, rotated camera.
func DefaultSettings() Settings {
	return Settings{
		Fallback:    Chicago,
		Zoom:        12,
		Pitch:       45,
		Bearing:     -17.6,
		MarkerImage: "apple.png",
		MarkerName:  "apple-icon",
		IconSize:    0.02,
		Dataset:     "stores.geojson",
	}
}

// Builder runs the map construction sequence.
type Builder struct {
	settings Settings
	assets   *Assets
	style    StyleSource
	log      *slog.Logger
}

func NewBuilder(settings Settings, assets *Assets, style StyleSource, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Builder{settings: settings, assets: assets, style: style, log: log}
}

// Result is a constructed map. MarkerErr is set when the marker branch
// failed; the rest of the map is still usable.
type Result struct {
	Map       *StyleMap
	MarkerErr error
	Located   bool
}

// Build creates the map centered on the located position, attaches the
// navigation control, then concurrently sets up the marker icon and dataset
// and loads the base style. The building layer is added when the style loads.
// Only a base style failure is returned as an error.
func (b *Builder) Build(ctx context.Context, loc Locator) (*Result, error) {
	start := time.Now()

	center, err := ResolveCenter(ctx, loc, b.settings.Fallback)
	located := err == nil
	if err != nil {
		b.log.Debug("using fallback center", slog.Any("err", err))
	}

	m := NewStyleMap(Camera{
		Center:    center,
		Zoom:      b.settings.Zoom,
		Pitch:     b.settings.Pitch,
		Bearing:   b.settings.Bearing,
		Antialias: true,
	})
	m.AddControl(NavigationControl())

	m.OnStyleLoad(func() {
		before, err := AddBuildingLayer(m)
		if err != nil {
			b.log.Error("add building layer failed", slog.Any("err", err))
			return
		}
		b.log.Debug("building layer added", slog.String("before", before))
	})

	var (
		g       errgroup.Group
		markErr error
	)
	// The marker branch never fails the build.
	g.Go(func() error {
		markErr = b.addMarkers(ctx, m)
		return nil
	})
	g.Go(func() error {
		base, err := b.style.LoadStyle(ctx)
		if err != nil {
			return err
		}
		return m.LoadStyle(base)
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load base style: %w", err)
	}
	if markErr != nil {
		b.log.Error("marker setup failed", slog.Any("err", markErr))
	}

	b.log.Debug("map built",
		slog.Duration("took", time.Since(start)),
		slog.Bool("located", located),
	)
	return &Result{Map: m, MarkerErr: markErr, Located: located}, nil
}

// addMarkers registers the marker icon and, when the dataset loads, the
// marker source and layer. A dataset failure is logged and skipped.
func (b *Builder) addMarkers(ctx context.Context, m Map) error {
	img, err := b.assets.LoadImage(b.settings.MarkerImage)
	if err != nil {
		return fmt.Errorf("load marker image %s: %w", b.settings.MarkerImage, err)
	}
	if err := m.AddImage(b.settings.MarkerName, img); err != nil {
		return err
	}

	fc, err := b.assets.LoadDataset(ctx, b.settings.Dataset)
	if err != nil {
		b.log.Warn("error loading the dataset", slog.String("dataset", b.settings.Dataset), slog.Any("err", err))
		return nil
	}
	if err := m.AddSource(MarkerSourceID, NewGeoJSONSource(fc)); err != nil {
		return err
	}
	return m.AddLayer(MarkerLayer(b.settings.MarkerName, b.settings.IconSize), "")
}
