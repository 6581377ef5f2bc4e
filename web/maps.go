package main

import (
	"context"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/DeafMist/parcel-search/internal/config"
	"github.com/DeafMist/parcel-search/internal/mapview"
)

type mapImage struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type mapConfig struct {
	AccessToken string            `json:"access_token"`
	StyleURL    string            `json:"style_url"`
	Camera      mapview.Camera    `json:"camera"`
	Located     bool              `json:"located"`
	Controls    []mapview.Control `json:"controls"`
	Images      []mapImage        `json:"images"`
	MarkerError string            `json:"marker_error,omitempty"`
}

func (s *server) handleMapPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "map.html", nil)
}

// handleMapConfig runs the construction sequence centered on the position
// the browser reported, if any.
func (s *server) handleMapConfig(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.buildMap(r.Context(), mapview.QueryLocator(q.Get("lat"), q.Get("lon")))
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	names := res.Map.ImageNames()
	sort.Strings(names)
	images := make([]mapImage, 0, len(names))
	for _, name := range names {
		images = append(images, mapImage{Name: name, URL: "/map/images/" + name + ".png"})
	}

	cfg := mapConfig{
		AccessToken: s.cfg.Map.AccessToken,
		StyleURL:    "/map/style.json",
		Camera:      res.Map.Camera(),
		Located:     res.Located,
		Controls:    res.Map.Controls(),
		Images:      images,
	}
	if res.MarkerErr != nil {
		cfg.MarkerError = res.MarkerErr.Error()
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *server) handleMapStyle(w http.ResponseWriter, r *http.Request) {
	res, err := s.currentMap(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res.Map.Style())
}

func (s *server) handleMapImage(w http.ResponseWriter, r *http.Request) {
	res, err := s.currentMap(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	img, ok := res.Map.Image(chi.URLParam(r, "name"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(img.Data)
}

func (s *server) buildMap(ctx context.Context, loc mapview.Locator) (*mapview.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Map.StyleTimeout)
	defer cancel()

	res, err := s.maps.Build(ctx, loc)
	if err != nil {
		s.log.Error("build map", slog.Any("err", err))
		return nil, err
	}
	s.mu.Lock()
	s.lastMap = res
	s.mu.Unlock()
	return res, nil
}

// currentMap returns the latest built map, building one at the fallback
// center when none exists yet.
func (s *server) currentMap(ctx context.Context) (*mapview.Result, error) {
	s.mu.Lock()
	res := s.lastMap
	s.mu.Unlock()
	if res != nil {
		return res, nil
	}
	return s.buildMap(ctx, nil)
}

func newMapBuilder(m config.Map, log *slog.Logger) *mapview.Builder {
	settings := mapview.DefaultSettings()
	settings.Fallback = mapview.Coordinate{Lon: m.FallbackLon, Lat: m.FallbackLat}
	settings.MarkerImage = m.MarkerImage
	settings.MarkerName = m.MarkerName
	settings.IconSize = m.IconSize
	settings.Dataset = m.Dataset

	httpClient := &http.Client{Timeout: m.StyleTimeout}
	assets := &mapview.Assets{Dir: m.StaticDir, HTTPClient: httpClient}
	style := mapview.NewRemoteStyle(m.StyleURL, m.AccessToken, httpClient)
	return mapview.NewBuilder(settings, assets, style, log)
}
