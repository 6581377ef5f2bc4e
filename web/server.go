package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/DeafMist/parcel-search/internal/activity"
	"github.com/DeafMist/parcel-search/internal/config"
	"github.com/DeafMist/parcel-search/internal/details"
	"github.com/DeafMist/parcel-search/internal/elasticsearch"
	"github.com/DeafMist/parcel-search/internal/mapview"
	"github.com/DeafMist/parcel-search/internal/models"
	"github.com/DeafMist/parcel-search/internal/propertyapi"
	"github.com/DeafMist/parcel-search/internal/search"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type propertyAPI interface {
	search.Backend
	details.Source
	NearbyProperties(ctx context.Context, lat, lon, radiusKm float64, limit int) (*models.NearbyResult, error)
	PropertiesGeoJSON(ctx context.Context, p propertyapi.GeoJSONParams) (*models.FeatureCollection, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

type activityStore interface {
	RecentEvents(ctx context.Context, params elasticsearch.RecentParams) (*elasticsearch.RecentResult, error)
	TopQueries(ctx context.Context, since time.Time, size int) ([]elasticsearch.QueryCount, error)
	Health(ctx context.Context) error
}

type mapBuilder interface {
	Build(ctx context.Context, loc mapview.Locator) (*mapview.Result, error)
}

type server struct {
	log      *slog.Logger
	cfg      *config.Web
	api      propertyAPI
	recorder *activity.Recorder
	store    activityStore
	maps     mapBuilder
	upgrader websocket.Upgrader

	mu      sync.Mutex
	lastMap *mapview.Result
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleSearchPage)
	r.Get("/ws/search", s.handleSearchWS)
	r.Get("/properties/{pin}", s.handleDetailsPage)

	r.Route("/map", func(r chi.Router) {
		r.Get("/", s.handleMapPage)
		r.Get("/config.json", s.handleMapConfig)
		r.Get("/style.json", s.handleMapStyle)
		r.Get("/images/{name}.png", s.handleMapImage)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Get("/properties/nearby", s.handleNearby)
		r.Get("/properties/geojson", s.handleGeoJSON)
		r.Get("/properties/stats", s.handleStats)
		r.Get("/activity/recent", s.handleRecentActivity)
		r.Get("/activity/top", s.handleTopQueries)
	})

	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok", "activity": "disabled"}
	if s.store != nil {
		status["activity"] = "ok"
		if err := s.store.Health(ctx); err != nil {
			status["activity"] = "unavailable"
		}
	}
	if _, err := s.api.Stats(ctx); err != nil {
		status["status"] = "degraded"
		status["property_api"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (s *server) handleSearchPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "search.html", map[string]string{
		"Query": strings.TrimSpace(r.URL.Query().Get("q")),
	})
}

type detailsPage struct {
	View    details.View
	BackURL string
}

func (s *server) handleDetailsPage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.APITimeout)
	defer cancel()

	pin := chi.URLParam(r, "pin")
	view, err := details.Load(ctx, s.api, pin, s.log)
	if err != nil {
		status := upstreamStatus(err)
		s.log.Warn("load property failed", slog.String("pin", pin), slog.Any("err", err))
		s.render(w, status, "error.html", map[string]string{
			"Title":   http.StatusText(status),
			"Message": "The property could not be loaded.",
		})
		return
	}

	s.render(w, http.StatusOK, "details.html", detailsPage{
		View:    view,
		BackURL: searchURL(r.URL.Query().Get("q")),
	})
}

func (s *server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "lat and lon are required"})
		return
	}
	radius, _ := strconv.ParseFloat(q.Get("radius"), 64)
	limit := clampInt(q.Get("limit"), 25, 200)

	res, err := s.api.NearbyProperties(r.Context(), lat, lon, radius, limit)
	if err != nil {
		writeJSON(w, upstreamStatus(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := propertyapi.GeoJSONParams{
		Area:  strings.TrimSpace(q.Get("area")),
		Class: strings.TrimSpace(q.Get("class")),
		Limit: clampInt(q.Get("limit"), 0, 10_000),
	}

	bounds, ok, err := parseBounds(q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if ok {
		params.Bounds = bounds
	}

	fc, err := s.api.PropertiesGeoJSON(r.Context(), params)
	if err != nil {
		writeJSON(w, upstreamStatus(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.api.Stats(r.Context())
	if err != nil {
		writeJSON(w, upstreamStatus(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handleRecentActivity(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "activity store disabled"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := elasticsearch.RecentParams{
		Kind:      models.ActivityKind(strings.TrimSpace(q.Get("kind"))),
		SessionID: strings.TrimSpace(q.Get("session")),
		PIN:       strings.TrimSpace(q.Get("pin")),
		Since:     parseTime(q.Get("since")),
		Size:      clampInt(q.Get("size"), 20, 200),
	}

	res, err := s.store.RecentEvents(ctx, params)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleTopQueries(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "activity store disabled"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	window := 24 * time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "window must be a positive duration"})
			return
		}
		window = d
	}

	top, err := s.store.TopQueries(ctx, time.Now().Add(-window), clampInt(r.URL.Query().Get("size"), 10, 100))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, top)
}

func (s *server) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("render page", slog.String("page", name), slog.Any("err", err))
	}
}

// upstreamStatus maps a property API failure to the status we answer with.
func upstreamStatus(err error) int {
	var apiErr *propertyapi.APIError
	switch {
	case errors.Is(err, propertyapi.ErrMissingPIN):
		return http.StatusBadRequest
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func searchURL(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return "/"
	}
	return "/?q=" + url.QueryEscape(query)
}

func parseBounds(q url.Values) (*propertyapi.Bounds, bool, error) {
	keys := []string{"north", "south", "east", "west"}
	present := 0
	vals := make([]float64, len(keys))
	for i, k := range keys {
		raw := q.Get(k)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, false, errors.New(k + " must be a number")
		}
		vals[i] = v
		present++
	}
	switch present {
	case 0:
		return nil, false, nil
	case len(keys):
		return &propertyapi.Bounds{North: vals[0], South: vals[1], East: vals[2], West: vals[3]}, true, nil
	default:
		return nil, false, errors.New("north, south, east and west must be given together")
	}
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	return nil
}

func clampInt(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
