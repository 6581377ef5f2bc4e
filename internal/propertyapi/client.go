// Package propertyapi is a typed client for the parcel REST backend.
package propertyapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DeafMist/parcel-search/internal/models"
)

// DefaultTimeout bounds every request when the caller does not pick one.
const DefaultTimeout = 10 * time.Second

// MinAutocompleteLength is the shortest query sent to the autocomplete endpoint.
const MinAutocompleteLength = 2

// ErrMissingPIN is returned for detail lookups without a parcel id.
var ErrMissingPIN = errors.New("propertyapi: pin is required")

// APIError is returned when the backend answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
	Path       string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("property api %s: status %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("property api %s: status %d: %s", e.Path, e.StatusCode, e.Message)
}

// Client performs one GET per operation and keeps no state between calls.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New instantiates a client for baseURL (for example http://localhost:8000/api/v1).
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListParams filter the paginated property listing.
type ListParams struct {
	Page          int
	PageSize      int
	PropertyClass string
	ZipCode       string
	Township      string
	CommunityArea string
	Search        string
	Ordering      string
}

// ListProperties returns one page of the property listing.
func (c *Client) ListProperties(ctx context.Context, p ListParams) (*models.PropertyPage, error) {
	q := url.Values{}
	setInt(q, "page", p.Page)
	setInt(q, "page_size", p.PageSize)
	setString(q, "property_class", p.PropertyClass)
	setString(q, "zip_code", p.ZipCode)
	setString(q, "township_name", p.Township)
	setString(q, "community_area_name", p.CommunityArea)
	setString(q, "search", p.Search)
	setString(q, "ordering", p.Ordering)

	var page models.PropertyPage
	if err := c.get(ctx, "/properties/", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SearchProperties runs a full search. The backend may answer with a bare list
// or with an envelope; both yield the ordered result list.
func (c *Client) SearchProperties(ctx context.Context, query string, searchType models.SearchType, limit int) ([]models.Property, error) {
	if searchType == "" {
		searchType = models.SearchAll
	}
	if limit <= 0 {
		limit = 50
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("type", string(searchType))
	q.Set("limit", strconv.Itoa(limit))

	var raw json.RawMessage
	if err := c.get(ctx, "/properties/search/", q, &raw); err != nil {
		return nil, err
	}
	return decodePropertyList(raw)
}

// AutocompleteSuggestions returns suggestions for query. Queries shorter than
// MinAutocompleteLength return an empty list without touching the network.
func (c *Client) AutocompleteSuggestions(ctx context.Context, query string, limit int) ([]models.SearchSuggestion, error) {
	if utf8.RuneCountInString(query) < MinAutocompleteLength {
		return []models.SearchSuggestion{}, nil
	}
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))

	var raw json.RawMessage
	if err := c.get(ctx, "/properties/autocomplete/", q, &raw); err != nil {
		return nil, err
	}
	return decodeSuggestions(raw)
}

// PropertyDetail fetches one property by PIN.
func (c *Client) PropertyDetail(ctx context.Context, pin string) (*models.Property, error) {
	path, err := pinPath(pin, "")
	if err != nil {
		return nil, err
	}
	var p models.Property
	if err := c.get(ctx, path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// NearbyProperties lists properties within radiusKm of lat/lon.
func (c *Client) NearbyProperties(ctx context.Context, lat, lon, radiusKm float64, limit int) (*models.NearbyResult, error) {
	if radiusKm <= 0 {
		radiusKm = 1.0
	}
	if limit <= 0 {
		limit = 25
	}
	q := url.Values{}
	q.Set("lat", formatFloat(lat))
	q.Set("lon", formatFloat(lon))
	q.Set("radius", formatFloat(radiusKm))
	q.Set("limit", strconv.Itoa(limit))

	var res models.NearbyResult
	if err := c.get(ctx, "/properties/nearby/", q, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Bounds is a lat/lon bounding box.
type Bounds struct {
	North, South, East, West float64
}

// GeoJSONParams filter the GeoJSON endpoint. A nil Bounds means unbounded.
type GeoJSONParams struct {
	Bounds *Bounds
	Area   string
	Class  string
	Limit  int
}

// PropertiesGeoJSON returns properties as a point FeatureCollection.
func (c *Client) PropertiesGeoJSON(ctx context.Context, p GeoJSONParams) (*models.FeatureCollection, error) {
	q := url.Values{}
	if b := p.Bounds; b != nil {
		q.Set("north", formatFloat(b.North))
		q.Set("south", formatFloat(b.South))
		q.Set("east", formatFloat(b.East))
		q.Set("west", formatFloat(b.West))
	}
	setString(q, "area", p.Area)
	setString(q, "class", p.Class)
	setInt(q, "limit", p.Limit)

	var fc models.FeatureCollection
	if err := c.get(ctx, "/properties/geojson/", q, &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

// PropertySchools fetches the school district sub-resource.
func (c *Client) PropertySchools(ctx context.Context, pin string) (*models.SchoolInfo, error) {
	path, err := pinPath(pin, "schools/")
	if err != nil {
		return nil, err
	}
	var info models.SchoolInfo
	if err := c.get(ctx, path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// PropertyTax fetches the tax district sub-resource.
func (c *Client) PropertyTax(ctx context.Context, pin string) (*models.TaxInfo, error) {
	path, err := pinPath(pin, "tax/")
	if err != nil {
		return nil, err
	}
	var info models.TaxInfo
	if err := c.get(ctx, path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// PropertyEnvironment fetches the environmental sub-resource.
func (c *Client) PropertyEnvironment(ctx context.Context, pin string) (*models.EnvironmentInfo, error) {
	path, err := pinPath(pin, "environment/")
	if err != nil {
		return nil, err
	}
	var info models.EnvironmentInfo
	if err := c.get(ctx, path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Stats returns database-wide statistics.
func (c *Client) Stats(ctx context.Context) (*models.Stats, error) {
	var s models.Stats
	if err := c.get(ctx, "/properties/stats/", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer res.Body.Close()

	c.log.Debug("property api request",
		slog.String("path", path),
		slog.Int("status", res.StatusCode),
		slog.Duration("took", time.Since(start)),
	)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
		return &APIError{StatusCode: res.StatusCode, Message: errorMessage(body), Path: path}
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func pinPath(pin, sub string) (string, error) {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return "", ErrMissingPIN
	}
	return "/properties/" + url.PathEscape(pin) + "/" + sub, nil
}

// errorMessage extracts the backend's message/error/detail field, falling back
// to the trimmed body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			return payload.Message
		case payload.Error != "":
			return payload.Error
		case payload.Detail != "":
			return payload.Detail
		}
	}
	return strings.TrimSpace(string(body))
}

func setString(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func setInt(q url.Values, key string, value int) {
	if value > 0 {
		q.Set(key, strconv.Itoa(value))
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
