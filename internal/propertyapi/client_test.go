package propertyapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/parcel-search/internal/models"
	"github.com/DeafMist/parcel-search/internal/propertyapi"
)

func newBackend(t *testing.T, h http.HandlerFunc) (*propertyapi.Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return propertyapi.New(srv.URL+"/api/v1/", time.Second), &calls
}

func TestAutocompleteShortQueryMakesNoRequest(t *testing.T) {
	client, calls := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	})

	for _, q := range []string{"", "1", "é"} {
		got, err := client.AutocompleteSuggestions(context.Background(), q, 10)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Empty(t, got)
	}
	require.Zero(t, atomic.LoadInt32(calls))
}

func TestAutocompleteDecodesBothShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []models.SearchSuggestion
	}{
		{
			name: "list",
			body: `[{"pin":"17-10","display":"123 Main St - Acme Co"},{"pin":"17-11","display":"125 Main St"}]`,
			want: []models.SearchSuggestion{
				{PIN: "17-10", Display: "123 Main St - Acme Co"},
				{PIN: "17-11", Display: "125 Main St"},
			},
		},
		{
			name: "envelope",
			body: `{"suggestions":[{"value":"1710","type":"pin"},{"value":"Loop","type":"area"},{"value":"","type":"area"}]}`,
			want: []models.SearchSuggestion{
				{PIN: "1710", Display: "1710", Type: "pin"},
				{Display: "Loop", Type: "area"},
			},
		},
		{name: "null", body: `null`, want: []models.SearchSuggestion{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/properties/autocomplete/", r.URL.Path)
				assert.Equal(t, "12", r.URL.Query().Get("q"))
				assert.Equal(t, "10", r.URL.Query().Get("limit"))
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			})

			got, err := client.AutocompleteSuggestions(context.Background(), "12", 0)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSearchPropertiesParamsAndShapes(t *testing.T) {
	bodies := []string{
		`[{"pin":"1","address":"123 Main St"}]`,
		`{"count":1,"results":[{"pin":"1","address":"123 Main St"}],"query":"main","search_type":"all"}`,
	}
	for _, body := range bodies {
		client, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/properties/search/", r.URL.Path)
			assert.Equal(t, "123 Main St", r.URL.Query().Get("q"))
			assert.Equal(t, "all", r.URL.Query().Get("type"))
			assert.Equal(t, "50", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(body))
		})

		got, err := client.SearchProperties(context.Background(), "123 Main St", "", 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "1", got[0].PIN)
		require.Equal(t, "123 Main St", got[0].Address)
	}
}

func TestSearchPropertiesErrorPropagates(t *testing.T) {
	client, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Query parameter is required"}`))
	})

	_, err := client.SearchProperties(context.Background(), "", models.SearchPIN, 5)
	require.Error(t, err)

	var apiErr *propertyapi.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, "Query parameter is required", apiErr.Message)
}

func TestPropertyDetailAndSubResources(t *testing.T) {
	client, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/properties/17-10-200/":
			_, _ = w.Write([]byte(`{"pin":"17-10-200","address":"1 State St","latitude":41.88,"longitude":-87.62}`))
		case "/api/v1/properties/17-10-200/schools/":
			_, _ = w.Write([]byte(`{"pin":"17-10-200","school_elementary_district_name":"CPS"}`))
		case "/api/v1/properties/17-10-200/tax/":
			_, _ = w.Write([]byte(`{"pin":"17-10-200","tax_municipality_name":"Chicago"}`))
		case "/api/v1/properties/17-10-200/environment/":
			_, _ = w.Write([]byte(`{"pin":"17-10-200","env_flood_fema_sfha":false}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	p, err := client.PropertyDetail(ctx, "17-10-200")
	require.NoError(t, err)
	lat, lon, ok := p.Location()
	require.True(t, ok)
	require.InDelta(t, 41.88, lat, 1e-9)
	require.InDelta(t, -87.62, lon, 1e-9)

	schools, err := client.PropertySchools(ctx, "17-10-200")
	require.NoError(t, err)
	require.Equal(t, "CPS", schools.ElementaryDistrict)

	tax, err := client.PropertyTax(ctx, "17-10-200")
	require.NoError(t, err)
	require.Equal(t, "Chicago", tax.Municipality)

	env, err := client.PropertyEnvironment(ctx, "17-10-200")
	require.NoError(t, err)
	require.NotNil(t, env.FloodFEMASFHA)
	require.False(t, *env.FloodFEMASFHA)

	_, err = client.PropertyDetail(ctx, "missing")
	var apiErr *propertyapi.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestBlankPINShortCircuits(t *testing.T) {
	client, calls := newBackend(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := client.PropertyDetail(context.Background(), "  ")
	require.ErrorIs(t, err, propertyapi.ErrMissingPIN)
	_, err = client.PropertyTax(context.Background(), "")
	require.ErrorIs(t, err, propertyapi.ErrMissingPIN)
	require.Zero(t, atomic.LoadInt32(calls))
}

func TestNearbyGeoJSONStatsAndList(t *testing.T) {
	client, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/api/v1/properties/nearby/":
			assert.Equal(t, "41.8781", q.Get("lat"))
			assert.Equal(t, "-87.6298", q.Get("lon"))
			assert.Equal(t, "1", q.Get("radius"))
			assert.Equal(t, "25", q.Get("limit"))
			_, _ = w.Write([]byte(`{"count":1,"center":[-87.6298,41.8781],"radius_km":1,"results":[{"pin":"9"}]}`))
		case "/api/v1/properties/geojson/":
			assert.Equal(t, "42", q.Get("north"))
			assert.Equal(t, "41", q.Get("south"))
			assert.Equal(t, "-87", q.Get("east"))
			assert.Equal(t, "-88", q.Get("west"))
			assert.Equal(t, "Loop", q.Get("area"))
			assert.False(t, q.Has("class"))
			_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[-87.6,41.9]},"properties":{"pin":"9"}}]}`))
		case "/api/v1/properties/stats/":
			_, _ = w.Write([]byte(`{"total_properties":10,"zip_codes":2,"top_community_areas":[{"chicago_community_area_name":"Loop","count":7}]}`))
		case "/api/v1/properties/":
			assert.Equal(t, "2", q.Get("page"))
			assert.Equal(t, "60601", q.Get("zip_code"))
			_, _ = w.Write([]byte(`{"count":30,"next":"n","results":[{"pin":"9"}]}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	nearby, err := client.NearbyProperties(ctx, 41.8781, -87.6298, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, nearby.Count)
	require.Equal(t, "9", nearby.Results[0].PIN)

	fc, err := client.PropertiesGeoJSON(ctx, propertyapi.GeoJSONParams{
		Bounds: &propertyapi.Bounds{North: 42, South: 41, East: -87, West: -88},
		Area:   "Loop",
	})
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	lon, lat, ok := fc.Features[0].Geometry.Point()
	require.True(t, ok)
	require.InDelta(t, -87.6, lon, 1e-9)
	require.InDelta(t, 41.9, lat, 1e-9)

	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 10, stats.TotalProperties)
	require.Equal(t, "Loop", stats.TopCommunityAreas[0].Name)

	page, err := client.ListProperties(ctx, propertyapi.ListParams{Page: 2, ZipCode: "60601"})
	require.NoError(t, err)
	require.Equal(t, 30, page.Count)
}

func TestWithErrorHandling(t *testing.T) {
	ok := propertyapi.WithErrorHandling(func() (int, error) { return 7, nil })
	require.True(t, ok.OK())
	require.Equal(t, 7, ok.Data)

	apiFail := propertyapi.WithErrorHandling(func() ([]models.Property, error) {
		return nil, &propertyapi.APIError{StatusCode: 500, Message: "boom", Path: "/x"}
	})
	require.False(t, apiFail.OK())
	require.Equal(t, "boom", apiFail.Error)
	require.Nil(t, apiFail.Data)

	plain := propertyapi.WithErrorHandling(func() (string, error) { return "", errors.New("dial tcp: refused") })
	require.Equal(t, "dial tcp: refused", plain.Error)
}

func TestTimeoutSurfacesAsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	client := propertyapi.New(srv.URL, 20*time.Millisecond)
	_, err := client.Stats(context.Background())
	require.Error(t, err)
}
