package elasticsearch_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	es8 "github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/parcel-search/internal/elasticsearch"
	"github.com/DeafMist/parcel-search/internal/models"
)

type recorded struct {
	method string
	path   string
	body   map[string]any
}

func fakeCluster(t *testing.T, respond func(r *http.Request) (int, string)) (*elasticsearch.Client, func() []recorded) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		rec := recorded{method: r.Method, path: r.URL.Path}
		if len(raw) > 0 {
			assert.NoError(t, json.Unmarshal(raw, &rec.body))
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()

		status, body := respond(r)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewWithConfig(es8.Config{Addresses: []string{srv.URL}}, "search-activity", nil)
	require.NoError(t, err)
	return client, func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), reqs...)
	}
}

func TestIndexEventUsesEventID(t *testing.T) {
	client, requests := fakeCluster(t, func(*http.Request) (int, string) {
		return http.StatusCreated, `{"result":"created"}`
	})

	ev := models.ActivityEvent{ID: "abc", Kind: models.ActivitySearch, Query: "main", Timestamp: time.Now().UTC()}
	require.NoError(t, client.IndexEvent(context.Background(), ev))

	reqs := requests()
	require.Len(t, reqs, 1)
	require.Equal(t, http.MethodPut, reqs[0].method)
	require.Equal(t, "/search-activity/_doc/abc", reqs[0].path)
	require.Equal(t, "main", reqs[0].body["query"])
}

func TestIndexEventSurfacesFailure(t *testing.T) {
	client, _ := fakeCluster(t, func(*http.Request) (int, string) {
		return http.StatusBadRequest, `{"error":"mapper_parsing_exception"}`
	})

	err := client.IndexEvent(context.Background(), models.ActivityEvent{ID: "x"})
	require.ErrorContains(t, err, "mapper_parsing_exception")
}

func TestRecentEventsBuildsFilters(t *testing.T) {
	client, requests := fakeCluster(t, func(*http.Request) (int, string) {
		return http.StatusOK, `{"hits":{"total":{"value":7},"hits":[
			{"_source":{"id":"1","kind":"property_selected","pin":"17-10","timestamp":"2024-05-06T07:08:09Z"}}
		]}}`
	})

	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	res, err := client.RecentEvents(context.Background(), elasticsearch.RecentParams{
		Kind:  models.ActivityPropertySelect,
		Since: &since,
		Size:  1000,
	})
	require.NoError(t, err)
	require.EqualValues(t, 7, res.Total)
	require.Len(t, res.Items, 1)
	require.Equal(t, "17-10", res.Items[0].PIN)

	body := requests()[0].body
	require.EqualValues(t, 200, body["size"])
	filters := body["query"].(map[string]any)["bool"].(map[string]any)["filter"].([]any)
	require.Len(t, filters, 2)
	require.True(t, strings.HasSuffix(requests()[0].path, "/_search"))
}

func TestTopQueries(t *testing.T) {
	client, _ := fakeCluster(t, func(*http.Request) (int, string) {
		return http.StatusOK, `{"hits":{"total":{"value":3},"hits":[]},"aggregations":{"queries":{"buckets":[
			{"key":"123 Main St","doc_count":2},{"key":"Acme","doc_count":1}
		]}}}`
	})

	got, err := client.TopQueries(context.Background(), time.Now().Add(-time.Hour), 5)
	require.NoError(t, err)
	require.Equal(t, []elasticsearch.QueryCount{{Query: "123 Main St", Count: 2}, {Query: "Acme", Count: 1}}, got)
}

func TestEnsureIndexCreatesWhenMissing(t *testing.T) {
	client, requests := fakeCluster(t, func(r *http.Request) (int, string) {
		if r.Method == http.MethodHead {
			return http.StatusNotFound, ``
		}
		return http.StatusOK, `{"acknowledged":true}`
	})

	require.NoError(t, client.EnsureIndex(context.Background()))
	reqs := requests()
	require.Len(t, reqs, 2)
	require.Equal(t, http.MethodPut, reqs[1].method)
	require.Contains(t, reqs[1].body, "mappings")
}

func TestDeleteOlderThanLoopsUntilShortBatch(t *testing.T) {
	var calls int32
	client, _ := fakeCluster(t, func(*http.Request) (int, string) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return http.StatusOK, `{"deleted":10}`
		}
		return http.StatusOK, `{"deleted":4}`
	})

	deleted, err := client.DeleteOlderThan(context.Background(), 24*time.Hour, 10)
	require.NoError(t, err)
	require.EqualValues(t, 24, deleted)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}
