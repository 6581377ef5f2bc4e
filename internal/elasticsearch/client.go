package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/parcel-search/internal/models"
)

// Client stores and queries search activity events.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// RecentParams filter the recent-activity query.
type RecentParams struct {
	Kind      models.ActivityKind
	SessionID string
	PIN       string
	Since     *time.Time
	Size      int
}

// RecentResult bundles hits and total count.
type RecentResult struct {
	Total int64                  `json:"total"`
	Items []models.ActivityEvent `json:"items"`
}

// QueryCount is a query with the number of times it was searched.
type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":           {"type": "keyword"},
      "kind":         {"type": "keyword"},
      "session_id":   {"type": "keyword"},
      "query":        {"type": "text", "fields": {"raw": {"type": "keyword", "ignore_above": 256}}},
      "query_type":   {"type": "keyword"},
      "pin":          {"type": "keyword"},
      "result_count": {"type": "integer"},
      "geohash":      {"type": "keyword"},
      "keywords":     {"type": "keyword"},
      "timestamp":    {"type": "date"}
    }
  }
}`

// New instantiates the Elasticsearch client.
func New(addr, index string, logger *slog.Logger) (*Client, error) {
	return NewWithConfig(elasticsearch.Config{Addresses: []string{addr}}, index, logger)
}

// NewWithConfig allows a custom transport, mainly for tests.
func NewWithConfig(cfg elasticsearch.Config, index string, logger *slog.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, index: index, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// EnsureIndex creates the activity index with its mapping when missing.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check index: %s", res.Status())
	}

	res, err = c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		// Another worker may have won the race.
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(body)))
	}

	c.log.Info("created index", slog.String("index", c.index))
	return nil
}

// IndexEvent writes an activity event, keyed by its ID.
func (c *Client) IndexEvent(ctx context.Context, ev models.ActivityEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: ev.ID,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index event failed: %s", strings.TrimSpace(string(body)))
	}

	return nil
}

// RecentEvents returns the newest events matching params.
func (c *Client) RecentEvents(ctx context.Context, params RecentParams) (*RecentResult, error) {
	if params.Size <= 0 {
		params.Size = 20
	}
	if params.Size > 200 {
		params.Size = 200
	}

	body := map[string]any{
		"size":             params.Size,
		"track_total_hits": true,
		"query":            map[string]any{"bool": recentFilters(params)},
		"sort": []map[string]any{
			{"timestamp": map[string]any{"order": "desc"}},
		},
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.ActivityEvent `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := c.search(ctx, body, &parsed); err != nil {
		return nil, err
	}

	items := make([]models.ActivityEvent, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}

	return &RecentResult{
		Total: parsed.Hits.Total.Value,
		Items: items,
	}, nil
}

// TopQueries aggregates the most frequent search queries since the given time.
func (c *Client) TopQueries(ctx context.Context, since time.Time, size int) ([]QueryCount, error) {
	if size <= 0 {
		size = 10
	}

	body := map[string]any{
		"size": 0,
		"query": map[string]any{"bool": recentFilters(RecentParams{
			Kind:  models.ActivitySearch,
			Since: &since,
		})},
		"aggs": map[string]any{
			"queries": map[string]any{
				"terms": map[string]any{"field": "query.raw", "size": size},
			},
		},
	}

	var parsed struct {
		Aggregations struct {
			Queries struct {
				Buckets []struct {
					Key      string `json:"key"`
					DocCount int64  `json:"doc_count"`
				} `json:"buckets"`
			} `json:"queries"`
		} `json:"aggregations"`
	}
	if err := c.search(ctx, body, &parsed); err != nil {
		return nil, err
	}

	out := make([]QueryCount, 0, len(parsed.Aggregations.Queries.Buckets))
	for _, b := range parsed.Aggregations.Queries.Buckets {
		out = append(out, QueryCount{Query: b.Key, Count: b.DocCount})
	}
	return out, nil
}

func recentFilters(params RecentParams) map[string]any {
	filters := make([]map[string]any, 0, 4)
	if params.Kind != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"kind": params.Kind}})
	}
	if params.SessionID != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"session_id": params.SessionID}})
	}
	if params.PIN != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"pin": params.PIN}})
	}
	if params.Since != nil {
		filters = append(filters, map[string]any{
			"range": map[string]any{
				"timestamp": map[string]any{"gte": params.Since.UTC().Format(time.RFC3339)},
			},
		})
	}

	if len(filters) == 0 {
		return map[string]any{"must": []map[string]any{{"match_all": map[string]any{}}}}
	}
	return map[string]any{"filter": filters}
}

func (c *Client) search(ctx context.Context, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	return nil
}

// DeleteOlderThan removes events older than maxAge using batched
// delete-by-query, looping until a batch deletes fewer than batchSize.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339)
	payload, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				"timestamp": map[string]any{"lte": cutoff},
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal delete body: %w", err)
	}

	var total int64
	for {
		deleted, err := c.deleteBatch(ctx, payload, batchSize)
		total += deleted
		if err != nil {
			return total, err
		}
		if deleted < int64(batchSize) {
			return total, nil
		}
	}
}

func (c *Client) deleteBatch(ctx context.Context, payload []byte, batchSize int) (int64, error) {
	res, err := c.es.DeleteByQuery(
		[]string{c.index},
		bytes.NewReader(payload),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithWaitForCompletion(true),
		c.es.DeleteByQuery.WithConflicts("proceed"),
		c.es.DeleteByQuery.WithScrollSize(batchSize),
		c.es.DeleteByQuery.WithMaxDocs(batchSize),
	)
	if err != nil {
		return 0, fmt.Errorf("delete by query: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode delete response: %w", err)
	}
	return parsed.Deleted, nil
}

// Health checks cluster health.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}
