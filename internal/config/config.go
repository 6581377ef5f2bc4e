package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Events describes where search activity is published.
type Events struct {
	KafkaBrokers []string
	KafkaTopic   string
}

// Enabled reports whether activity events go to Kafka.
func (e Events) Enabled() bool {
	return len(e.KafkaBrokers) > 0
}

// Search tunes the per-connection search session.
type Search struct {
	Debounce        time.Duration
	MinQueryLength  int
	SuggestionLimit int
	ResultLimit     int
}

// Map configures the map page and its composed style.
type Map struct {
	AccessToken  string
	StyleURL     string
	StaticDir    string
	MarkerImage  string
	MarkerName   string
	Dataset      string
	IconSize     float64
	FallbackLon  float64
	FallbackLat  float64
	StyleTimeout time.Duration
}

// Web holds configuration for the search/map front service.
type Web struct {
	Common
	Events
	BindAddr       string
	APIBaseURL     string
	APITimeout     time.Duration
	AllowedOrigins []string
	Search         Search
	Map            Map
}

// Worker holds configuration for the Kafka -> Elasticsearch activity worker.
type Worker struct {
	Common
	Events
	KafkaConsumer    string
	KeywordLimit     int
	KeywordMinLength int
	DedupeCapacity   int
	DedupeTTL        time.Duration
	BatchSize        int
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "search-activity"),
	}
}

// LoadWeb builds a Web config from environment variables.
func LoadWeb() (*Web, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	c := &Web{
		Common: loadCommon(),
		Events: Events{
			KafkaBrokers: splitAndTrim(getEnv("KAFKA_BROKERS", "")),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "search_activity"),
		},
		BindAddr:       getEnv("WEB_BIND_ADDR", "0.0.0.0:8080"),
		APIBaseURL:     strings.TrimRight(getEnv("PROPERTY_API_BASE_URL", "http://localhost:8000/api/v1"), "/"),
		APITimeout:     getDuration("PROPERTY_API_TIMEOUT", "10s"),
		AllowedOrigins: splitAndTrim(getEnv("WEB_ALLOWED_ORIGINS", "*")),
		Search: Search{
			Debounce:        getDuration("SEARCH_DEBOUNCE", "300ms"),
			MinQueryLength:  getInt("SEARCH_MIN_QUERY_LEN", 2),
			SuggestionLimit: getInt("SEARCH_SUGGESTION_LIMIT", 10),
			ResultLimit:     getInt("SEARCH_RESULT_LIMIT", 50),
		},
		Map: Map{
			AccessToken:  getEnv("MAPBOX_ACCESS_TOKEN", ""),
			StyleURL:     getEnv("MAP_STYLE_URL", "mapbox://styles/mapbox/streets-v11"),
			StaticDir:    getEnv("MAP_STATIC_DIR", "static"),
			MarkerImage:  getEnv("MAP_MARKER_IMAGE", "apple.png"),
			MarkerName:   getEnv("MAP_MARKER_NAME", "apple-icon"),
			Dataset:      getEnv("MAP_DATASET", "stores.geojson"),
			IconSize:     getFloat("MAP_ICON_SIZE", 0.02),
			FallbackLon:  getFloat("MAP_FALLBACK_LON", -87.6298),
			FallbackLat:  getFloat("MAP_FALLBACK_LAT", 41.8781),
			StyleTimeout: getDuration("MAP_STYLE_TIMEOUT", "10s"),
		},
	}

	if c.APIBaseURL == "" {
		return nil, fmt.Errorf("PROPERTY_API_BASE_URL must not be empty")
	}
	if c.APITimeout <= 0 {
		return nil, fmt.Errorf("PROPERTY_API_TIMEOUT must be positive")
	}
	if c.Search.Debounce < 0 {
		return nil, fmt.Errorf("SEARCH_DEBOUNCE cannot be negative")
	}
	if c.Search.MinQueryLength <= 0 {
		return nil, fmt.Errorf("SEARCH_MIN_QUERY_LEN must be positive")
	}
	if c.Search.SuggestionLimit <= 0 || c.Search.ResultLimit <= 0 {
		return nil, fmt.Errorf("SEARCH_SUGGESTION_LIMIT and SEARCH_RESULT_LIMIT must be positive")
	}
	if c.Map.IconSize <= 0 {
		return nil, fmt.Errorf("MAP_ICON_SIZE must be positive")
	}
	if c.Map.FallbackLat < -90 || c.Map.FallbackLat > 90 || c.Map.FallbackLon < -180 || c.Map.FallbackLon > 180 {
		return nil, fmt.Errorf("MAP_FALLBACK_LON/MAP_FALLBACK_LAT out of range")
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	c := &Worker{
		Common: loadCommon(),
		Events: Events{
			KafkaBrokers: splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "search_activity"),
		},
		KafkaConsumer:    getEnv("KAFKA_CONSUMER_GROUP", "activity-worker"),
		KeywordLimit:     getInt("WORKER_KEYWORD_LIMIT", 5),
		KeywordMinLength: getInt("WORKER_KEYWORD_MIN_LEN", 3),
		DedupeCapacity:   getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:        getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:        getInt("WORKER_BATCH_SIZE", 10),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.KeywordLimit <= 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_LIMIT must be positive")
	}
	if c.KeywordMinLength < 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_MIN_LEN cannot be negative")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	c := &Retention{
		Common:    loadCommon(),
		Interval:  getDuration("RETENTION_CRON", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "720h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

// loadDotEnv reads ENV_FILE (default .env) without overriding variables that
// are already set. A missing file is not an error.
func loadDotEnv() error {
	path := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
