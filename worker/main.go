package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/parcel-search/internal/config"
	"github.com/DeafMist/parcel-search/internal/dedupe"
	"github.com/DeafMist/parcel-search/internal/elasticsearch"
	"github.com/DeafMist/parcel-search/internal/logger"
	"github.com/DeafMist/parcel-search/internal/models"
	"github.com/DeafMist/parcel-search/internal/processing"
)

// rawEvent is an activity event as published by the web service. The
// timestamp is kept as text so older producers with other layouts still parse.
type rawEvent struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	SessionID   string `json:"session_id"`
	Query       string `json:"query"`
	QueryType   string `json:"query_type"`
	PIN         string `json:"pin"`
	ResultCount int    `json:"result_count"`
	Geohash     string `json:"geohash"`
	Timestamp   string `json:"timestamp"`
}

type eventIndexer interface {
	IndexEvent(ctx context.Context, ev models.ActivityEvent) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

var knownKinds = map[models.ActivityKind]struct{}{
	models.ActivitySearch:           {},
	models.ActivitySuggestionSelect: {},
	models.ActivityPropertySelect:   {},
	models.ActivityClear:            {},
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := esClient.EnsureIndex(ctx); err != nil {
		log.Error("ensure index", slog.Any("err", err))
		os.Exit(1)
	}

	cache := dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	dlqTopic := cfg.KafkaTopic + "_dlq"
	dlqWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        dlqTopic,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
	}
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", dlqTopic),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, esClient, cache, cfg, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)
			if ctx.Err() != nil {
				return
			}
			// Commit only after the DLQ has the message; otherwise it is
			// reprocessed on restart.
			if !sendToDLQ(ctx, log, dlqWriter, msg, err) {
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

// sendToDLQ writes msg with its failure context, retrying with exponential
// backoff. It reports whether the write succeeded.
func sendToDLQ(ctx context.Context, log *slog.Logger, w messageWriter, msg kafka.Message, cause error) bool {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "original_partition", Value: []byte(strconv.Itoa(msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := 0; attempt < 5; attempt++ {
		dlqErr := w.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}
		backoff := time.Duration(1<<uint(attempt)) * time.Second
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
	}

	log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)
	return false
}

func processMessage(ctx context.Context, log *slog.Logger, indexer eventIndexer, cache *dedupe.Cache, cfg *config.Worker, msg kafka.Message) error {
	var payload rawEvent
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	kind := models.ActivityKind(strings.TrimSpace(payload.Kind))
	if _, ok := knownKinds[kind]; !ok {
		return fmt.Errorf("unknown event kind %q", payload.Kind)
	}
	sessionID := strings.TrimSpace(payload.SessionID)
	if sessionID == "" {
		return errors.New("event without session id")
	}

	ts := parseTimestamp(payload.Timestamp)
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	query := processing.NormalizeQuery(payload.Query)
	if kind == models.ActivitySearch && query == "" {
		return errors.New("search event without query")
	}

	ev := models.ActivityEvent{
		ID:          strings.TrimSpace(payload.ID),
		Kind:        kind,
		SessionID:   sessionID,
		Query:       query,
		QueryType:   models.SearchType(payload.QueryType),
		PIN:         strings.TrimSpace(payload.PIN),
		ResultCount: payload.ResultCount,
		Geohash:     payload.Geohash,
		Timestamp:   ts.UTC(),
	}
	if query != "" {
		if ev.QueryType == "" {
			ev.QueryType = processing.ClassifyQuery(query)
		}
		if ev.QueryType != models.SearchPIN {
			ev.Keywords = processing.ExtractKeywords(query, cfg.KeywordLimit, cfg.KeywordMinLength)
		}
	}
	if ev.ID == "" {
		ev.ID = processing.BuildEventID(ev)
	}

	if cache.IsSeen(ev.ID) {
		log.Debug("duplicate event", slog.String("id", ev.ID))
		return nil
	}

	if err := indexer.IndexEvent(ctx, ev); err != nil {
		return err
	}

	cache.MarkSeen(ev.ID)
	log.Debug("indexed event",
		slog.String("id", ev.ID),
		slog.String("kind", string(ev.Kind)),
		slog.String("session", ev.SessionID),
	)
	return nil
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}

	for _, f := range formats {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts
		}
	}

	return time.Time{}
}
