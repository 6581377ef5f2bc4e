package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DeafMist/parcel-search/internal/activity"
	"github.com/DeafMist/parcel-search/internal/config"
	"github.com/DeafMist/parcel-search/internal/elasticsearch"
	"github.com/DeafMist/parcel-search/internal/logger"
	"github.com/DeafMist/parcel-search/internal/propertyapi"
)

func main() {
	log := logger.New("web")
	cfg, err := config.LoadWeb()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	api := propertyapi.New(cfg.APIBaseURL, cfg.APITimeout, propertyapi.WithLogger(log))

	var pub activity.Publisher
	if cfg.Events.Enabled() {
		pub = activity.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		log.Info("publishing activity to kafka", slog.String("topic", cfg.KafkaTopic))
	} else {
		pub = activity.NewLogPublisher(log)
	}
	recorder := activity.NewRecorder(pub, log)
	defer func() {
		if err := recorder.Close(); err != nil {
			log.Error("close activity recorder", slog.Any("err", err))
		}
	}()

	srv := &server{
		log:      log,
		cfg:      cfg,
		api:      api,
		recorder: recorder,
		maps:     newMapBuilder(cfg.Map, log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	if store := connectStore(cfg, log); store != nil {
		srv.store = store
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("web server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

// connectStore returns nil when the activity index is unreachable; the
// activity endpoints then answer 503.
func connectStore(cfg *config.Web, log *slog.Logger) *elasticsearch.Client {
	es, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Warn("init elasticsearch", slog.Any("err", err))
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := es.Ping(ctx); err != nil {
		log.Warn("activity store unavailable", slog.Any("err", err))
		return nil
	}
	return es
}
