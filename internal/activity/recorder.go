package activity

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmcloughlin/geohash"

	"github.com/DeafMist/parcel-search/internal/models"
	"github.com/DeafMist/parcel-search/internal/processing"
	"github.com/DeafMist/parcel-search/internal/search"
)

const (
	// PropertyPrecision is about a 150 m cell.
	PropertyPrecision = 7
	// AreaPrecision is about a 5 km cell, used for result-set centroids.
	AreaPrecision = 5

	defaultBuffer  = 256
	publishTimeout = 5 * time.Second
)

// Recorder publishes events in the background. Record never blocks: events
// are dropped with a warning when the buffer is full.
type Recorder struct {
	pub Publisher
	log *slog.Logger
	now func() time.Time

	events chan models.ActivityEvent
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// RecorderOption customizes a Recorder.
type RecorderOption func(*Recorder)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// WithBuffer sets how many events may wait for the publisher.
func WithBuffer(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.events = make(chan models.ActivityEvent, n)
		}
	}
}

// NewRecorder starts the publishing loop. Close stops it.
func NewRecorder(pub Publisher, log *slog.Logger, opts ...RecorderOption) *Recorder {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Recorder{
		pub:    pub,
		log:    log,
		now:    time.Now,
		events: make(chan models.ActivityEvent, defaultBuffer),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.done)
	for ev := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := r.pub.Publish(ctx, ev); err != nil {
			r.log.Warn("publish activity failed",
				slog.String("kind", string(ev.Kind)),
				slog.Any("err", err),
			)
		}
		cancel()
	}
}

// Record queues ev after filling in ID and timestamp.
func (r *Recorder) Record(ev models.ActivityEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now().UTC()
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		r.log.Warn("activity buffer full, dropping event", slog.String("kind", string(ev.Kind)))
	}
}

// Close flushes queued events and closes the publisher.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()

	<-r.done
	return r.pub.Close()
}

// Session records the activity of one search session.
type Session struct {
	rec *Recorder
	id  string
}

// NewSession starts a session with a fresh ID.
func (r *Recorder) NewSession() *Session {
	return &Session{rec: r, id: uuid.NewString()}
}

func (s *Session) ID() string { return s.id }

// Callbacks wraps next so every notification is also recorded. next's
// callbacks run first.
func (s *Session) Callbacks(next search.Callbacks) search.Callbacks {
	out := next
	out.OnSearchResults = func(query string, results []models.Property) {
		if next.OnSearchResults != nil {
			next.OnSearchResults(query, results)
		}
		s.Searched(query, results)
	}
	out.OnSuggestionSelect = func(query string) {
		if next.OnSuggestionSelect != nil {
			next.OnSuggestionSelect(query)
		}
		s.SuggestionSelected(query)
	}
	out.OnPropertySelect = func(p models.Property) {
		if next.OnPropertySelect != nil {
			next.OnPropertySelect(p)
		}
		s.PropertySelected(p)
	}
	out.OnClear = func() {
		if next.OnClear != nil {
			next.OnClear()
		}
		s.Cleared()
	}
	return out
}

func (s *Session) Searched(query string, results []models.Property) {
	query = processing.NormalizeQuery(query)
	s.rec.Record(models.ActivityEvent{
		Kind:        models.ActivitySearch,
		SessionID:   s.id,
		Query:       query,
		QueryType:   processing.ClassifyQuery(query),
		ResultCount: len(results),
		Geohash:     centroidGeohash(results),
	})
}

func (s *Session) SuggestionSelected(query string) {
	query = processing.NormalizeQuery(query)
	s.rec.Record(models.ActivityEvent{
		Kind:      models.ActivitySuggestionSelect,
		SessionID: s.id,
		Query:     query,
		QueryType: processing.ClassifyQuery(query),
	})
}

func (s *Session) PropertySelected(p models.Property) {
	ev := models.ActivityEvent{
		Kind:      models.ActivityPropertySelect,
		SessionID: s.id,
		PIN:       p.PIN,
	}
	if lat, lon, ok := p.Location(); ok {
		ev.Geohash = geohash.EncodeWithPrecision(lat, lon, PropertyPrecision)
	}
	s.rec.Record(ev)
}

func (s *Session) Cleared() {
	s.rec.Record(models.ActivityEvent{Kind: models.ActivityClear, SessionID: s.id})
}

// centroidGeohash is the area cell of the mean position of located results.
func centroidGeohash(results []models.Property) string {
	var sumLat, sumLon float64
	n := 0
	for _, p := range results {
		if lat, lon, ok := p.Location(); ok {
			sumLat += lat
			sumLon += lon
			n++
		}
	}
	if n == 0 {
		return ""
	}
	return geohash.EncodeWithPrecision(sumLat/float64(n), sumLon/float64(n), AreaPrecision)
}
