package activity

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmcloughlin/geohash"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/parcel-search/internal/models"
	"github.com/DeafMist/parcel-search/internal/search"
)

type memPublisher struct {
	mu     sync.Mutex
	events []models.ActivityEvent
	closed bool
	err    error
}

func (p *memPublisher) Publish(_ context.Context, ev models.ActivityEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *memPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *memPublisher) snapshot() []models.ActivityEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.ActivityEvent(nil), p.events...)
}

func ptr[T any](v T) *T { return &v }

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func TestSessionCallbacksRecordEvents(t *testing.T) {
	pub := &memPublisher{}
	rec := NewRecorder(pub, nil, WithClock(func() time.Time { return fixedNow }))
	sess := rec.NewSession()

	var cleared, picked bool
	cb := sess.Callbacks(search.Callbacks{
		OnClear:          func() { cleared = true },
		OnPropertySelect: func(models.Property) { picked = true },
	})

	results := []models.Property{
		{PIN: "1", Latitude: ptr(41.88), Longitude: ptr(-87.63)},
		{PIN: "2", Latitude: ptr(41.90), Longitude: ptr(-87.65)},
		{PIN: "3"},
	}
	cb.OnSearchResults("  123 Main  St ", results)
	cb.OnSuggestionSelect("Acme Co")
	cb.OnPropertySelect(results[0])
	cb.OnClear()
	require.NoError(t, rec.Close())

	require.True(t, cleared)
	require.True(t, picked)
	require.True(t, pub.closed)

	events := pub.snapshot()
	require.Len(t, events, 4)
	for _, ev := range events {
		require.Equal(t, sess.ID(), ev.SessionID)
		require.NotEmpty(t, ev.ID)
		require.Equal(t, fixedNow, ev.Timestamp)
	}

	require.Equal(t, models.ActivitySearch, events[0].Kind)
	require.Equal(t, "123 Main St", events[0].Query)
	require.Equal(t, models.SearchAddress, events[0].QueryType)
	require.Equal(t, 3, events[0].ResultCount)
	require.Equal(t, geohash.EncodeWithPrecision(41.89, -87.64, AreaPrecision), events[0].Geohash)

	require.Equal(t, models.ActivitySuggestionSelect, events[1].Kind)
	require.Equal(t, models.SearchBusiness, events[1].QueryType)

	require.Equal(t, models.ActivityPropertySelect, events[2].Kind)
	require.Equal(t, "1", events[2].PIN)
	require.Len(t, events[2].Geohash, PropertyPrecision)
	require.Equal(t, geohash.EncodeWithPrecision(41.88, -87.63, PropertyPrecision), events[2].Geohash)

	require.Equal(t, models.ActivityClear, events[3].Kind)
}

func TestRecorderSurvivesPublishErrors(t *testing.T) {
	pub := &memPublisher{err: errors.New("broker down")}
	rec := NewRecorder(pub, nil)
	rec.NewSession().Cleared()
	rec.NewSession().Cleared()
	require.NoError(t, rec.Close())
	require.Len(t, pub.snapshot(), 2)
}

type blockingPublisher struct {
	memPublisher
	release chan struct{}
}

func (p *blockingPublisher) Publish(ctx context.Context, ev models.ActivityEvent) error {
	<-p.release
	return p.memPublisher.Publish(ctx, ev)
}

func TestRecordDropsWhenBufferFull(t *testing.T) {
	pub := &blockingPublisher{release: make(chan struct{})}
	rec := NewRecorder(pub, nil, WithBuffer(1))
	sess := rec.NewSession()

	for i := 0; i < 10; i++ {
		sess.Cleared()
	}
	close(pub.release)
	require.NoError(t, rec.Close())

	got := len(pub.snapshot())
	require.GreaterOrEqual(t, got, 1)
	require.LessOrEqual(t, got, 2)

	// Recording after close is a no-op.
	sess.Cleared()
	require.NoError(t, rec.Close())
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherKeysBySession(t *testing.T) {
	w := &fakeWriter{}
	pub := &KafkaPublisher{w: w}

	ev := models.ActivityEvent{ID: "e1", Kind: models.ActivitySearch, SessionID: "s1", Query: "main", Timestamp: fixedNow}
	require.NoError(t, pub.Publish(context.Background(), ev))
	require.NoError(t, pub.Close())

	require.True(t, w.closed)
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	require.Equal(t, "s1", string(msg.Key))
	require.Equal(t, "kind", msg.Headers[0].Key)
	require.Equal(t, "search", string(msg.Headers[0].Value))

	var decoded models.ActivityEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, ev, decoded)
}
