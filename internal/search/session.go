// Package search holds the search-as-you-type interaction model: query text,
// debounced suggestions, full searches and the resulting list.
package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/DeafMist/parcel-search/internal/models"
)

// Backend is the subset of the property API the session needs.
type Backend interface {
	SearchProperties(ctx context.Context, query string, searchType models.SearchType, limit int) ([]models.Property, error)
	AutocompleteSuggestions(ctx context.Context, query string, limit int) ([]models.SearchSuggestion, error)
}

// State is derived from the session fields; see Session.Snapshot.
type State int

const (
	Idle State = iota
	Typing
	SuggestionsVisible
	Searching
	ResultsVisible
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Typing:
		return "typing"
	case SuggestionsVisible:
		return "suggestions"
	case Searching:
		return "searching"
	case ResultsVisible:
		return "results"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Callbacks notify the owner of the session. Every field is optional and
// called without the session lock held.
type Callbacks struct {
	OnPropertySelect   func(models.Property)
	OnSearchResults    func(query string, results []models.Property)
	OnSuggestionSelect func(query string)
	OnClear            func()
	OnChange           func(Snapshot)
}

// Options configure a Session. Zero values pick the defaults. The Initial
// fields restore a page that already showed results.
type Options struct {
	Debounce           time.Duration
	MinQueryLength     int
	SuggestionLimit    int
	ResultLimit        int
	SearchType         models.SearchType
	InitialQuery       string
	InitialResults     []models.Property
	InitialHasSearched bool
	Logger             *slog.Logger
	Callbacks          Callbacks
}

const (
	DefaultDebounce        = 300 * time.Millisecond
	DefaultMinQueryLength  = 2
	DefaultSuggestionLimit = 10
	DefaultResultLimit     = 50
)

func (o *Options) applyDefaults() {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.MinQueryLength <= 0 {
		o.MinQueryLength = DefaultMinQueryLength
	}
	if o.SuggestionLimit <= 0 {
		o.SuggestionLimit = DefaultSuggestionLimit
	}
	if o.ResultLimit <= 0 {
		o.ResultLimit = DefaultResultLimit
	}
	if o.SearchType == "" {
		o.SearchType = models.SearchAll
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// Session is one search widget instance. It is safe for concurrent use; the
// debounce timer and request completions run on their own goroutines.
type Session struct {
	backend Backend
	opts    Options
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	debouncer *Debouncer

	mu              sync.Mutex
	query           string
	suggestions     []models.SearchSuggestion
	showSuggestions bool
	results         []models.Property
	hasSearched     bool
	loading         bool
	suggestSeq      uint64
	searchSeq       uint64
	version         uint64
	closed          bool
	unsubscribe     func()

	emitMu      sync.Mutex
	lastEmitted uint64
}

// NewSession creates a session bound to backend.
func NewSession(backend Backend, opts Options) *Session {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		backend:     backend,
		opts:        opts,
		log:         opts.Logger,
		ctx:         ctx,
		cancel:      cancel,
		debouncer:   NewDebouncer(opts.Debounce),
		query:       opts.InitialQuery,
		hasSearched: opts.InitialHasSearched,
	}
	if len(opts.InitialResults) > 0 {
		s.results = append([]models.Property(nil), opts.InitialResults...)
	}
	return s
}

// Mount subscribes the session to pointer-downs on doc so clicks outside the
// input and the suggestion panel hide the suggestions. Close unsubscribes.
func (s *Session) Mount(doc *Document) {
	remove := doc.AddPointerDownListener(s.pointerDown)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		remove()
		return
	}
	prev := s.unsubscribe
	s.unsubscribe = remove
	s.mu.Unlock()

	if prev != nil {
		prev()
	}
}

// Close stops pending timers, abandons in-flight requests and removes the
// document subscription. Later calls on the session are no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	remove := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	s.cancel()
	s.debouncer.Cancel()
	if remove != nil {
		remove()
	}
}

// Input records new query text. A changed value clears any completed search
// before anything else happens and schedules a debounced suggestion fetch.
func (s *Session) Input(value string) {
	s.mu.Lock()
	if s.closed || value == s.query {
		s.mu.Unlock()
		return
	}

	s.query = value
	s.showSuggestions = false
	if s.hasSearched || s.loading {
		s.hasSearched = false
		s.loading = false
		s.results = nil
		s.searchSeq++
	}

	if s.tooShort(value) {
		s.suggestions = nil
		s.suggestSeq++
		s.debouncer.Cancel()
	} else {
		s.debouncer.Trigger(s.fetchSuggestions)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(snap)
}

func (s *Session) fetchSuggestions() {
	s.mu.Lock()
	if s.closed || s.tooShort(s.query) || s.hasResultsLocked() {
		s.mu.Unlock()
		return
	}
	s.suggestSeq++
	token := s.suggestSeq
	query := s.query
	s.mu.Unlock()

	got, err := s.backend.AutocompleteSuggestions(s.ctx, query, s.opts.SuggestionLimit)

	s.mu.Lock()
	if s.closed || token != s.suggestSeq || s.tooShort(s.query) || s.hasResultsLocked() {
		s.mu.Unlock()
		s.log.Debug("discarding stale suggestions", slog.String("query", query))
		return
	}
	if err != nil {
		s.suggestions = nil
		s.mu.Unlock()
		s.log.Warn("get suggestions failed", slog.String("query", query), slog.Any("err", err))
		s.emit(s.Snapshot())
		return
	}
	s.suggestions = got
	s.showSuggestions = true
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(snap)
}

// Search runs a full search with the current raw query.
func (s *Session) Search(ctx context.Context) []models.Property {
	s.mu.Lock()
	query := s.query
	s.mu.Unlock()
	return s.SearchFor(ctx, query)
}

// SearchFor runs a full search for query, bypassing the debounce. Failures
// produce an empty result set. It returns nil when the query is blank or when
// a later Input, Clear or search superseded this one.
func (s *Session) SearchFor(ctx context.Context, query string) []models.Property {
	if strings.TrimSpace(query) == "" {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	s.hasSearched = true
	s.showSuggestions = false
	s.results = nil
	s.suggestSeq++
	s.debouncer.Cancel()
	s.searchSeq++
	token := s.searchSeq
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)

	results, err := s.backend.SearchProperties(ctx, query, s.opts.SearchType, s.opts.ResultLimit)
	if err != nil {
		s.log.Warn("search failed", slog.String("query", query), slog.Any("err", err))
		results = nil
	}
	if results == nil {
		results = []models.Property{}
	}

	s.mu.Lock()
	if s.closed || token != s.searchSeq {
		s.mu.Unlock()
		s.log.Debug("discarding superseded search", slog.String("query", query))
		return nil
	}
	s.results = results
	s.loading = false
	snap = s.snapshotLocked()
	s.mu.Unlock()

	if fn := s.opts.Callbacks.OnSearchResults; fn != nil {
		fn(query, cloneProperties(results))
	}
	s.emit(snap)
	return cloneProperties(results)
}

// SelectSuggestion searches for the address part of the suggestion.
func (s *Session) SelectSuggestion(ctx context.Context, sug models.SearchSuggestion) []models.Property {
	query := SuggestionAddress(sug.Display)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.query = query
	s.showSuggestions = false
	s.suggestSeq++
	s.debouncer.Cancel()
	s.mu.Unlock()

	if fn := s.opts.Callbacks.OnSuggestionSelect; fn != nil {
		fn(query)
	}
	return s.SearchFor(ctx, query)
}

// SelectSuggestionAt selects the i-th current suggestion. ok is false when no
// such suggestion is visible.
func (s *Session) SelectSuggestionAt(ctx context.Context, i int) (results []models.Property, ok bool) {
	s.mu.Lock()
	if i < 0 || i >= len(s.suggestions) || !s.suggestionsVisibleLocked() {
		s.mu.Unlock()
		return nil, false
	}
	sug := s.suggestions[i]
	s.mu.Unlock()

	return s.SelectSuggestion(ctx, sug), true
}

// SelectResult hands a result item to the owner.
func (s *Session) SelectResult(p models.Property) {
	if fn := s.opts.Callbacks.OnPropertySelect; fn != nil {
		fn(p)
	}
}

// SelectResultAt selects the i-th result of the current result set.
func (s *Session) SelectResultAt(i int) (models.Property, bool) {
	s.mu.Lock()
	if !s.hasSearched || i < 0 || i >= len(s.results) {
		s.mu.Unlock()
		return models.Property{}, false
	}
	p := s.results[i]
	s.mu.Unlock()

	s.SelectResult(p)
	return p, true
}

// Clear resets query, suggestions and results and notifies the owner.
func (s *Session) Clear() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.query = ""
	s.suggestions = nil
	s.showSuggestions = false
	s.results = nil
	s.hasSearched = false
	s.loading = false
	s.suggestSeq++
	s.searchSeq++
	s.debouncer.Cancel()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if fn := s.opts.Callbacks.OnClear; fn != nil {
		fn()
	}
	s.emit(snap)
}

func (s *Session) pointerDown(target Target) {
	if target == TargetInput || target == TargetSuggestions {
		return
	}

	s.mu.Lock()
	if s.closed || !s.showSuggestions {
		s.mu.Unlock()
		return
	}
	s.showSuggestions = false
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(snap)
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	s.version++
	snap := Snapshot{
		Version:            s.version,
		Query:              s.query,
		Suggestions:        append([]models.SearchSuggestion(nil), s.suggestions...),
		SuggestionsVisible: s.suggestionsVisibleLocked(),
		Results:            cloneProperties(s.results),
		HasSearched:        s.hasSearched,
		Loading:            s.loading,
	}
	snap.State = deriveState(snap)
	return snap
}

// emit forwards snap to OnChange unless a newer snapshot was already sent.
func (s *Session) emit(snap Snapshot) {
	fn := s.opts.Callbacks.OnChange
	if fn == nil {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if snap.Version <= s.lastEmitted {
		return
	}
	s.lastEmitted = snap.Version
	fn(snap)
}

func (s *Session) suggestionsVisibleLocked() bool {
	return s.showSuggestions && !s.hasSearched && len(s.suggestions) > 0
}

func (s *Session) hasResultsLocked() bool {
	return s.hasSearched && len(s.results) > 0
}

func (s *Session) tooShort(q string) bool {
	return utf8.RuneCountInString(q) < s.opts.MinQueryLength
}

func cloneProperties(in []models.Property) []models.Property {
	if in == nil {
		return nil
	}
	return append(make([]models.Property, 0, len(in)), in...)
}
