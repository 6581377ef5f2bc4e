package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DeafMist/parcel-search/internal/models"
	"github.com/DeafMist/parcel-search/internal/search"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsOutboxSize   = 32
)

// clientMessage is sent by the search page.
type clientMessage struct {
	Type   string `json:"type"` // input, search, select_suggestion, select_result, clear, pointer_down
	Query  string `json:"query,omitempty"`
	Index  int    `json:"index,omitempty"`
	Target string `json:"target,omitempty"`
}

type suggestionView struct {
	PIN      string `json:"pin,omitempty"`
	Display  string `json:"display"`
	Address  string `json:"address"`
	Subtitle string `json:"subtitle"`
	Type     string `json:"type,omitempty"`
}

type stateView struct {
	Version            uint64            `json:"version"`
	State              string            `json:"state"`
	Query              string            `json:"query"`
	Suggestions        []suggestionView  `json:"suggestions"`
	SuggestionsVisible bool              `json:"suggestions_visible"`
	Results            []models.Property `json:"results"`
	HasSearched        bool              `json:"has_searched"`
	Loading            bool              `json:"loading"`
	Heading            string            `json:"heading"`
}

// serverMessage is pushed to the search page.
type serverMessage struct {
	Type     string           `json:"type"` // state, select, error
	State    *stateView       `json:"state,omitempty"`
	Property *models.Property `json:"property,omitempty"`
	URL      string           `json:"url,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func newStateView(snap search.Snapshot) *stateView {
	sugs := make([]suggestionView, 0, len(snap.Suggestions))
	for _, s := range snap.Suggestions {
		sugs = append(sugs, suggestionView{
			PIN:      s.PIN,
			Display:  s.Display,
			Address:  search.SuggestionAddress(s.Display),
			Subtitle: search.SuggestionSubtitle(s.Display),
			Type:     s.Type,
		})
	}
	results := snap.Results
	if results == nil {
		results = []models.Property{}
	}
	return &stateView{
		Version:            snap.Version,
		State:              snap.State.String(),
		Query:              snap.Query,
		Suggestions:        sugs,
		SuggestionsVisible: snap.SuggestionsVisible,
		Results:            results,
		HasSearched:        snap.HasSearched,
		Loading:            snap.Loading,
		Heading:            snap.Heading(),
	}
}

// handleSearchWS runs one search session per connection. A q parameter
// restores the results of a previous visit.
func (s *server) handleSearchWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", slog.Any("err", err))
		return
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbox := make(chan serverMessage, wsOutboxSize)
	send := func(m serverMessage) {
		select {
		case outbox <- m:
		case <-ctx.Done():
		}
	}

	var writers sync.WaitGroup
	writers.Add(1)
	go func() {
		defer writers.Done()
		s.writeLoop(ctx, cancel, conn, outbox)
	}()

	opts := search.Options{
		Debounce:        s.cfg.Search.Debounce,
		MinQueryLength:  s.cfg.Search.MinQueryLength,
		SuggestionLimit: s.cfg.Search.SuggestionLimit,
		ResultLimit:     s.cfg.Search.ResultLimit,
		Logger:          s.log,
	}
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		opts.InitialQuery = q
		opts.InitialHasSearched = true
		results, err := s.api.SearchProperties(ctx, q, models.SearchAll, opts.ResultLimit)
		if err != nil {
			s.log.Warn("restore search failed", slog.String("query", q), slog.Any("err", err))
		}
		opts.InitialResults = results
	}

	var callbacks search.Callbacks
	callbacks.OnChange = func(snap search.Snapshot) {
		send(serverMessage{Type: "state", State: newStateView(snap)})
	}
	var sess *search.Session
	callbacks.OnPropertySelect = func(p models.Property) {
		snap := sess.Snapshot()
		send(serverMessage{
			Type:     "select",
			Property: &p,
			URL:      detailsURL(p.PIN, snap.Query),
		})
	}

	var recording string
	if s.recorder != nil {
		rs := s.recorder.NewSession()
		recording = rs.ID()
		callbacks = rs.Callbacks(callbacks)
	}
	opts.Callbacks = callbacks

	sess = search.NewSession(s.api, opts)
	doc := search.NewDocument()
	sess.Mount(doc)

	log := s.log.With(slog.String("session", recording))
	log.Debug("search session opened")

	var running sync.WaitGroup
	defer func() {
		sess.Close()
		cancel()
		running.Wait()
		writers.Wait()
		log.Debug("search session closed")
	}()

	send(serverMessage{Type: "state", State: newStateView(sess.Snapshot())})

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket read", slog.Any("err", err))
			}
			return
		}

		switch msg.Type {
		case "input":
			sess.Input(msg.Query)
		case "search":
			running.Add(1)
			go func() {
				defer running.Done()
				sess.Search(ctx)
			}()
		case "select_suggestion":
			idx := msg.Index
			running.Add(1)
			go func() {
				defer running.Done()
				sess.SelectSuggestionAt(ctx, idx)
			}()
		case "select_result":
			sess.SelectResultAt(msg.Index)
		case "clear":
			sess.Clear()
		case "pointer_down":
			doc.PointerDown(search.ParseTarget(msg.Target))
		default:
			send(serverMessage{Type: "error", Error: "unknown message type " + msg.Type})
		}
	}
}

// wsWriter is the write side of a websocket connection.
type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// writeLoop drains outbox until ctx ends. A failed write cancels ctx and
// closes the connection, which unblocks senders and the read loop.
func (s *server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn wsWriter, outbox <-chan serverMessage) {
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case m := <-outbox:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(m); err != nil {
				s.log.Debug("websocket write", slog.Any("err", err))
				cancel()
				_ = conn.Close()
				return
			}
		}
	}
}

// detailsURL carries the query along so the back link can restore the results.
func detailsURL(pin, query string) string {
	u := "/properties/" + url.PathEscape(pin)
	if q := strings.TrimSpace(query); q != "" {
		u += "?q=" + url.QueryEscape(q)
	}
	return u
}
