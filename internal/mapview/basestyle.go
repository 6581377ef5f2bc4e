package mapview

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
)

// StyleSource loads the base style document.
type StyleSource interface {
	LoadStyle(ctx context.Context) (*Style, error)
}

const stylesAPI = "https://api.mapbox.com/styles/v1/"

// ResolveStyleURL turns a mapbox://styles/<owner>/<id> reference into a
// Styles API URL. Other values are returned unchanged.
func ResolveStyleURL(ref, token string) (string, error) {
	rest, ok := strings.CutPrefix(ref, "mapbox://styles/")
	if !ok {
		return ref, nil
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("malformed style reference %q", ref)
	}
	if token == "" {
		return "", fmt.Errorf("style %q needs an access token", ref)
	}
	return stylesAPI + url.PathEscape(parts[0]) + "/" + url.PathEscape(parts[1]) +
		"?access_token=" + url.QueryEscape(token), nil
}

// RemoteStyle fetches a style over HTTP or reads it from a local file. The
// first successful load is cached.
type RemoteStyle struct {
	ref        string
	token      string
	httpClient *http.Client

	mu     sync.Mutex
	cached *Style
}

func NewRemoteStyle(ref, token string, httpClient *http.Client) *RemoteStyle {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RemoteStyle{ref: ref, token: token, httpClient: httpClient}
}

func (s *RemoteStyle) LoadStyle(ctx context.Context) (*Style, error) {
	s.mu.Lock()
	cached := s.cached
	s.mu.Unlock()
	if cached != nil {
		return cached.Clone()
	}

	target, err := ResolveStyleURL(s.ref, s.token)
	if err != nil {
		return nil, err
	}

	var raw []byte
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		raw, err = s.fetch(ctx, target)
	} else {
		raw, err = os.ReadFile(target)
	}
	if err != nil {
		return nil, fmt.Errorf("load style %s: %w", s.ref, err)
	}

	var style Style
	if err := json.Unmarshal(raw, &style); err != nil {
		return nil, fmt.Errorf("decode style %s: %w", s.ref, err)
	}
	if style.Sources == nil {
		style.Sources = make(map[string]json.RawMessage)
	}

	s.mu.Lock()
	s.cached = &style
	s.mu.Unlock()
	return style.Clone()
}

func (s *RemoteStyle) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// StaticStyle is a fixed base style.
type StaticStyle struct{ Style *Style }

func (s StaticStyle) LoadStyle(context.Context) (*Style, error) {
	return s.Style.Clone()
}
