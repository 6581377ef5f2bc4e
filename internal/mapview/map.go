// Package mapview composes the property map: camera, navigation control,
// marker icon and dataset, and the extruded building layer.
package mapview

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"sync"
)

// Camera is the initial view of the map.
type Camera struct {
	Center    Coordinate `json:"center"`
	Zoom      float64    `json:"zoom"`
	Pitch     float64    `json:"pitch"`
	Bearing   float64    `json:"bearing"`
	Antialias bool       `json:"antialias"`
}

// Control is a UI control attached to the map.
type Control struct {
	Type        string `json:"type"`
	Position    string `json:"position,omitempty"`
	ShowZoom    bool   `json:"show_zoom"`
	ShowCompass bool   `json:"show_compass"`
}

// NavigationControl is the zoom and rotate control.
func NavigationControl() Control {
	return Control{Type: "navigation", Position: "top-right", ShowZoom: true, ShowCompass: true}
}

// Image is a registered icon. Data holds the encoded PNG.
type Image struct {
	Width  int
	Height int
	Data   []byte
	Img    image.Image
}

// Map is what the construction sequence needs from a map view.
type Map interface {
	AddControl(c Control)
	AddImage(name string, img Image) error
	AddSource(id string, source any) error
	// AddLayer inserts layer before the layer beforeID, or on top when
	// beforeID is empty or unknown.
	AddLayer(layer Layer, beforeID string) error
	// Style is nil until the base style has loaded.
	Style() *Style
	// OnStyleLoad runs fn once the base style has loaded, immediately if it
	// already has.
	OnStyleLoad(fn func())
}

var (
	ErrDuplicate    = errors.New("already exists")
	ErrUnknownImage = errors.New("unknown image")
)

type pendingLayer struct {
	layer    Layer
	beforeID string
}

// StyleMap is an in-memory Map. Sources and layers added before the base
// style loads are queued and applied on top of it.
type StyleMap struct {
	mu       sync.Mutex
	camera   Camera
	controls []Control
	images   map[string]Image
	sources  map[string]json.RawMessage
	pending  []pendingLayer
	style    *Style
	onLoad   []func()
}

// NewStyleMap creates a map view with the given camera and no style.
func NewStyleMap(camera Camera) *StyleMap {
	return &StyleMap{
		camera:  camera,
		images:  make(map[string]Image),
		sources: make(map[string]json.RawMessage),
	}
}

func (m *StyleMap) Camera() Camera {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.camera
}

func (m *StyleMap) AddControl(c Control) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.controls = append(m.controls, c)
}

func (m *StyleMap) Controls() []Control {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Control(nil), m.controls...)
}

func (m *StyleMap) AddImage(name string, img Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.images[name]; ok {
		return fmt.Errorf("image %q: %w", name, ErrDuplicate)
	}
	m.images[name] = img
	return nil
}

// Image returns a registered image by name.
func (m *StyleMap) Image(name string) (Image, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[name]
	return img, ok
}

// ImageNames lists registered images.
func (m *StyleMap) ImageNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.images))
	for name := range m.images {
		names = append(names, name)
	}
	return names
}

func (m *StyleMap) AddSource(id string, source any) error {
	raw, err := json.Marshal(source)
	if err != nil {
		return fmt.Errorf("marshal source %q: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[id]; ok {
		return fmt.Errorf("source %q: %w", id, ErrDuplicate)
	}
	if m.style != nil {
		if _, ok := m.style.Sources[id]; ok {
			return fmt.Errorf("source %q: %w", id, ErrDuplicate)
		}
		m.style.Sources[id] = raw
	}
	m.sources[id] = raw
	return nil
}

func (m *StyleMap) AddLayer(layer Layer, beforeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.style == nil {
		for _, p := range m.pending {
			if p.layer.ID == layer.ID {
				return fmt.Errorf("layer %q: %w", layer.ID, ErrDuplicate)
			}
		}
		m.pending = append(m.pending, pendingLayer{layer: layer, beforeID: beforeID})
		return nil
	}
	return m.insertLocked(layer, beforeID)
}

func (m *StyleMap) insertLocked(layer Layer, beforeID string) error {
	if m.style.LayerIndex(layer.ID) >= 0 {
		return fmt.Errorf("layer %q: %w", layer.ID, ErrDuplicate)
	}
	if layer.Type == "symbol" && layer.Layout != nil {
		if name, ok := layer.Layout["icon-image"].(string); ok {
			if _, ok := m.images[name]; !ok {
				return fmt.Errorf("layer %q icon %q: %w", layer.ID, name, ErrUnknownImage)
			}
		}
	}

	idx := -1
	if beforeID != "" {
		idx = m.style.LayerIndex(beforeID)
	}
	if idx < 0 {
		m.style.Layers = append(m.style.Layers, layer)
		return nil
	}
	m.style.Layers = append(m.style.Layers, Layer{})
	copy(m.style.Layers[idx+1:], m.style.Layers[idx:])
	m.style.Layers[idx] = layer
	return nil
}

// Style returns a copy of the active style, or nil before it has loaded.
func (m *StyleMap) Style() *Style {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.style == nil {
		return nil
	}
	cp, err := m.style.Clone()
	if err != nil {
		return nil
	}
	return cp
}

func (m *StyleMap) OnStyleLoad(fn func()) {
	m.mu.Lock()
	if m.style == nil {
		m.onLoad = append(m.onLoad, fn)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	fn()
}

// Loaded reports whether the base style has been set.
func (m *StyleMap) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.style != nil
}

// LoadStyle installs the base style, applies queued sources and layers, then
// runs the load callbacks in registration order. A style can load only once.
func (m *StyleMap) LoadStyle(base *Style) error {
	if base == nil {
		return errors.New("nil style")
	}
	style, err := base.Clone()
	if err != nil {
		return err
	}
	if style.Sources == nil {
		style.Sources = make(map[string]json.RawMessage)
	}

	m.mu.Lock()
	if m.style != nil {
		m.mu.Unlock()
		return errors.New("style already loaded")
	}
	for id, raw := range m.sources {
		style.Sources[id] = raw
	}
	m.style = style

	var errs []error
	for _, p := range m.pending {
		if err := m.insertLocked(p.layer, p.beforeID); err != nil {
			errs = append(errs, err)
		}
	}
	m.pending = nil
	callbacks := m.onLoad
	m.onLoad = nil
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
	return errors.Join(errs...)
}
