package search

import "sync"

// Target says where a pointer-down landed relative to the search widget.
type Target int

const (
	TargetOutside Target = iota
	TargetInput
	TargetSuggestions
)

// ParseTarget maps wire names to targets; unknown names count as outside.
func ParseTarget(raw string) Target {
	switch raw {
	case "input":
		return TargetInput
	case "suggestions":
		return TargetSuggestions
	default:
		return TargetOutside
	}
}

// Document dispatches page-wide pointer events to subscribed listeners. One
// Document exists per connected page.
type Document struct {
	mu        sync.Mutex
	next      int
	listeners map[int]func(Target)
}

// NewDocument returns a document without listeners.
func NewDocument() *Document {
	return &Document{listeners: make(map[int]func(Target))}
}

// AddPointerDownListener subscribes fn and returns the function that removes it.
// The remover is idempotent.
func (d *Document) AddPointerDownListener(fn func(Target)) (remove func()) {
	d.mu.Lock()
	id := d.next
	d.next++
	d.listeners[id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.listeners, id)
			d.mu.Unlock()
		})
	}
}

// PointerDown delivers a pointer-down event to every listener.
func (d *Document) PointerDown(target Target) {
	d.mu.Lock()
	fns := make([]func(Target), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn(target)
	}
}

// ListenerCount returns the number of live subscriptions.
func (d *Document) ListenerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}
