package annotation

import (
	"sync"
	"time"

	"github.com/golang/geo/r2"
)

// Annotation is what the overlay engine reads: an identity, the current
// elements and a notification fired whenever the elements were (re)fetched.
type Annotation interface {
	ID() string
	Elements() []Element
	OnFetched(fn func()) (cancel func())
}

// Viewable is implemented by annotations that page their elements by the
// visible region of the image.
type Viewable interface {
	SetView(bounds r2.Rect, zoom, zoomMax float64)
}

// Info describes an annotation without its elements.
type Info struct {
	ID          string    `json:"id"`
	ItemID      string    `json:"itemId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Created     time.Time `json:"created"`
}

// Model is an in-memory Annotation.
type Model struct {
	mu       sync.RWMutex
	info     Info
	elements []Element

	nextSub uint64
	fetched map[uint64]func()
}

// NewModel creates a model holding a copy of elements.
func NewModel(info Info, elements []Element) *Model {
	m := &Model{
		info:    info,
		fetched: make(map[uint64]func()),
	}
	m.elements = append([]Element(nil), elements...)
	return m
}

func (m *Model) ID() string {
	return m.info.ID
}

func (m *Model) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.info
}

// Elements returns a copy of the current elements.
func (m *Model) Elements() []Element {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Element(nil), m.elements...)
}

// SetElements replaces the elements and fires the fetched notification.
func (m *Model) SetElements(elements []Element) {
	m.mu.Lock()
	m.elements = append([]Element(nil), elements...)
	m.mu.Unlock()
	m.notifyFetched()
}

// AddElement appends one element and fires the fetched notification.
func (m *Model) AddElement(e Element) {
	m.mu.Lock()
	m.elements = append(m.elements, e)
	m.mu.Unlock()
	m.notifyFetched()
}

func (m *Model) OnFetched(fn func()) func() {
	m.mu.Lock()
	m.nextSub++
	id := m.nextSub
	m.fetched[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.fetched, id)
		m.mu.Unlock()
	}
}

// FetchedListeners returns the number of fetched subscriptions.
func (m *Model) FetchedListeners() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.fetched)
}

func (m *Model) notifyFetched() {
	m.mu.RLock()
	fns := make([]func(), 0, len(m.fetched))
	for id := uint64(1); id <= m.nextSub; id++ {
		if fn, ok := m.fetched[id]; ok {
			fns = append(fns, fn)
		}
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}
