// Package overlay draws annotations on top of a tiled image viewer. It keeps
// the registry of rendered annotations, dims everything but the highlighted
// annotation or element, keeps paged annotations in step with the viewport
// and runs the interactive draw mode.
//
// An Engine is not safe for concurrent use; it is driven from the viewer's
// event loop.
package overlay

import (
	"log/slog"

	"github.com/tilescope/tilescope/backend-go/internal/annotation"
	"github.com/tilescope/tilescope/backend-go/internal/events"
	"github.com/tilescope/tilescope/backend-go/internal/render"
	"github.com/tilescope/tilescope/backend-go/internal/typeid"
)

var mouseTopics = map[render.FeatureEvent]string{
	render.EventMouseClick: events.TopicMouseClick,
	render.EventMouseOn:    events.TopicMouseOn,
	render.EventMouseOff:   events.TopicMouseOff,
	render.EventMouseOver:  events.TopicMouseOver,
	render.EventMouseOut:   events.TopicMouseOut,
}

// entry is one drawn annotation.
type entry struct {
	annotation annotation.Annotation
	features   []render.Feature
	fetch      bool
}

// Engine is the annotation overlay of one viewer.
type Engine struct {
	viewer  render.Viewer
	layer   render.FeatureLayer
	capture render.AnnotationLayer
	bus     *events.Bus
	log     *slog.Logger

	hoverEvents bool
	newID       func() string

	entries map[string]*entry
	fetched map[string]func()
	opacity *OpacityStore
	target  Target
	session *drawSession
}

// Option configures an Engine.
type Option func(*Engine)

// WithSizeLimit sets the largest feature whose elements can be highlighted.
func WithSizeLimit(n int) Option {
	return func(e *Engine) { e.opacity = NewOpacityStore(n) }
}

// WithHoverEvents toggles the renderer's per-feature selection API.
func WithHoverEvents(enabled bool) Option {
	return func(e *Engine) { e.hoverEvents = enabled }
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithIDGenerator replaces the generator of ids for drawn elements.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// New creates an engine over the viewer's feature and capture layers.
func New(viewer render.Viewer, layer render.FeatureLayer, capture render.AnnotationLayer, bus *events.Bus, opts ...Option) *Engine {
	e := &Engine{
		viewer:      viewer,
		layer:       layer,
		capture:     capture,
		bus:         bus,
		log:         slog.Default(),
		hoverEvents: true,
		newID:       typeid.NewElementID,
		entries:     make(map[string]*entry),
		fetched:     make(map[string]func()),
		opacity:     NewOpacityStore(DefaultSizeLimit),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type drawOptions struct {
	fetch bool
}

// DrawOption adjusts a single Draw call.
type DrawOption func(*drawOptions)

// WithoutFetch draws the annotation as it is, without paging it by view.
func WithoutFetch() DrawOption {
	return func(o *drawOptions) { o.fetch = false }
}

// --- Commands ---

// Draw renders an annotation, replacing whatever was drawn for it before.
func (e *Engine) Draw(a annotation.Annotation, opts ...DrawOption) {
	o := drawOptions{fetch: true}
	for _, opt := range opts {
		opt(&o)
	}

	id := a.ID()
	prev, present := e.entries[id]
	if present {
		for _, f := range prev.features {
			e.layer.DeleteFeature(f)
		}
	}

	ent := &entry{annotation: a, fetch: o.fetch}
	e.entries[id] = ent

	e.opacity.Reset(id)
	for _, f := range e.layer.CreateFeatures(annotation.GeoJSON(a)) {
		ent.features = append(ent.features, f)
		f.SetSelectionAPI(e.hoverEvents)
		f.On(render.FeatureEvents, e.onMouseFeature)
		if !e.opacity.Capture(id, f.Type(), opacitiesOf(f.Data())) {
			e.log.Debug("feature too large to highlight", "annotation", id, "type", f.Type(), "size", len(f.Data()))
		}
	}
	e.mutateForHighlight(id, ent.features)
	e.viewer.Draw()

	if o.fetch && !present {
		e.subscribeFetched(a)
		e.syncView(ent)
	}
}

// Remove takes an annotation off the overlay. Removing an annotation that
// is not drawn only announces the reset.
func (e *Engine) Remove(a annotation.Annotation) {
	id := a.ID()
	if cancel, ok := e.fetched[id]; ok {
		cancel()
		delete(e.fetched, id)
	}
	e.bus.Publish(events.TopicReset, events.ResetPayload{AnnotationID: id})

	ent, ok := e.entries[id]
	if !ok {
		return
	}
	for _, f := range ent.features {
		e.layer.DeleteFeature(f)
	}
	delete(e.entries, id)
	e.opacity.Delete(id)
	e.layer.Draw()
}

// Close ends any draw session and removes every drawn annotation,
// dropping their fetched subscriptions. The engine stays usable.
func (e *Engine) Close() {
	e.Stop()
	drawn := make([]annotation.Annotation, 0, len(e.entries))
	for _, ent := range e.entries {
		drawn = append(drawn, ent.annotation)
	}
	for _, a := range drawn {
		e.Remove(a)
	}
	for id, cancel := range e.fetched {
		cancel()
		delete(e.fetched, id)
	}
}

// Highlight dims everything except the given annotation, or only the
// given element when elementID is set. Empty ids clear the highlight.
func (e *Engine) Highlight(annotationID, elementID string) {
	e.target = Target{AnnotationID: annotationID, ElementID: elementID}
	for id, ent := range e.entries {
		e.mutateForHighlight(id, ent.features)
	}
	e.viewer.Draw()
}

func (e *Engine) subscribeFetched(a annotation.Annotation) {
	id := a.ID()
	if cancel, ok := e.fetched[id]; ok {
		cancel()
	}
	e.fetched[id] = a.OnFetched(func() {
		e.bus.Publish(events.TopicReset, events.ResetPayload{AnnotationID: id})
		e.Draw(a)
	})
}

func (e *Engine) onMouseFeature(evt render.EventData) {
	props := evt.Datum.Properties
	elementID, _ := props[annotation.PropElement].(string)
	annotationID, _ := props[annotation.PropAnnotation].(string)
	if elementID == "" || annotationID == "" {
		return
	}
	topic, ok := mouseTopics[evt.Event]
	if !ok {
		return
	}
	e.bus.Publish(topic, events.MousePayload{
		AnnotationID: annotationID,
		ElementID:    elementID,
		X:            evt.X,
		Y:            evt.Y,
	})
}

// --- Queries ---

// Drawn reports whether an annotation is currently drawn.
func (e *Engine) Drawn(annotationID string) bool {
	_, ok := e.entries[annotationID]
	return ok
}

// Features returns the rendered features of an annotation.
func (e *Engine) Features(annotationID string) []render.Feature {
	ent, ok := e.entries[annotationID]
	if !ok {
		return nil
	}
	return append([]render.Feature(nil), ent.features...)
}

// Target returns the current highlight.
func (e *Engine) Target() Target {
	return e.target
}

// Annotations returns the ids of every drawn annotation.
func (e *Engine) Annotations() []string {
	ids := make([]string, 0, len(e.entries))
	for id := range e.entries {
		ids = append(ids, id)
	}
	return ids
}

// Opacities returns the captured opacity snapshot of one feature type.
func (e *Engine) Opacities(annotationID string, ft render.FeatureType) ([]Opacity, bool) {
	return e.opacity.Get(annotationID, ft)
}
