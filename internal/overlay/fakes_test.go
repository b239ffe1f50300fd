package overlay

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/paulmach/orb/geojson"

	"github.com/tilescope/tilescope/backend-go/internal/annotation"
	"github.com/tilescope/tilescope/backend-go/internal/events"
	"github.com/tilescope/tilescope/backend-go/internal/render"
)

type fakeViewer struct {
	zoom    float64
	bounds  r2.Rect
	zoomMax float64
	draws   int
}

func (v *fakeViewer) Zoom() float64                 { return v.zoom }
func (v *fakeViewer) Bounds() r2.Rect               { return v.bounds }
func (v *fakeViewer) ZoomRange() (float64, float64) { return 0, v.zoomMax }
func (v *fakeViewer) Draw()                         { v.draws++ }

type fakeFeature struct {
	typ       render.FeatureType
	data      []render.Datum
	styles    map[string][]float64
	updates   map[string]int
	selection bool
	handlers  []func(render.EventData)
	events    []render.FeatureEvent
}

func (f *fakeFeature) Type() render.FeatureType { return f.typ }
func (f *fakeFeature) Data() []render.Datum     { return f.data }
func (f *fakeFeature) SetSelectionAPI(on bool)  { f.selection = on }

func (f *fakeFeature) UpdateStyleFromArray(key string, values []float64) {
	f.styles[key] = values
	f.updates[key]++
}

func (f *fakeFeature) On(evts []render.FeatureEvent, fn func(render.EventData)) {
	f.events = append(f.events, evts...)
	f.handlers = append(f.handlers, fn)
}

func (f *fakeFeature) emit(evt render.FeatureEvent, index int) {
	for _, h := range f.handlers {
		h(render.EventData{Event: evt, Index: index, Datum: f.data[index], X: 1, Y: 2})
	}
}

type fakeLayer struct {
	live    map[*fakeFeature]bool
	deleted int
	draws   int
}

func newFakeLayer() *fakeLayer {
	return &fakeLayer{live: make(map[*fakeFeature]bool)}
}

// CreateFeatures groups by feature type in first-seen order, like a GeoJSON reader.
func (l *fakeLayer) CreateFeatures(fc *geojson.FeatureCollection) []render.Feature {
	byType := map[render.FeatureType]*fakeFeature{}
	var out []render.Feature
	for _, gf := range fc.Features {
		ft, ok := render.FeatureTypeOf(gf.Geometry)
		if !ok {
			continue
		}
		f, ok := byType[ft]
		if !ok {
			f = &fakeFeature{typ: ft, styles: map[string][]float64{}, updates: map[string]int{}}
			byType[ft] = f
			l.live[f] = true
			out = append(out, f)
		}
		f.data = append(f.data, render.Datum{ID: fmt.Sprint(gf.ID), Geometry: gf.Geometry, Properties: gf.Properties})
	}
	return out
}

func (l *fakeLayer) DeleteFeature(f render.Feature) {
	delete(l.live, f.(*fakeFeature))
	l.deleted++
}

func (l *fakeLayer) Draw() { l.draws++ }

type fakeCapture struct {
	mode      render.ShapeKind
	modes     []render.ShapeKind
	listeners map[int]func(render.Shape)
	next      int
	removed   int
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{listeners: make(map[int]func(render.Shape))}
}

func (c *fakeCapture) SetMode(k render.ShapeKind) {
	c.mode = k
	c.modes = append(c.modes, k)
}

func (c *fakeCapture) Mode() render.ShapeKind { return c.mode }
func (c *fakeCapture) RemoveAllAnnotations()  { c.removed++ }

func (c *fakeCapture) OnStateChange(fn func(render.Shape)) func() {
	c.next++
	id := c.next
	c.listeners[id] = fn
	return func() { delete(c.listeners, id) }
}

// finish notifies the listeners registered before the call, in order.
func (c *fakeCapture) finish(s render.Shape) {
	s.State = render.StateDone
	var fns []func(render.Shape)
	for id := 1; id <= c.next; id++ {
		if fn, ok := c.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	for _, fn := range fns {
		fn(s)
	}
}

type harness struct {
	engine  *Engine
	viewer  *fakeViewer
	layer   *fakeLayer
	capture *fakeCapture
	bus     *events.Bus
}

func newHarness(opts ...Option) *harness {
	h := &harness{
		viewer:  &fakeViewer{zoom: 2, zoomMax: 5, bounds: r2.RectFromPoints(r2.Point{}, r2.Point{X: 800, Y: 600})},
		layer:   newFakeLayer(),
		capture: newFakeCapture(),
		bus:     events.NewBus(),
	}
	n := 0
	opts = append([]Option{WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("el_%d", n)
	})}, opts...)
	h.engine = New(h.viewer, h.layer, h.capture, h.bus, opts...)
	return h
}

func (h *harness) record(topic string) *[]any {
	var got []any
	h.bus.Subscribe(topic, func(p any) { got = append(got, p) })
	return &got
}

// viewableModel counts SetView calls.
type viewableModel struct {
	*annotation.Model
	views []r2.Rect
}

func (m *viewableModel) SetView(bounds r2.Rect, zoom, zoomMax float64) {
	m.views = append(m.views, bounds)
}

func circle(id string, x, y, fill, stroke float64) annotation.Element {
	return annotation.Element{
		ID:            id,
		Type:          annotation.KindCircle,
		Center:        []float64{x, y, 0},
		Radius:        4,
		FillOpacity:   fill,
		StrokeOpacity: stroke,
	}
}

func square(id string, x, y float64) annotation.Element {
	return annotation.Element{
		ID:            id,
		Type:          annotation.KindRectangle,
		Center:        []float64{x, y, 0},
		Width:         10,
		Height:        10,
		FillOpacity:   0.5,
		StrokeOpacity: 1,
	}
}

func model(id string, elements ...annotation.Element) *annotation.Model {
	return annotation.NewModel(annotation.Info{ID: id}, elements)
}
