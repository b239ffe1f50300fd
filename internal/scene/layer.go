package scene

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/tilescope/tilescope/backend-go/internal/render"
)

// Style keys understood by features.
const (
	StyleFillOpacity   = "fillOpacity"
	StyleStrokeOpacity = "strokeOpacity"
)

const defaultPointRadius = 5

type binding struct {
	events map[render.FeatureEvent]bool
	fn     func(render.EventData)
}

// Feature is a retained batch of data of one feature type.
type Feature struct {
	typ       render.FeatureType
	data      []render.Datum
	styles    map[string][]float64
	selection bool
	bindings  []binding
}

func (f *Feature) Type() render.FeatureType { return f.typ }
func (f *Feature) Data() []render.Datum     { return f.data }
func (f *Feature) SetSelectionAPI(on bool)  { f.selection = on }

// UpdateStyleFromArray stores per-datum values for key. Arrays whose length
// does not match the data are ignored.
func (f *Feature) UpdateStyleFromArray(key string, values []float64) {
	if len(values) != len(f.data) {
		return
	}
	f.styles[key] = values
}

func (f *Feature) On(evts []render.FeatureEvent, fn func(render.EventData)) {
	set := make(map[render.FeatureEvent]bool, len(evts))
	for _, e := range evts {
		set[e] = true
	}
	f.bindings = append(f.bindings, binding{events: set, fn: fn})
}

// Style returns the style value of datum i, falling back to its property.
func (f *Feature) Style(key string, i int) float64 {
	if values, ok := f.styles[key]; ok {
		return values[i]
	}
	if v, ok := f.data[i].Properties[key].(float64); ok {
		return v
	}
	return 0
}

func (f *Feature) emit(evt render.FeatureEvent, i int, at r2.Point) {
	if !f.selection {
		return
	}
	data := render.EventData{Event: evt, Index: i, Datum: f.data[i], X: at.X, Y: at.Y}
	for _, b := range f.bindings {
		if b.events[evt] {
			b.fn(data)
		}
	}
}

// contains reports whether datum i is under p, with tolerance in image
// pixels for lines and points.
func (f *Feature) contains(i int, p r2.Point, tolerance float64) bool {
	d := f.data[i]
	pt := orb.Point{p.X, p.Y}
	switch g := d.Geometry.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, pt) || planar.DistanceFrom(g, pt) <= tolerance
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, pt)
	case orb.Point:
		radius := float64(defaultPointRadius)
		if v, ok := d.Properties["radius"].(float64); ok {
			radius = v
		}
		return planar.Distance(g, pt) <= radius+tolerance
	case orb.LineString, orb.MultiLineString, orb.MultiPoint:
		return planar.DistanceFrom(g, pt) <= tolerance
	}
	return false
}

// Hit is one datum under the pointer.
type Hit struct {
	Feature *Feature
	Index   int
}

// FeatureLayer holds the features of drawn annotations in paint order.
type FeatureLayer struct {
	features []*Feature
	draws    int

	hovered map[Hit]bool
	top     *Hit
}

func NewFeatureLayer() *FeatureLayer {
	return &FeatureLayer{hovered: make(map[Hit]bool)}
}

// CreateFeatures builds one feature per feature type found in fc, in the
// order types first appear.
func (l *FeatureLayer) CreateFeatures(fc *geojson.FeatureCollection) []render.Feature {
	byType := make(map[render.FeatureType]*Feature)
	var out []render.Feature
	for _, gf := range fc.Features {
		ft, ok := render.FeatureTypeOf(gf.Geometry)
		if !ok {
			continue
		}
		f, ok := byType[ft]
		if !ok {
			f = &Feature{typ: ft, styles: make(map[string][]float64)}
			byType[ft] = f
			l.features = append(l.features, f)
			out = append(out, f)
		}
		f.data = append(f.data, render.Datum{ID: datumID(gf.ID), Geometry: gf.Geometry, Properties: gf.Properties})
	}
	return out
}

func datumID(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (l *FeatureLayer) DeleteFeature(rf render.Feature) {
	f, ok := rf.(*Feature)
	if !ok {
		return
	}
	for i, existing := range l.features {
		if existing == f {
			l.features = append(l.features[:i], l.features[i+1:]...)
			break
		}
	}
	for h := range l.hovered {
		if h.Feature == f {
			delete(l.hovered, h)
		}
	}
	if l.top != nil && l.top.Feature == f {
		l.top = nil
	}
}

// Draw requests a repaint.
func (l *FeatureLayer) Draw() {
	l.draws++
}

// DrawCount returns how many repaints were requested.
func (l *FeatureLayer) DrawCount() int {
	return l.draws
}

// Features returns the retained features in paint order.
func (l *FeatureLayer) Features() []*Feature {
	return l.features
}

// HitTest returns the data under p, topmost first.
func (l *FeatureLayer) HitTest(p r2.Point, tolerance float64) []Hit {
	var hits []Hit
	for fi := len(l.features) - 1; fi >= 0; fi-- {
		f := l.features[fi]
		for i := len(f.data) - 1; i >= 0; i-- {
			if f.contains(i, p, tolerance) {
				hits = append(hits, Hit{Feature: f, Index: i})
			}
		}
	}
	return hits
}

// PointerMove updates hover state: mouseover/mouseout for every datum the
// pointer enters or leaves and mouseon/mouseoff when the topmost changes.
func (l *FeatureLayer) PointerMove(p r2.Point, tolerance float64) {
	hits := l.HitTest(p, tolerance)
	current := make(map[Hit]bool, len(hits))
	for _, h := range hits {
		current[h] = true
	}

	for h := range l.hovered {
		if !current[h] {
			h.Feature.emit(render.EventMouseOut, h.Index, p)
		}
	}
	for _, h := range hits {
		if !l.hovered[h] {
			h.Feature.emit(render.EventMouseOver, h.Index, p)
		}
	}
	l.hovered = current

	var top *Hit
	if len(hits) > 0 {
		top = &hits[0]
	}
	if sameHit(top, l.top) {
		return
	}
	if l.top != nil {
		l.top.Feature.emit(render.EventMouseOff, l.top.Index, p)
	}
	if top != nil {
		top.Feature.emit(render.EventMouseOn, top.Index, p)
	}
	l.top = top
}

// Click reports a mouseclick to every datum under p.
func (l *FeatureLayer) Click(p r2.Point, tolerance float64) int {
	hits := l.HitTest(p, tolerance)
	for _, h := range hits {
		h.Feature.emit(render.EventMouseClick, h.Index, p)
	}
	return len(hits)
}

func sameHit(a, b *Hit) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
