// Package render declares what the overlay engine needs from a rendering
// toolkit: a viewer with a navigable viewport, a feature layer built from
// GeoJSON and an interactive capture layer for drawing new shapes.
package render

import (
	"github.com/golang/geo/r2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureType is the renderer-native primitive a feature draws.
type FeatureType string

const (
	FeaturePoint   FeatureType = "point"
	FeatureLine    FeatureType = "line"
	FeaturePolygon FeatureType = "polygon"
)

// FeatureTypeOf maps a GeoJSON geometry to the feature type drawing it.
func FeatureTypeOf(g orb.Geometry) (FeatureType, bool) {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return FeaturePoint, true
	case orb.LineString, orb.MultiLineString:
		return FeatureLine, true
	case orb.Polygon, orb.MultiPolygon:
		return FeaturePolygon, true
	}
	return "", false
}

// FeatureEvent names a pointer interaction reported by a feature.
type FeatureEvent string

const (
	EventMouseClick FeatureEvent = "mouseclick"
	EventMouseOn    FeatureEvent = "mouseon"
	EventMouseOff   FeatureEvent = "mouseoff"
	EventMouseOver  FeatureEvent = "mouseover"
	EventMouseOut   FeatureEvent = "mouseout"
)

// FeatureEvents lists every pointer event, in the order handlers are bound.
var FeatureEvents = []FeatureEvent{EventMouseClick, EventMouseOff, EventMouseOn, EventMouseOver, EventMouseOut}

// Datum is one rendered item of a feature.
type Datum struct {
	ID         string
	Geometry   orb.Geometry
	Properties geojson.Properties
}

// EventData accompanies a feature event.
type EventData struct {
	Event FeatureEvent
	Index int
	Datum Datum
	X, Y  float64 // image coordinates of the pointer
}

// Feature is a batch of data of one FeatureType drawn with per-datum style.
type Feature interface {
	Type() FeatureType
	Data() []Datum
	// UpdateStyleFromArray sets style key for every datum at once; values
	// are aligned with Data().
	UpdateStyleFromArray(key string, values []float64)
	SetSelectionAPI(enabled bool)
	On(events []FeatureEvent, fn func(EventData))
}

// FeatureLayer owns rendered features.
type FeatureLayer interface {
	// CreateFeatures builds one feature per FeatureType present in fc.
	CreateFeatures(fc *geojson.FeatureCollection) []Feature
	DeleteFeature(f Feature)
	Draw()
}

// Viewer exposes the navigable view of the image.
type Viewer interface {
	Zoom() float64
	Bounds() r2.Rect
	ZoomRange() (min, max float64)
	Draw()
}

// ShapeKind is an interactive capture mode.
type ShapeKind string

const (
	ShapeNone      ShapeKind = ""
	ShapePoint     ShapeKind = "point"
	ShapeLine      ShapeKind = "line"
	ShapeRectangle ShapeKind = "rectangle"
	ShapePolygon   ShapeKind = "polygon"
)

// ShapeState is the lifecycle of a captured shape.
type ShapeState string

const (
	StateCreate ShapeState = "create"
	StateDone   ShapeState = "done"
)

// Shape is a renderer-native interactively drawn shape. Rectangles carry
// their four corners in drawing order.
type Shape struct {
	Kind        ShapeKind
	State       ShapeState
	Coordinates []r2.Point
}

// AnnotationLayer captures shapes drawn by the user.
type AnnotationLayer interface {
	SetMode(kind ShapeKind)
	Mode() ShapeKind
	OnStateChange(fn func(Shape)) (cancel func())
	RemoveAllAnnotations()
}
