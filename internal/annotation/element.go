// Package annotation holds the annotation data model read by the overlay
// engine: annotations, their elements, the portable GeoJSON form handed to
// the renderer and the viewport-driven paging of large annotations.
package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
)

var ErrInvalidElement = errors.New("invalid element")

type Kind string

const (
	KindPoint     Kind = "point"
	KindPolyline  Kind = "polyline"
	KindRectangle Kind = "rectangle"
	KindEllipse   Kind = "ellipse"
	KindCircle    Kind = "circle"
)

// ellipseSegments is the number of ring vertices used to outline an ellipse.
const ellipseSegments = 32

type Label struct {
	Value string `json:"value"`
}

// Element is one shape of an annotation. Coordinates are image pixels; the
// optional third component of a point is the z plane and is carried through.
type Element struct {
	ID   string `json:"id,omitempty"`
	Type Kind   `json:"type"`

	Center   []float64   `json:"center,omitempty"`
	Width    float64     `json:"width,omitempty"`
	Height   float64     `json:"height,omitempty"`
	Rotation float64     `json:"rotation,omitempty"` // radians
	Radius   float64     `json:"radius,omitempty"`
	Points   [][]float64 `json:"points,omitempty"`
	Closed   bool        `json:"closed,omitempty"`

	LineColor     string  `json:"lineColor,omitempty"`
	LineWidth     float64 `json:"lineWidth,omitempty"`
	FillColor     string  `json:"fillColor,omitempty"`
	FillOpacity   float64 `json:"fillOpacity"`
	StrokeOpacity float64 `json:"strokeOpacity"`

	Label *Label         `json:"label,omitempty"`
	Group string         `json:"group,omitempty"`
	User  map[string]any `json:"user,omitempty"`
}

// UnmarshalJSON applies the paint defaults for fields missing from the
// input: a visible stroke and a transparent fill.
func (e *Element) UnmarshalJSON(data []byte) error {
	type plain Element
	p := plain{StrokeOpacity: 1}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = Element(p)
	return nil
}

// Validate checks that the geometry required by the element type is present.
func (e Element) Validate() error {
	switch e.Type {
	case KindPoint:
		if len(e.Center) < 2 {
			return fmt.Errorf("%w: point needs a center", ErrInvalidElement)
		}
	case KindCircle:
		if len(e.Center) < 2 || e.Radius <= 0 {
			return fmt.Errorf("%w: circle needs a center and a positive radius", ErrInvalidElement)
		}
	case KindRectangle, KindEllipse:
		if len(e.Center) < 2 || e.Width < 0 || e.Height < 0 {
			return fmt.Errorf("%w: %s needs a center and non-negative size", ErrInvalidElement, e.Type)
		}
	case KindPolyline:
		need := 2
		if e.Closed {
			need = 3
		}
		if len(e.Points) < need {
			return fmt.Errorf("%w: polyline needs at least %d points", ErrInvalidElement, need)
		}
		for i, p := range e.Points {
			if len(p) < 2 {
				return fmt.Errorf("%w: point %d has %d coordinates", ErrInvalidElement, i, len(p))
			}
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidElement, e.Type)
	}
	return nil
}

// Outline returns the vertices describing the element in image space:
// one vertex for points and circles, the open path for open polylines and
// the ring (without the closing vertex) for everything else.
func (e Element) Outline() []r2.Point {
	switch e.Type {
	case KindPoint, KindCircle:
		return []r2.Point{e.centerPoint()}
	case KindPolyline:
		pts := make([]r2.Point, len(e.Points))
		for i, p := range e.Points {
			pts[i] = r2.Point{X: p[0], Y: p[1]}
		}
		return pts
	case KindRectangle:
		c := e.centerPoint()
		hw, hh := e.Width/2, e.Height/2
		corners := []r2.Point{{X: -hw, Y: -hh}, {X: hw, Y: -hh}, {X: hw, Y: hh}, {X: -hw, Y: hh}}
		for i, p := range corners {
			corners[i] = c.Add(rotate(p, e.Rotation))
		}
		return corners
	case KindEllipse:
		c := e.centerPoint()
		pts := make([]r2.Point, ellipseSegments)
		for i := range pts {
			a := 2 * math.Pi * float64(i) / ellipseSegments
			p := r2.Point{X: e.Width / 2 * math.Cos(a), Y: e.Height / 2 * math.Sin(a)}
			pts[i] = c.Add(rotate(p, e.Rotation))
		}
		return pts
	}
	return nil
}

// Bounds returns the axis-aligned bounding box of the element.
func (e Element) Bounds() r2.Rect {
	pts := e.Outline()
	if len(pts) == 0 {
		return r2.EmptyRect()
	}
	r := r2.RectFromPoints(pts...)
	if e.Type == KindCircle {
		r = r.ExpandedByMargin(e.Radius)
	}
	return r
}

// Size is the larger side of the bounding box, used for zoom-dependent paging.
func (e Element) Size() float64 {
	s := e.Bounds().Size()
	return math.Max(s.X, s.Y)
}

func (e Element) centerPoint() r2.Point {
	if len(e.Center) < 2 {
		return r2.Point{}
	}
	return r2.Point{X: e.Center[0], Y: e.Center[1]}
}

func rotate(p r2.Point, radians float64) r2.Point {
	if radians == 0 {
		return p
	}
	sin, cos := math.Sincos(radians)
	return r2.Point{X: p.X*cos - p.Y*sin, Y: p.X*sin + p.Y*cos}
}
