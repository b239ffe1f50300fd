package scene

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/tilescope/tilescope/backend-go/internal/render"
)

// CaptureLayer turns pointer input into shapes while a mode is set:
//
//	point      one click
//	rectangle  press, drag, release (axis-aligned)
//	line       clicks add vertices, Finish ends (2+ vertices)
//	polygon    clicks add vertices, Finish or a click on the first vertex
//	           closes (3+ vertices)
//
// Each shape is announced with state create when it starts and done when
// it completes; the mode resets to none after done.
type CaptureLayer struct {
	mode    render.ShapeKind
	current *render.Shape
	anchor  r2.Point
	shapes  []render.Shape

	nextListener int
	listeners    map[int]func(render.Shape)
}

func NewCaptureLayer() *CaptureLayer {
	return &CaptureLayer{listeners: make(map[int]func(render.Shape))}
}

// SetMode switches the capture mode, discarding any shape in progress.
func (c *CaptureLayer) SetMode(kind render.ShapeKind) {
	c.mode = kind
	c.current = nil
}

func (c *CaptureLayer) Mode() render.ShapeKind {
	return c.mode
}

func (c *CaptureLayer) OnStateChange(fn func(render.Shape)) func() {
	c.nextListener++
	id := c.nextListener
	c.listeners[id] = fn
	return func() { delete(c.listeners, id) }
}

// RemoveAllAnnotations drops completed shapes and any shape in progress.
func (c *CaptureLayer) RemoveAllAnnotations() {
	c.shapes = nil
	c.current = nil
}

// Shapes returns the completed shapes still shown, plus the one in progress.
func (c *CaptureLayer) Shapes() []render.Shape {
	out := append([]render.Shape(nil), c.shapes...)
	if c.current != nil {
		out = append(out, *c.current)
	}
	return out
}

// Active reports whether pointer input goes to the capture layer.
func (c *CaptureLayer) Active() bool {
	return c.mode != render.ShapeNone
}

// PointerDown starts a rectangle.
func (c *CaptureLayer) PointerDown(p r2.Point) {
	if c.mode != render.ShapeRectangle {
		return
	}
	c.anchor = p
	c.start(render.Shape{Kind: render.ShapeRectangle, Coordinates: rectCorners(p, p)})
}

// PointerMove drags the rectangle in progress.
func (c *CaptureLayer) PointerMove(p r2.Point) {
	if c.mode != render.ShapeRectangle || c.current == nil {
		return
	}
	c.current.Coordinates = rectCorners(c.anchor, p)
}

// PointerUp completes a rectangle with a non-empty area.
func (c *CaptureLayer) PointerUp(p r2.Point) {
	if c.mode != render.ShapeRectangle || c.current == nil {
		return
	}
	if p.X == c.anchor.X || p.Y == c.anchor.Y {
		c.current = nil
		return
	}
	c.current.Coordinates = rectCorners(c.anchor, p)
	c.complete()
}

// Click places a point or adds a vertex. closeTolerance is the distance, in
// image pixels, within which a click on the first vertex closes a polygon.
func (c *CaptureLayer) Click(p r2.Point, closeTolerance float64) {
	switch c.mode {
	case render.ShapePoint:
		c.start(render.Shape{Kind: render.ShapePoint, Coordinates: []r2.Point{p}})
		c.complete()

	case render.ShapeLine, render.ShapePolygon:
		if c.current == nil {
			c.start(render.Shape{Kind: c.mode, Coordinates: []r2.Point{p}})
			return
		}
		coords := c.current.Coordinates
		if c.mode == render.ShapePolygon && len(coords) >= 3 && coords[0].Sub(p).Norm() <= closeTolerance {
			c.complete()
			return
		}
		c.current.Coordinates = append(coords, p)
	}
}

// Finish completes a line or polygon with enough vertices.
func (c *CaptureLayer) Finish() bool {
	if c.current == nil {
		return false
	}
	need := 2
	if c.current.Kind == render.ShapePolygon {
		need = 3
	}
	if c.current.Kind == render.ShapeRectangle || len(c.current.Coordinates) < need {
		return false
	}
	c.complete()
	return true
}

func (c *CaptureLayer) start(s render.Shape) {
	s.State = render.StateCreate
	c.current = &s
	c.notify(s)
}

func (c *CaptureLayer) complete() {
	s := *c.current
	s.State = render.StateDone
	c.current = nil
	c.shapes = append(c.shapes, s)
	c.mode = render.ShapeNone
	c.notify(s)
}

func (c *CaptureLayer) notify(s render.Shape) {
	fns := make([]func(render.Shape), 0, len(c.listeners))
	for id := 1; id <= c.nextListener; id++ {
		if fn, ok := c.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	for _, fn := range fns {
		fn(s)
	}
}

// rectCorners returns the corners of the box spanned by a and b, starting
// top-left and going clockwise on screen.
func rectCorners(a, b r2.Point) []r2.Point {
	x0, x1 := math.Min(a.X, b.X), math.Max(a.X, b.X)
	y0, y1 := math.Min(a.Y, b.Y), math.Max(a.Y, b.Y)
	return []r2.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}
