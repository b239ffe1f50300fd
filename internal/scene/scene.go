// Package scene is a retained-mode renderer for a tiled image with an
// annotation overlay. It implements the render contracts on top of a
// viewport, a feature layer and a capture layer, and compiles the result
// into Canvas2D draw commands for the frontend.
package scene

import (
	"github.com/golang/geo/r2"
)

// hitTolerance is how far from a line or point, in screen pixels, the
// pointer still hits it.
const hitTolerance = 4

// Scene owns the viewer state. It is driven from the frontend's event loop.
type Scene struct {
	viewport *Viewport
	features *FeatureLayer
	capture  *CaptureLayer

	dirty  bool
	frames int

	dragging bool
	last     r2.Point // screen position of the last pointer event
}

// New creates a scene for an image of sizeX by sizeY pixels shown in a
// screen of width by height.
func New(sizeX, sizeY, tileSize int, width, height float64) *Scene {
	return &Scene{
		viewport: NewViewport(sizeX, sizeY, tileSize, width, height),
		features: NewFeatureLayer(),
		capture:  NewCaptureLayer(),
		dirty:    true,
	}
}

func (s *Scene) Viewport() *Viewport     { return s.viewport }
func (s *Scene) Features() *FeatureLayer { return s.features }
func (s *Scene) Capture() *CaptureLayer  { return s.capture }

// --- render.Viewer ---

func (s *Scene) Zoom() float64                 { return s.viewport.Zoom() }
func (s *Scene) Bounds() r2.Rect               { return s.viewport.Bounds() }
func (s *Scene) ZoomRange() (float64, float64) { return s.viewport.ZoomRange() }

// Draw marks the scene for repaint.
func (s *Scene) Draw() {
	s.dirty = true
}

// Dirty reports whether a repaint was requested since the last Render.
func (s *Scene) Dirty() bool {
	return s.dirty || s.features.DrawCount() != s.frames
}

// --- Commands (frontend -> scene) ---

// PointerDown begins a pan, or a rectangle when capturing one.
func (s *Scene) PointerDown(x, y float64) {
	s.last = r2.Point{X: x, Y: y}
	if s.capture.Active() {
		s.capture.PointerDown(s.viewport.ToImage(x, y))
		s.dirty = true
		return
	}
	s.dragging = true
}

// PointerMove pans while dragging, otherwise updates hover state.
func (s *Scene) PointerMove(x, y float64) {
	p := r2.Point{X: x, Y: y}
	delta := p.Sub(s.last)
	s.last = p

	switch {
	case s.capture.Active():
		s.capture.PointerMove(s.viewport.ToImage(x, y))
		s.dirty = true
	case s.dragging:
		s.viewport.Pan(delta.X, delta.Y)
		s.dirty = true
	default:
		s.features.PointerMove(s.viewport.ToImage(x, y), s.tolerance())
	}
}

func (s *Scene) PointerUp(x, y float64) {
	s.last = r2.Point{X: x, Y: y}
	s.dragging = false
	if s.capture.Active() {
		s.capture.PointerUp(s.viewport.ToImage(x, y))
		s.dirty = true
	}
}

// Click places capture vertices or reports a click on features.
func (s *Scene) Click(x, y float64) {
	p := s.viewport.ToImage(x, y)
	if s.capture.Active() {
		s.capture.Click(p, s.tolerance())
		s.dirty = true
		return
	}
	s.features.Click(p, s.tolerance())
}

// Finish completes a line or polygon being captured.
func (s *Scene) Finish() {
	if s.capture.Finish() {
		s.dirty = true
	}
}

// Wheel zooms by delta levels around screen position (x, y).
func (s *Scene) Wheel(delta, x, y float64) {
	s.viewport.ZoomAt(s.viewport.Zoom()+delta, x, y)
	s.dirty = true
}

func (s *Scene) Resize(width, height float64) {
	s.viewport.Resize(width, height)
	s.dirty = true
}

func (s *Scene) tolerance() float64 {
	scale := s.viewport.Matrix()[0]
	if scale <= 0 {
		return hitTolerance
	}
	return hitTolerance / scale
}

// --- Queries ---

// Render compiles the scene into draw commands as JSON.
func (s *Scene) Render() string {
	s.dirty = false
	s.frames = s.features.DrawCount()
	result, _ := DrawCommandsToJSON(Compile(s.viewport, s.features, s.capture))
	return result
}
