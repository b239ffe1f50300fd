package overlay

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/tilescope/tilescope/backend-go/internal/annotation"
	"github.com/tilescope/tilescope/backend-go/internal/events"
	"github.com/tilescope/tilescope/backend-go/internal/render"
)

// DrawResult is what a completed draw session yields.
type DrawResult struct {
	Element annotation.Element
	Shape   render.Shape
}

// Region is an axis-aligned rectangle in whole image pixels.
type Region struct {
	Left, Top, Width, Height int
}

// Values returns the region as [left, top, width, height].
func (r Region) Values() [4]int {
	return [4]int{r.Left, r.Top, r.Width, r.Height}
}

type drawSession struct {
	future *Future[DrawResult]
	cancel func()
}

type modeOptions struct {
	trigger bool
}

type ModeOption func(*modeOptions)

// WithoutTrigger keeps the session from publishing annotation.created.
func WithoutTrigger() ModeOption {
	return func(o *modeOptions) { o.trigger = false }
}

// StartDrawMode ends any running draw session, abandoning its future, and
// starts capturing a shape of the given kind. ShapeNone only ends the
// running session.
func (e *Engine) StartDrawMode(kind render.ShapeKind, opts ...ModeOption) *Future[DrawResult] {
	o := modeOptions{trigger: true}
	for _, opt := range opts {
		opt(&o)
	}

	e.Stop()
	if kind == render.ShapeNone {
		return AbandonedFuture[DrawResult]()
	}

	sess := &drawSession{future: newFuture[DrawResult]()}
	sess.cancel = e.capture.OnStateChange(func(s render.Shape) {
		if s.State != render.StateDone || e.session != sess {
			return
		}
		el, err := ConvertShape(s)
		if err != nil {
			e.log.Warn("drawn shape dropped", "kind", s.Kind, "error", err)
			e.Stop()
			return
		}
		if el.ID == "" {
			el.ID = e.newID()
		}
		// Settle before publishing: a subscriber may start the next session.
		e.endSession(sess)
		sess.future.resolve(DrawResult{Element: el, Shape: s})
		if o.trigger {
			e.bus.Publish(events.TopicAnnotationCreated, events.CreatedPayload{Element: el, Shape: s})
		}
	})
	e.session = sess
	e.capture.SetMode(kind)
	return sess.future
}

// Stop tears down the capture layer state and abandons the running
// session, if any.
func (e *Engine) Stop() {
	if sess := e.session; sess != nil {
		e.endSession(sess)
		sess.future.abandon()
	}
	e.capture.SetMode(render.ShapeNone)
	e.capture.RemoveAllAnnotations()
}

func (e *Engine) endSession(sess *drawSession) {
	sess.cancel()
	if e.session == sess {
		e.session = nil
	}
	e.capture.RemoveAllAnnotations()
}

// Drawing reports whether a draw session is running.
func (e *Engine) Drawing() bool {
	return e.session != nil
}

// DrawRegion captures a rectangle without announcing it and yields its
// rounded extent, also handed to target when set. Rotation is ignored: a
// rotated rectangle yields the extent of its unrotated size around the
// same center.
func (e *Engine) DrawRegion(target events.RegionTarget) *Future[Region] {
	return Then(e.StartDrawMode(render.ShapeRectangle, WithoutTrigger()), func(res DrawResult) Region {
		r := RegionOf(res.Element)
		if target != nil {
			target.SetRegion(r.Left, r.Top, r.Width, r.Height)
		}
		return r
	})
}

// RegionOf computes the rounded [left, top, width, height] of a rectangle
// element.
func RegionOf(el annotation.Element) Region {
	var c r2.Point
	if len(el.Center) >= 2 {
		c = r2.Point{X: el.Center[0], Y: el.Center[1]}
	}
	rect := r2.RectFromCenterSize(c, r2.Point{X: el.Width, Y: el.Height})
	return Region{
		Left:   int(math.Round(rect.X.Lo)),
		Top:    int(math.Round(rect.Y.Lo)),
		Width:  int(math.Round(el.Width)),
		Height: int(math.Round(el.Height)),
	}
}
