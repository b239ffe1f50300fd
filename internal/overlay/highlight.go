package overlay

import (
	"github.com/tilescope/tilescope/backend-go/internal/render"
)

// dimFactor scales the opacity of everything that is not highlighted.
const dimFactor = 0.25

// Target is the highlighted annotation and, optionally, element. The zero
// value highlights nothing.
type Target struct {
	AnnotationID string
	ElementID    string
}

// keeps reports whether an element keeps its original opacity.
func (t Target) keeps(annotationID, elementID string) bool {
	switch {
	case t.AnnotationID == "":
		return true
	case t.ElementID == "":
		return annotationID == t.AnnotationID
	default:
		return elementID == t.ElementID
	}
}

// HighlightOpacities computes the displayed fill and stroke opacities for
// a snapshot under target.
func HighlightOpacities(target Target, annotationID string, snapshot []Opacity) (fill, stroke []float64) {
	fill = make([]float64, len(snapshot))
	stroke = make([]float64, len(snapshot))
	for i, o := range snapshot {
		if target.keeps(annotationID, o.ID) {
			fill[i] = o.Fill
			stroke[i] = o.Stroke
		} else {
			fill[i] = o.Fill * dimFactor
			stroke[i] = o.Stroke * dimFactor
		}
	}
	return fill, stroke
}

// mutateForHighlight applies the current target to an annotation's
// features. Feature types without a snapshot are left untouched.
func (e *Engine) mutateForHighlight(annotationID string, features []render.Feature) {
	for _, f := range features {
		snapshot, ok := e.opacity.Get(annotationID, f.Type())
		if !ok {
			continue
		}
		fill, stroke := HighlightOpacities(e.target, annotationID, snapshot)
		f.UpdateStyleFromArray("fillOpacity", fill)
		f.UpdateStyleFromArray("strokeOpacity", stroke)
	}
}
