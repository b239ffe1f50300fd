package overlay

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"

	"github.com/tilescope/tilescope/backend-go/internal/annotation"
	"github.com/tilescope/tilescope/backend-go/internal/render"
)

var ErrUnsupportedShape = errors.New("unsupported shape")

// Paint of newly drawn elements.
const (
	createdLineColor = "#000000"
	createdLineWidth = 2
	createdFillColor = "rgba(0,0,0,0)"
)

// ConvertShape turns a finished capture shape into an element. The element
// has no id; the caller assigns one.
func ConvertShape(s render.Shape) (annotation.Element, error) {
	el := annotation.Element{
		LineColor:     createdLineColor,
		LineWidth:     createdLineWidth,
		FillColor:     createdFillColor,
		FillOpacity:   0,
		StrokeOpacity: 1,
	}
	coords := s.Coordinates

	switch s.Kind {
	case render.ShapePoint:
		if len(coords) < 1 {
			return annotation.Element{}, fmt.Errorf("point needs a vertex: %w", ErrUnsupportedShape)
		}
		el.Type = annotation.KindPoint
		el.Center = vertex(coords[0])

	case render.ShapeLine, render.ShapePolygon:
		closed := s.Kind == render.ShapePolygon
		min := 2
		if closed {
			min = 3
		}
		if len(coords) < min {
			return annotation.Element{}, fmt.Errorf("%s needs %d vertices, got %d: %w", s.Kind, min, len(coords), ErrUnsupportedShape)
		}
		el.Type = annotation.KindPolyline
		el.Closed = closed
		el.Points = make([][]float64, len(coords))
		for i, p := range coords {
			el.Points[i] = vertex(p)
		}

	case render.ShapeRectangle:
		if len(coords) != 4 {
			return annotation.Element{}, fmt.Errorf("rectangle needs 4 corners, got %d: %w", len(coords), ErrUnsupportedShape)
		}
		center := coords[0].Add(coords[1]).Add(coords[2]).Add(coords[3]).Mul(0.25)
		side := coords[1].Sub(coords[0])
		el.Type = annotation.KindRectangle
		el.Center = vertex(center)
		el.Width = side.Norm()
		el.Height = coords[2].Sub(coords[1]).Norm()
		el.Rotation = math.Atan2(side.Y, side.X)

	default:
		return annotation.Element{}, fmt.Errorf("shape kind %q: %w", s.Kind, ErrUnsupportedShape)
	}
	return el, nil
}

func vertex(p r2.Point) []float64 {
	return []float64{p.X, p.Y, 0}
}
