package overlay

import (
	"errors"
	"math"
	"testing"

	"github.com/tilescope/tilescope/backend-go/internal/annotation"
	"github.com/tilescope/tilescope/backend-go/internal/render"
)

func TestConvertShape(t *testing.T) {
	tests := []struct {
		name  string
		shape render.Shape
		check func(t *testing.T, el annotation.Element)
	}{
		{
			name:  "point",
			shape: render.Shape{Kind: render.ShapePoint, Coordinates: pts(3, 4)},
			check: func(t *testing.T, el annotation.Element) {
				if el.Type != annotation.KindPoint || el.Center[0] != 3 || el.Center[1] != 4 || el.Center[2] != 0 {
					t.Errorf("unexpected point %+v", el)
				}
			},
		},
		{
			name:  "line",
			shape: render.Shape{Kind: render.ShapeLine, Coordinates: pts(0, 0, 5, 5)},
			check: func(t *testing.T, el annotation.Element) {
				if el.Type != annotation.KindPolyline || el.Closed || len(el.Points) != 2 {
					t.Errorf("unexpected line %+v", el)
				}
			},
		},
		{
			name:  "polygon",
			shape: render.Shape{Kind: render.ShapePolygon, Coordinates: pts(0, 0, 5, 0, 5, 5)},
			check: func(t *testing.T, el annotation.Element) {
				if el.Type != annotation.KindPolyline || !el.Closed || len(el.Points) != 3 {
					t.Errorf("unexpected polygon %+v", el)
				}
			},
		},
		{
			name:  "rectangle",
			shape: render.Shape{Kind: render.ShapeRectangle, Coordinates: pts(40, 45, 60, 45, 60, 55, 40, 55)},
			check: func(t *testing.T, el annotation.Element) {
				if el.Type != annotation.KindRectangle || el.Center[0] != 50 || el.Center[1] != 50 {
					t.Errorf("unexpected rectangle %+v", el)
				}
				if el.Width != 20 || el.Height != 10 || el.Rotation != 0 {
					t.Errorf("unexpected rectangle size %+v", el)
				}
			},
		},
		{
			name:  "rotated rectangle",
			shape: render.Shape{Kind: render.ShapeRectangle, Coordinates: pts(0, 0, 0, 10, -4, 10, -4, 0)},
			check: func(t *testing.T, el annotation.Element) {
				if math.Abs(el.Rotation-math.Pi/2) > 1e-9 || el.Width != 10 || el.Height != 4 {
					t.Errorf("unexpected rotated rectangle %+v", el)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el, err := ConvertShape(tt.shape)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := el.Validate(); err != nil {
				t.Fatalf("converted element invalid: %v", err)
			}
			if el.ID != "" {
				t.Errorf("converter must not assign ids, got %q", el.ID)
			}
			if el.LineColor != "#000000" || el.LineWidth != 2 || el.StrokeOpacity != 1 || el.FillOpacity != 0 {
				t.Errorf("unexpected paint %+v", el)
			}
			tt.check(t, el)
		})
	}
}

func TestConvertShapeErrors(t *testing.T) {
	shapes := []render.Shape{
		{Kind: "ellipse", Coordinates: pts(0, 0)},
		{Kind: render.ShapePoint},
		{Kind: render.ShapeLine, Coordinates: pts(0, 0)},
		{Kind: render.ShapePolygon, Coordinates: pts(0, 0, 1, 1)},
		{Kind: render.ShapeRectangle, Coordinates: pts(0, 0, 1, 1, 2, 2)},
	}
	for _, s := range shapes {
		if _, err := ConvertShape(s); !errors.Is(err, ErrUnsupportedShape) {
			t.Errorf("%s with %d vertices: expected ErrUnsupportedShape, got %v", s.Kind, len(s.Coordinates), err)
		}
	}
}
