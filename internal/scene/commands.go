package scene

import (
	"encoding/json"
	"math"

	"github.com/paulmach/orb"

	"github.com/tilescope/tilescope/backend-go/internal/render"
)

// DrawCommand is one Canvas2D operation executed by the frontend, in
// painter's order.
type DrawCommand struct {
	Op            string        `json:"op"`                      // "tile" or "path"
	ObjectID      string        `json:"objectId,omitempty"`      // element id, for hit correlation
	Transform     []float64     `json:"transform,omitempty"`     // image -> screen
	Path          []PathCommand `json:"path,omitempty"`          // image pixels
	Fill          string        `json:"fill,omitempty"`          // fill color
	Stroke        string        `json:"stroke,omitempty"`        // stroke color
	StrokeWidth   float64       `json:"strokeWidth,omitempty"`   // screen pixels
	FillOpacity   float64       `json:"fillOpacity,omitempty"`   // 0 leaves the path unfilled
	StrokeOpacity float64       `json:"strokeOpacity,omitempty"` // 0 leaves the path unstroked
	Dashed        bool          `json:"dashed,omitempty"`
	Tile          *Tile         `json:"tile,omitempty"`
	TileRect      []float64     `json:"tileRect,omitempty"` // [x, y, width, height] in image pixels
}

// PathCommand is a Canvas2D path segment: ["M", x, y], ["L", x, y],
// ["A", cx, cy, r, start, end] or ["Z"].
type PathCommand []interface{}

const (
	captureStroke = "#00ff00"
	captureWidth  = 2
)

// Compile builds the draw command buffer for the current scene: visible
// tiles, then annotation features, then shapes being captured.
func Compile(vp *Viewport, features *FeatureLayer, capture *CaptureLayer) []DrawCommand {
	transform := vp.Matrix().ToSlice()
	var commands []DrawCommand

	for _, t := range vp.VisibleTiles() {
		commands = append(commands, DrawCommand{
			Op:        "tile",
			Transform: transform,
			Tile:      &t,
			TileRect:  []float64{t.Rect.X.Lo, t.Rect.Y.Lo, t.Rect.X.Length(), t.Rect.Y.Length()},
		})
	}

	if features != nil {
		for _, f := range features.Features() {
			for i, d := range f.Data() {
				cmd := DrawCommand{
					Op:            "path",
					ObjectID:      d.ID,
					Transform:     transform,
					Path:          geometryPath(d),
					Stroke:        stringProp(d, "strokeColor"),
					StrokeWidth:   floatProp(d, "strokeWidth"),
					StrokeOpacity: f.Style(StyleStrokeOpacity, i),
				}
				if f.Type() != render.FeatureLine {
					cmd.Fill = stringProp(d, "fillColor")
					cmd.FillOpacity = f.Style(StyleFillOpacity, i)
				}
				if len(cmd.Path) > 0 {
					commands = append(commands, cmd)
				}
			}
		}
	}

	if capture != nil {
		for _, s := range capture.Shapes() {
			path := make([]PathCommand, 0, len(s.Coordinates)+1)
			for i, p := range s.Coordinates {
				op := "L"
				if i == 0 {
					op = "M"
				}
				path = append(path, PathCommand{op, p.X, p.Y})
			}
			if s.Kind == render.ShapeRectangle || s.Kind == render.ShapePolygon && s.State == render.StateDone {
				path = append(path, PathCommand{"Z"})
			}
			commands = append(commands, DrawCommand{
				Op:            "path",
				Transform:     transform,
				Path:          path,
				Stroke:        captureStroke,
				StrokeWidth:   captureWidth,
				StrokeOpacity: 1,
				Dashed:        s.State != render.StateDone,
			})
		}
	}
	return commands
}

func geometryPath(d render.Datum) []PathCommand {
	switch g := d.Geometry.(type) {
	case orb.Point:
		r := floatProp(d, "radius")
		if r <= 0 {
			r = defaultPointRadius
		}
		return []PathCommand{{"A", g[0], g[1], r, 0.0, 2 * math.Pi}}
	case orb.LineString:
		return linePath(g, false)
	case orb.Polygon:
		var path []PathCommand
		for _, ring := range g {
			path = append(path, linePath(orb.LineString(ring), true)...)
		}
		return path
	}
	return nil
}

func linePath(ls orb.LineString, closed bool) []PathCommand {
	path := make([]PathCommand, 0, len(ls)+1)
	for i, p := range ls {
		op := "L"
		if i == 0 {
			op = "M"
		}
		path = append(path, PathCommand{op, p[0], p[1]})
	}
	if closed && len(path) > 0 {
		path = append(path, PathCommand{"Z"})
	}
	return path
}

func stringProp(d render.Datum, key string) string {
	s, _ := d.Properties[key].(string)
	return s
}

func floatProp(d render.Datum, key string) float64 {
	v, _ := d.Properties[key].(float64)
	return v
}

// DrawCommandsToJSON serializes draw commands to JSON.
func DrawCommandsToJSON(commands []DrawCommand) (string, error) {
	data, err := json.Marshal(commands)
	if err != nil {
		return "[]", err
	}
	return string(data), nil
}
