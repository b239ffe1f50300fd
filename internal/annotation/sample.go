package annotation

import (
	"fmt"
	"math"

	"github.com/tilescope/tilescope/backend-go/internal/typeid"
)

// SampleDocuments returns a small annotation set for an image of the given
// size: a handful of region shapes and a grid of cell markers.
func SampleDocuments(sizeX, sizeY int) []Document {
	w, h := float64(sizeX), float64(sizeY)

	regions := Document{
		Name:        "Regions",
		Description: "Sample regions of interest",
		Elements: []Element{
			{
				ID: typeid.NewElementID(), Type: KindRectangle,
				Center: []float64{w * 0.25, h * 0.25, 0}, Width: w * 0.2, Height: h * 0.1,
				LineColor: "#00ff00", LineWidth: 2, FillColor: "rgba(0,255,0,0.25)",
				FillOpacity: 0.25, StrokeOpacity: 1,
				Label: &Label{Value: "tumor"},
			},
			{
				ID: typeid.NewElementID(), Type: KindEllipse,
				Center: []float64{w * 0.6, h * 0.4, 0}, Width: w * 0.15, Height: h * 0.08,
				Rotation: math.Pi / 6, LineColor: "#ff0000", LineWidth: 2,
				FillColor: "rgba(255,0,0,0.2)", FillOpacity: 0.2, StrokeOpacity: 1,
			},
			{
				ID: typeid.NewElementID(), Type: KindPolyline, Closed: true,
				Points: [][]float64{
					{w * 0.7, h * 0.7, 0}, {w * 0.8, h * 0.65, 0}, {w * 0.85, h * 0.8, 0}, {w * 0.72, h * 0.85, 0},
				},
				LineColor: "#0000ff", LineWidth: 3, FillColor: "rgba(0,0,255,0.3)",
				FillOpacity: 0.3, StrokeOpacity: 1,
			},
			{
				ID: typeid.NewElementID(), Type: KindPolyline,
				Points:    [][]float64{{w * 0.1, h * 0.9, 0}, {w * 0.3, h * 0.7, 0}, {w * 0.5, h * 0.9, 0}},
				LineColor: "#ffff00", LineWidth: 4, StrokeOpacity: 0.8,
			},
		},
	}

	cells := Document{Name: "Cells", Description: "Sample nuclei markers"}
	const grid = 8
	for i := 0; i < grid; i++ {
		for j := 0; j < grid; j++ {
			cells.Elements = append(cells.Elements, Element{
				ID:            typeid.NewElementID(),
				Type:          KindCircle,
				Center:        []float64{w * (float64(i) + 0.5) / grid, h * (float64(j) + 0.5) / grid, 0},
				Radius:        math.Min(w, h) / (grid * 8),
				LineColor:     "#ff00ff",
				LineWidth:     1,
				FillColor:     "rgba(255,0,255,0.5)",
				FillOpacity:   0.5,
				StrokeOpacity: 1,
				Label:         &Label{Value: fmt.Sprintf("cell %d", i*grid+j+1)},
			})
		}
	}

	return []Document{regions, cells}
}
