package annotation

import (
	"github.com/golang/geo/r2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Property keys set on every GeoJSON feature produced by GeoJSON.
const (
	PropAnnotation    = "annotation"
	PropElement       = "element"
	PropFillColor     = "fillColor"
	PropFillOpacity   = "fillOpacity"
	PropStrokeColor   = "strokeColor"
	PropStrokeOpacity = "strokeOpacity"
	PropStrokeWidth   = "strokeWidth"
	PropRadius        = "radius"
	PropLabel         = "label"
	PropUser          = "user"
)

const (
	defaultLineColor   = "#000000"
	defaultFillColor   = "rgba(0,0,0,0)"
	defaultLineWidth   = 2
	defaultPointRadius = 5
)

// GeoJSON converts the annotation's current elements to a feature
// collection, one feature per element in source order. Elements that fail
// validation are skipped.
func GeoJSON(a Annotation) *geojson.FeatureCollection {
	return ElementsToGeoJSON(a.ID(), a.Elements())
}

// ElementsToGeoJSON converts elements belonging to annotationID.
func ElementsToGeoJSON(annotationID string, elements []Element) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, e := range elements {
		if e.Validate() != nil {
			continue
		}
		f := geojson.NewFeature(geometry(e))
		f.ID = e.ID
		f.Properties = properties(annotationID, e)
		fc.Append(f)
	}
	return fc
}

func geometry(e Element) orb.Geometry {
	outline := e.Outline()
	switch {
	case e.Type == KindPoint || e.Type == KindCircle:
		return toOrb(outline[0])
	case e.Type == KindPolyline && !e.Closed:
		line := make(orb.LineString, len(outline))
		for i, p := range outline {
			line[i] = toOrb(p)
		}
		return line
	default:
		ring := make(orb.Ring, 0, len(outline)+1)
		for _, p := range outline {
			ring = append(ring, toOrb(p))
		}
		ring = append(ring, ring[0])
		return orb.Polygon{ring}
	}
}

func properties(annotationID string, e Element) geojson.Properties {
	props := geojson.Properties{
		PropAnnotation:    annotationID,
		PropElement:       e.ID,
		PropFillColor:     orDefault(e.FillColor, defaultFillColor),
		PropFillOpacity:   e.FillOpacity,
		PropStrokeColor:   orDefault(e.LineColor, defaultLineColor),
		PropStrokeOpacity: e.StrokeOpacity,
		PropStrokeWidth:   e.LineWidth,
	}
	if e.LineWidth == 0 {
		props[PropStrokeWidth] = float64(defaultLineWidth)
	}
	switch e.Type {
	case KindCircle:
		props[PropRadius] = e.Radius
	case KindPoint:
		props[PropRadius] = float64(defaultPointRadius)
	}
	if e.Label != nil {
		props[PropLabel] = e.Label.Value
	}
	if len(e.User) > 0 {
		props[PropUser] = e.User
	}
	return props
}

func toOrb(p r2.Point) orb.Point {
	return orb.Point{p.X, p.Y}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
