package events

import (
	"github.com/tilescope/tilescope/backend-go/internal/annotation"
	"github.com/tilescope/tilescope/backend-go/internal/render"
)

const (
	// Emitted by the overlay engine for pointer interaction with rendered elements.
	TopicMouseClick = "annotation.mouseclick"
	TopicMouseOn    = "annotation.mouseon"
	TopicMouseOff   = "annotation.mouseoff"
	TopicMouseOver  = "annotation.mouseover"
	TopicMouseOut   = "annotation.mouseout"

	// Emitted before a re-fetched annotation is re-drawn and when it is removed.
	TopicReset = "annotation.reset"

	// Emitted once the viewer has created its layers.
	TopicImageRendered = "image.rendered"

	// Emitted when a draw-mode session produces a new element.
	TopicAnnotationCreated = "annotation.created"

	// Inbound requests handled by the viewer widget.
	TopicStartDraw  = "draw.start"
	TopicDrawRegion = "draw.region"
)

type MousePayload struct {
	AnnotationID string
	ElementID    string
	X            float64
	Y            float64
}

type ResetPayload struct {
	AnnotationID string
}

type RenderedPayload struct {
	SizeX int
	SizeY int
}

type CreatedPayload struct {
	Element annotation.Element
	Shape   render.Shape
}

type StartDrawPayload struct {
	Kind render.ShapeKind
}

// RegionTarget receives the region computed by a draw.region request.
type RegionTarget interface {
	SetRegion(left, top, width, height int)
}

type DrawRegionPayload struct {
	Target RegionTarget
}
