// Package viewer hosts the image viewer: it waits for the image metadata
// and the rendering toolkit, builds the scene and the annotation overlay
// once both are ready, and forwards overlay calls to it.
package viewer

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tilescope/tilescope/backend-go/internal/annotation"
	"github.com/tilescope/tilescope/backend-go/internal/events"
	"github.com/tilescope/tilescope/backend-go/internal/overlay"
	"github.com/tilescope/tilescope/backend-go/internal/render"
	"github.com/tilescope/tilescope/backend-go/internal/scene"
)

// Metadata describes the tiled image.
type Metadata struct {
	SizeX    int `json:"sizeX"`
	SizeY    int `json:"sizeY"`
	TileSize int `json:"tileWidth"`
}

// MetadataLoader fetches the image metadata.
type MetadataLoader func(ctx context.Context) (Metadata, error)

// ToolkitLoader makes the rendering toolkit available.
type ToolkitLoader func(ctx context.Context) error

// Widget is one image viewer with its annotation overlay. Overlay calls
// made before the viewer has rendered are ignored.
type Widget struct {
	bus    *events.Bus
	log    *slog.Logger
	width  float64
	height float64
	opts   []overlay.Option

	metadata     *Metadata
	toolkitReady bool
	deleted      bool

	scene  *scene.Scene
	engine *overlay.Engine

	unsubscribe []func()
}

// NewWidget creates a widget drawing into a width by height screen.
func NewWidget(bus *events.Bus, width, height float64, opts ...overlay.Option) *Widget {
	w := &Widget{
		bus:    bus,
		log:    slog.Default(),
		width:  width,
		height: height,
		opts:   opts,
	}
	w.unsubscribe = append(w.unsubscribe,
		bus.Subscribe(events.TopicStartDraw, func(p any) {
			if req, ok := p.(events.StartDrawPayload); ok {
				w.StartDrawMode(req.Kind)
			}
		}),
		bus.Subscribe(events.TopicDrawRegion, func(p any) {
			if req, ok := p.(events.DrawRegionPayload); ok {
				w.DrawRegion(req.Target)
			}
		}),
	)
	return w
}

// Initialize loads the metadata and the toolkit concurrently and renders
// once both are available.
func (w *Widget) Initialize(ctx context.Context, loadMetadata MetadataLoader, loadToolkit ToolkitLoader) error {
	var meta Metadata
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := loadMetadata(ctx)
		if err != nil {
			return fmt.Errorf("load metadata: %w", err)
		}
		meta = m
		return nil
	})
	g.Go(func() error {
		if err := loadToolkit(ctx); err != nil {
			return fmt.Errorf("load toolkit: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	w.SetMetadata(meta)
	w.SetToolkitReady()
	w.Render()
	return nil
}

func (w *Widget) SetMetadata(m Metadata) {
	w.metadata = &m
}

func (w *Widget) SetToolkitReady() {
	w.toolkitReady = true
}

// Render builds the scene and the overlay. It does nothing until both
// prerequisites are ready, after Destroy, or when already rendered.
func (w *Widget) Render() bool {
	if w.deleted || w.metadata == nil || !w.toolkitReady {
		return false
	}
	if w.scene != nil {
		return true
	}

	m := *w.metadata
	w.scene = scene.New(m.SizeX, m.SizeY, m.TileSize, w.width, w.height)
	w.engine = overlay.New(w.scene, w.scene.Features(), w.scene.Capture(), w.bus, w.opts...)
	w.unsubscribe = append(w.unsubscribe, w.scene.Viewport().OnChange(w.engine.SyncView))

	w.log.Info("viewer rendered", "sizeX", m.SizeX, "sizeY", m.SizeY)
	w.bus.Publish(events.TopicImageRendered, events.RenderedPayload{SizeX: m.SizeX, SizeY: m.SizeY})
	return true
}

// Rendered reports whether the overlay is available.
func (w *Widget) Rendered() bool {
	return w.engine != nil && !w.deleted
}

// Scene returns the rendered scene, or nil before Render.
func (w *Widget) Scene() *scene.Scene {
	return w.scene
}

// Engine returns the overlay engine, or nil before Render.
func (w *Widget) Engine() *overlay.Engine {
	return w.engine
}

func (w *Widget) DrawAnnotation(a annotation.Annotation, opts ...overlay.DrawOption) {
	if !w.Rendered() {
		return
	}
	w.engine.Draw(a, opts...)
}

func (w *Widget) RemoveAnnotation(a annotation.Annotation) {
	if !w.Rendered() {
		return
	}
	w.engine.Remove(a)
}

func (w *Widget) HighlightAnnotation(annotationID, elementID string) {
	if !w.Rendered() {
		return
	}
	w.engine.Highlight(annotationID, elementID)
}

func (w *Widget) StartDrawMode(kind render.ShapeKind, opts ...overlay.ModeOption) *overlay.Future[overlay.DrawResult] {
	if !w.Rendered() {
		return overlay.AbandonedFuture[overlay.DrawResult]()
	}
	return w.engine.StartDrawMode(kind, opts...)
}

func (w *Widget) DrawRegion(target events.RegionTarget) *overlay.Future[overlay.Region] {
	if !w.Rendered() {
		return overlay.AbandonedFuture[overlay.Region]()
	}
	return w.engine.DrawRegion(target)
}

// Destroy detaches the widget from the bus, ends any draw session and
// takes every annotation off its overlay.
func (w *Widget) Destroy() {
	if w.deleted {
		return
	}
	for _, fn := range w.unsubscribe {
		fn()
	}
	w.unsubscribe = nil
	if w.engine != nil {
		w.engine.Close()
	}
	w.deleted = true
}
