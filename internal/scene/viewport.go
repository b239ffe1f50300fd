package scene

import (
	"math"
	"sync"

	"github.com/golang/geo/r2"
)

// DefaultTileSize is the edge of a square tile in pixels.
const DefaultTileSize = 256

// Viewport is the navigable window onto a tiled image. At zoom z one image
// pixel covers 2^(z - MaxZoom) screen pixels, so MaxZoom shows the image
// at full resolution.
type Viewport struct {
	mu sync.Mutex

	sizeX, sizeY  float64
	tileSize      int
	width, height float64 // screen size
	minZoom       float64
	maxZoom       float64

	zoom   float64
	center r2.Point // image pixels

	nextListener uint64
	listeners    map[uint64]func()
}

// NewViewport creates a viewport over an image of sizeX by sizeY pixels,
// fitted into a screen of width by height.
func NewViewport(sizeX, sizeY, tileSize int, width, height float64) *Viewport {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	v := &Viewport{
		sizeX:     float64(sizeX),
		sizeY:     float64(sizeY),
		tileSize:  tileSize,
		width:     width,
		height:    height,
		maxZoom:   MaxZoom(sizeX, sizeY, tileSize),
		listeners: make(map[uint64]func()),
	}
	v.zoom, v.center = v.fit()
	return v
}

// MaxZoom is the number of tile pyramid levels above the base tile:
// ceil(log2(max(sizeX, sizeY) / tileSize)), never negative.
func MaxZoom(sizeX, sizeY, tileSize int) float64 {
	edge := math.Max(float64(sizeX), float64(sizeY))
	if edge <= float64(tileSize) {
		return 0
	}
	return math.Ceil(math.Log2(edge / float64(tileSize)))
}

func (v *Viewport) fit() (float64, r2.Point) {
	center := r2.Point{X: v.sizeX / 2, Y: v.sizeY / 2}
	if v.sizeX <= 0 || v.sizeY <= 0 || v.width <= 0 || v.height <= 0 {
		return v.maxZoom, center
	}
	scale := math.Min(v.width/v.sizeX, v.height/v.sizeY)
	return v.clamp(v.maxZoom + math.Log2(scale)), center
}

func (v *Viewport) clamp(z float64) float64 {
	return math.Max(v.minZoom, math.Min(v.maxZoom, z))
}

func (v *Viewport) scale() float64 {
	return math.Exp2(v.zoom - v.maxZoom)
}

func (v *Viewport) Zoom() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.zoom
}

func (v *Viewport) ZoomRange() (float64, float64) {
	return v.minZoom, v.maxZoom
}

// Size returns the image size in pixels.
func (v *Viewport) Size() (int, int) {
	return int(v.sizeX), int(v.sizeY)
}

func (v *Viewport) TileSize() int {
	return v.tileSize
}

func (v *Viewport) Center() r2.Point {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.center
}

// Bounds returns the visible region in image pixels.
func (v *Viewport) Bounds() r2.Rect {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.scale()
	return r2.RectFromCenterSize(v.center, r2.Point{X: v.width / s, Y: v.height / s})
}

// Matrix maps image pixels to screen pixels.
func (v *Viewport) Matrix() Matrix2D {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.scale()
	return Translate(v.width/2, v.height/2).
		Multiply(Scale(s, s)).
		Multiply(Translate(-v.center.X, -v.center.Y))
}

// ToImage maps a screen position to image pixels.
func (v *Viewport) ToImage(x, y float64) r2.Point {
	return v.Matrix().Invert().Apply(r2.Point{X: x, Y: y})
}

// Pan moves the view by a screen-space delta, as a drag would.
func (v *Viewport) Pan(dx, dy float64) {
	if dx == 0 && dy == 0 {
		return
	}
	v.mu.Lock()
	s := v.scale()
	v.center = v.center.Sub(r2.Point{X: dx / s, Y: dy / s})
	v.mu.Unlock()
	v.changed()
}

// SetZoom changes the zoom around the view center.
func (v *Viewport) SetZoom(z float64) {
	v.mu.Lock()
	z = v.clamp(z)
	if z == v.zoom {
		v.mu.Unlock()
		return
	}
	v.zoom = z
	v.mu.Unlock()
	v.changed()
}

// ZoomAt changes the zoom keeping the image point under screen position
// (x, y) in place.
func (v *Viewport) ZoomAt(z, x, y float64) {
	anchor := v.ToImage(x, y)
	v.mu.Lock()
	z = v.clamp(z)
	if z == v.zoom {
		v.mu.Unlock()
		return
	}
	v.zoom = z
	s := v.scale()
	offset := r2.Point{X: (x - v.width/2) / s, Y: (y - v.height/2) / s}
	v.center = anchor.Sub(offset)
	v.mu.Unlock()
	v.changed()
}

// Resize changes the screen size keeping center and zoom.
func (v *Viewport) Resize(width, height float64) {
	v.mu.Lock()
	if width == v.width && height == v.height {
		v.mu.Unlock()
		return
	}
	v.width, v.height = width, height
	v.mu.Unlock()
	v.changed()
}

// OnChange registers fn to run after every pan, zoom or resize.
func (v *Viewport) OnChange(fn func()) (cancel func()) {
	v.mu.Lock()
	v.nextListener++
	id := v.nextListener
	v.listeners[id] = fn
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		delete(v.listeners, id)
		v.mu.Unlock()
	}
}

func (v *Viewport) changed() {
	v.mu.Lock()
	fns := make([]func(), 0, len(v.listeners))
	for id := uint64(1); id <= v.nextListener; id++ {
		if fn, ok := v.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Tile addresses one tile of the pyramid.
type Tile struct {
	Level int     `json:"level"`
	X     int     `json:"x"`
	Y     int     `json:"y"`
	Rect  r2.Rect `json:"-"` // image pixels covered
}

// VisibleTiles lists the tiles of the level closest to the current zoom
// that intersect the view.
func (v *Viewport) VisibleTiles() []Tile {
	bounds := v.Bounds()
	level := int(math.Round(v.Zoom()))
	span := float64(v.tileSize) * math.Exp2(v.maxZoom-float64(level))

	x0 := int(math.Max(0, math.Floor(bounds.X.Lo/span)))
	y0 := int(math.Max(0, math.Floor(bounds.Y.Lo/span)))
	x1 := int(math.Min(math.Ceil(v.sizeX/span), math.Ceil(bounds.X.Hi/span)))
	y1 := int(math.Min(math.Ceil(v.sizeY/span), math.Ceil(bounds.Y.Hi/span)))

	var tiles []Tile
	for ty := y0; ty < y1; ty++ {
		for tx := x0; tx < x1; tx++ {
			lo := r2.Point{X: float64(tx) * span, Y: float64(ty) * span}
			hi := r2.Point{X: math.Min(lo.X+span, v.sizeX), Y: math.Min(lo.Y+span, v.sizeY)}
			tiles = append(tiles, Tile{Level: level, X: tx, Y: ty, Rect: r2.RectFromPoints(lo, hi)})
		}
	}
	return tiles
}
