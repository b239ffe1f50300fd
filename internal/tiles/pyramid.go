// Package tiles stores uploaded images as tile pyramids and serves the
// image metadata and tiles the viewer requests.
package tiles

import (
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"

	xdraw "golang.org/x/image/draw"

	"github.com/tilescope/tilescope/backend-go/internal/scene"
)

const metadataFile = "metadata.json"

// Metadata is the description the viewer needs to open an image.
type Metadata struct {
	SizeX      int `json:"sizeX"`
	SizeY      int `json:"sizeY"`
	TileWidth  int `json:"tileWidth"`
	TileHeight int `json:"tileHeight"`
	Levels     int `json:"levels"`
}

// Build writes every level of img under dir as {level}/{x}_{y}.png. Level
// Levels-1 is full resolution and each level below halves it.
func Build(img image.Image, dir string, tileSize int) (Metadata, error) {
	b := img.Bounds()
	meta := Metadata{SizeX: b.Dx(), SizeY: b.Dy(), TileWidth: tileSize, TileHeight: tileSize}
	maxLevel := int(scene.MaxZoom(meta.SizeX, meta.SizeY, tileSize))
	meta.Levels = maxLevel + 1

	for level := maxLevel; level >= 0; level-- {
		scale := math.Exp2(float64(level - maxLevel))
		w := int(math.Ceil(float64(meta.SizeX) * scale))
		h := int(math.Ceil(float64(meta.SizeY) * scale))

		var src image.Image = img
		if level != maxLevel {
			dst := image.NewRGBA(image.Rect(0, 0, w, h))
			xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
			src = dst
		}
		if err := writeLevel(src, filepath.Join(dir, fmt.Sprint(level)), tileSize); err != nil {
			return Metadata{}, fmt.Errorf("level %d: %w", level, err)
		}
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return Metadata{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFile), data, 0644); err != nil {
		return Metadata{}, fmt.Errorf("write metadata: %w", err)
	}
	return meta, nil
}

func writeLevel(img image.Image, dir string, tileSize int) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	b := img.Bounds()
	for ty := 0; ty*tileSize < b.Dy(); ty++ {
		for tx := 0; tx*tileSize < b.Dx(); tx++ {
			r := image.Rect(tx*tileSize, ty*tileSize, (tx+1)*tileSize, (ty+1)*tileSize).Add(b.Min).Intersect(b)
			tile := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
			xdraw.Copy(tile, image.Point{}, img, r, xdraw.Src, nil)
			if err := writePNG(filepath.Join(dir, fmt.Sprintf("%d_%d.png", tx, ty)), tile); err != nil {
				return err
			}
		}
	}
	return nil
}

func writePNG(path string, img image.Image) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		os.Remove(path)
		return err
	}
	return out.Close()
}

// ReadMetadata loads the metadata written by Build.
func ReadMetadata(dir string) (Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}
