// Package visualization composes the raster outputs of the imaging toolkit
// into the single images embedded in the QC report.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Options controls the layout of a composite image
type Options struct {
	// TileHeight is the height every tile is scaled to; 0 keeps the tallest tile's height
	TileHeight int

	// Gap is the number of background pixels between tiles
	Gap int

	// Labels are drawn in the top-left corner of each tile, matched by index
	Labels []string
}

// Compose decodes the images at paths, scales them to a common height,
// places them left to right and writes the result as PNG to out
func Compose(paths []string, out string, opts Options) error {
	if len(paths) == 0 {
		return fmt.Errorf("no images to compose")
	}

	tiles := make([]image.Image, 0, len(paths))
	for _, p := range paths {
		img, err := decode(p)
		if err != nil {
			return err
		}
		tiles = append(tiles, img)
	}

	canvas := Layout(tiles, opts)

	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("create montage dir: %w", err)
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create montage: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, canvas); err != nil {
		return fmt.Errorf("encode montage: %w", err)
	}
	return nil
}

// Layout places tiles on a black canvas left to right
func Layout(tiles []image.Image, opts Options) *image.RGBA {
	height := opts.TileHeight
	if height <= 0 {
		for _, t := range tiles {
			if h := t.Bounds().Dy(); h > height {
				height = h
			}
		}
	}

	widths := make([]int, len(tiles))
	total := 0
	for i, t := range tiles {
		b := t.Bounds()
		w := b.Dx()
		if b.Dy() > 0 && b.Dy() != height {
			w = b.Dx() * height / b.Dy()
		}
		if w < 1 {
			w = 1
		}
		widths[i] = w
		total += w
	}
	total += opts.Gap * (len(tiles) - 1)

	canvas := image.NewRGBA(image.Rect(0, 0, total, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	x := 0
	for i, t := range tiles {
		dst := image.Rect(x, 0, x+widths[i], height)
		draw.BiLinear.Scale(canvas, dst, t, t.Bounds(), draw.Over, nil)
		if i < len(opts.Labels) && opts.Labels[i] != "" {
			drawLabel(canvas, x+4, opts.Labels[i])
		}
		x += widths[i] + opts.Gap
	}
	return canvas
}

func drawLabel(dst draw.Image, x int, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.RGBA{255, 255, 0, 255}),
		Face: face,
		Dot:  fixed.P(x, face.Metrics().Ascent.Ceil()+2),
	}
	d.DrawString(text)
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tile: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode tile %s: %w", path, err)
	}
	return img, nil
}

// FindByPrefix returns the files named <prefix>*<suffix>, sorted
func FindByPrefix(prefix, suffix string) ([]string, error) {
	matches, err := filepath.Glob(prefix + "*" + suffix)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}
