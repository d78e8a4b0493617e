// Package compose draws consumer textures onto one output canvas and writes
// canvas snapshots.
package compose

import (
    "fmt"
    "image"
    "image/color"
    "io"
    "math"
    "os"
    "path/filepath"

    "golang.org/x/image/bmp"
    "golang.org/x/image/draw"

    "framelink/pkg/texture"
)

// Compositor owns the output canvas.
type Compositor struct {
    canvas *image.RGBA
    bg     image.Image
    scaler draw.Scaler
}

// New returns a compositor with a w x h canvas.
func New(w, h int) *Compositor {
    return &Compositor{
        canvas: image.NewRGBA(image.Rect(0, 0, w, h)),
        bg:     image.NewUniform(color.RGBA{A: 0xff}),
        scaler: draw.ApproxBiLinear,
    }
}

func (c *Compositor) Canvas() *image.RGBA { return c.canvas }

// SetScaler picks the interpolator, e.g. draw.NearestNeighbor.
func (c *Compositor) SetScaler(s draw.Scaler) { c.scaler = s }

// Layout splits bounds into a near-square grid of n cells, row by row.
func Layout(n int, bounds image.Rectangle) []image.Rectangle {
    if n <= 0 { return nil }
    cols := int(math.Ceil(math.Sqrt(float64(n))))
    rows := (n + cols - 1) / cols
    cw, ch := bounds.Dx()/cols, bounds.Dy()/rows
    out := make([]image.Rectangle, n)
    for i := range out {
        x, y := bounds.Min.X+(i%cols)*cw, bounds.Min.Y+(i/cols)*ch
        out[i] = image.Rect(x, y, x+cw, y+ch)
    }
    return out
}

// Compose clears the canvas and draws each texture into its grid cell.
// Textures that never received a frame leave their cell blank. It returns
// how many textures were drawn.
func (c *Compositor) Compose(texs []*texture.Texture) int {
    draw.Draw(c.canvas, c.canvas.Bounds(), c.bg, image.Point{}, draw.Src)
    drawn := 0
    for i, cell := range Layout(len(texs), c.canvas.Bounds()) {
        texs[i].View(func(img *image.RGBA) {
            if img == nil || cell.Empty() { return }
            c.scaler.Scale(c.canvas, cell, img, img.Bounds(), draw.Over, nil)
            drawn++
        })
    }
    return drawn
}

// EncodeSnapshot writes img as BMP.
func EncodeSnapshot(w io.Writer, img image.Image) error { return bmp.Encode(w, img) }

// WriteSnapshot atomically replaces path with a BMP of the canvas.
func (c *Compositor) WriteSnapshot(path string) error {
    tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
    if err != nil { return fmt.Errorf("snapshot: %w", err) }
    defer os.Remove(tmp.Name())
    if err := EncodeSnapshot(tmp, c.canvas); err != nil {
        _ = tmp.Close()
        return fmt.Errorf("snapshot: encode: %w", err)
    }
    if err := tmp.Close(); err != nil { return fmt.Errorf("snapshot: %w", err) }
    return os.Rename(tmp.Name(), path)
}
