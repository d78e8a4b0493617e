package main

import (
    "image"
    "image/color"

    "golang.org/x/image/draw"

    "framelink/pkg/driver"
)

var bars = []color.RGBA{
    {0xc0, 0xc0, 0xc0, 0xff},
    {0xc0, 0xc0, 0x00, 0xff},
    {0x00, 0xc0, 0xc0, 0xff},
    {0x00, 0xc0, 0x00, 0xff},
    {0xc0, 0x00, 0xc0, 0xff},
    {0xc0, 0x00, 0x00, 0xff},
    {0x00, 0x00, 0xc0, 0xff},
}

// renderPattern draws colour bars scrolled by n pixels plus a white marker
// whose row encodes n, so consecutive frames differ.
func renderPattern(img *image.RGBA, n int) {
    b := img.Bounds()
    w := b.Dx()
    bw := w / len(bars)
    if bw == 0 { bw = 1 }
    for i := 0; i*bw < w+bw; i++ {
        x := (i*bw + n) % (w + bw) - bw
        r := image.Rect(b.Min.X+x, b.Min.Y, b.Min.X+x+bw, b.Max.Y).Intersect(b)
        draw.Draw(img, r, image.NewUniform(bars[i%len(bars)]), image.Point{}, draw.Src)
    }
    y := b.Min.Y + n%b.Dy()
    draw.Draw(img, image.Rect(b.Min.X, y, b.Max.X, y+1).Intersect(b), image.White, image.Point{}, draw.Src)
}

// frameOf views img as a driver frame. img must start at the origin.
func frameOf(img *image.RGBA) driver.Frame {
    return driver.Frame{Width: img.Rect.Dx(), Height: img.Rect.Dy(), Pix: img.Pix}
}
