package texture

import (
    "bytes"
    "errors"
    "image"
    "testing"

    "framelink/pkg/driver"
    "framelink/pkg/status"
)

func TestPoolCapacity(t *testing.T) {
    p := NewPool(1)
    tex, err := p.Acquire()
    if err != nil { t.Fatalf("acquire: %v", err) }
    if _, err := p.Acquire(); !errors.Is(err, status.ErrResourceExhausted) {
        t.Fatalf("expected exhausted, got %v", err)
    }
    tex.Release()
    tex.Release()
    if p.Live() != 0 { t.Fatalf("live = %d", p.Live()) }
    if _, err := p.Acquire(); err != nil { t.Fatalf("acquire after release: %v", err) }
}

func TestUploadKeepsLastFrame(t *testing.T) {
    tex, _ := NewPool(0).Acquire()
    tex.View(func(img *image.RGBA) { if img != nil { t.Fatalf("texture must start empty") } })
    f := driver.Frame{Width: 2, Height: 1, Pix: bytes.Repeat([]byte{9}, driver.Size(2, 1))}
    if err := tex.Upload(f, 4); err != nil { t.Fatalf("upload: %v", err) }
    if tex.Seq() != 4 { t.Fatalf("seq = %d", tex.Seq()) }
    tex.View(func(img *image.RGBA) {
        if img.Rect.Dx() != 2 || img.Rect.Dy() != 1 || img.Pix[0] != 9 { t.Fatalf("unexpected image %v", img.Rect) }
    })
    if err := tex.Upload(driver.Frame{Width: 3, Height: 3}, 5); err == nil { t.Fatalf("invalid frame must fail") }
    if tex.Seq() != 4 { t.Fatalf("failed upload must keep previous frame") }
}
