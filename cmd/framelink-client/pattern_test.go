package main

import (
    "bytes"
    "image"
    "testing"
)

func TestPatternFramesDiffer(t *testing.T) {
    a := image.NewRGBA(image.Rect(0, 0, 35, 10))
    b := image.NewRGBA(image.Rect(0, 0, 35, 10))
    renderPattern(a, 1)
    renderPattern(b, 2)
    if bytes.Equal(a.Pix, b.Pix) { t.Fatalf("consecutive frames are identical") }
    if !frameOf(a).Valid() { t.Fatalf("frame not tightly packed") }
}

func TestParseFlags(t *testing.T) {
    o := ParseFlags([]string{"-display", "d1", "-frames", "5"})
    if o.Display != "d1" || o.Frames != 5 || o.ConfigPath != "" { t.Fatalf("options %+v", o) }
    if ParseFlags(nil).Frames != -1 { t.Fatalf("frames must default to unset") }
}
