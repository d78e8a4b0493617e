//go:build linux

package shm

import (
    "bytes"
    "errors"
    "testing"

    "golang.org/x/sys/unix"

    "framelink/pkg/driver"
    "framelink/pkg/handle"
    "framelink/pkg/status"
)

func frame(w, h int, v byte) driver.Frame {
    return driver.Frame{Width: w, Height: h, Pix: bytes.Repeat([]byte{v}, driver.Size(w, h))}
}

func TestExportOpenLatest(t *testing.T) {
    d := New()
    prod, err := d.CreateChannel(driver.Size(4, 4))
    if err != nil { t.Fatalf("create: %v", err) }
    defer prod.Close()

    h, err := prod.Export()
    if err != nil { t.Fatalf("export: %v", err) }
    cons, err := d.OpenChannel(h)
    if err != nil { t.Fatalf("open: %v", err) }
    defer cons.Close()
    if cons.ID() != prod.ID() { t.Fatalf("id mismatch: %s vs %s", cons.ID(), prod.ID()) }

    if seq, _, ok, err := cons.Latest(nil); err != nil || !ok || seq != 0 {
        t.Fatalf("empty slot: seq=%d ok=%v err=%v", seq, ok, err)
    }
    for i := 1; i <= 3; i++ {
        if s, err := prod.Present(frame(4, 4, byte(i))); err != nil || s != uint64(i) {
            t.Fatalf("present %d: %d %v", i, s, err)
        }
    }
    seq, f, ok, err := cons.Latest(nil)
    if err != nil || !ok { t.Fatalf("latest: ok=%v err=%v", ok, err) }
    if seq != 3 || f.Width != 4 || f.Height != 4 || f.Pix[0] != 3 {
        t.Fatalf("latest mismatch: seq=%d %dx%d first=%d", seq, f.Width, f.Height, f.Pix[0])
    }
}

func TestChannelIsSealed(t *testing.T) {
    ch, err := New().CreateChannel(driver.Size(2, 2))
    if err != nil { t.Fatalf("create: %v", err) }
    defer ch.Close()
    c := ch.(*channel)
    seals, err := unix.FcntlInt(uintptr(c.fd), unix.F_GET_SEALS, 0)
    if err != nil { t.Fatalf("get seals: %v", err) }
    want := unix.F_SEAL_SHRINK | unix.F_SEAL_GROW | unix.F_SEAL_SEAL
    if seals&want != want { t.Fatalf("seals %#x, want %#x set", seals, want) }
}

func TestSmallerFrameThanSlot(t *testing.T) {
    d := New()
    prod, err := d.CreateChannel(driver.Size(8, 8))
    if err != nil { t.Fatalf("create: %v", err) }
    defer prod.Close()
    if _, err := prod.Present(frame(2, 2, 7)); err != nil { t.Fatalf("present: %v", err) }
    _, f, ok, err := prod.Latest(nil)
    if err != nil || !ok || len(f.Pix) != driver.Size(2, 2) { t.Fatalf("latest: %v %v %d", ok, err, len(f.Pix)) }
    if _, err := prod.Present(frame(9, 9, 1)); !errors.Is(err, status.ErrResourceExhausted) {
        t.Fatalf("oversized frame: %v", err)
    }
}

func TestDestroyedChannel(t *testing.T) {
    d := New()
    prod, err := d.CreateChannel(64)
    if err != nil { t.Fatalf("create: %v", err) }
    early, _ := prod.Export()
    cons, err := d.OpenChannel(early)
    if err != nil { t.Fatalf("open: %v", err) }
    defer cons.Close()

    late, _ := prod.Export()
    if err := prod.Close(); err != nil { t.Fatalf("close: %v", err) }
    if !cons.Destroyed() { t.Fatalf("importer must observe destroy") }
    if _, _, _, err := cons.Latest(nil); !errors.Is(err, status.ErrStaleBinding) {
        t.Fatalf("expected stale binding, got %v", err)
    }
    if _, err := d.OpenChannel(late); !errors.Is(err, status.ErrInvalidHandle) {
        t.Fatalf("expected invalid handle, got %v", err)
    }
    if _, err := prod.Present(frame(2, 2, 1)); !errors.Is(err, status.ErrStaleBinding) {
        t.Fatalf("present after close: %v", err)
    }
}

func TestForeignHandle(t *testing.T) {
    if _, err := New().OpenChannel(handle.FromToken("x")); !errors.Is(err, status.ErrInvalidHandle) {
        t.Fatalf("expected invalid handle, got %v", err)
    }
}
