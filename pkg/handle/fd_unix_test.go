//go:build unix

package handle

import (
    "os"
    "testing"
)

func TestDupFD(t *testing.T) {
    r, w, err := os.Pipe()
    if err != nil { t.Fatalf("pipe: %v", err) }
    defer r.Close()
    defer w.Close()

    h := FromFD(int(w.Fd()))
    d, err := h.Dup()
    if err != nil { t.Fatalf("dup: %v", err) }
    fd, _ := d.FD()
    if fd == int(w.Fd()) { t.Fatalf("dup must return a new descriptor") }
    if err := d.Close(); err != nil { t.Fatalf("close dup: %v", err) }
    if d.Valid() { t.Fatalf("closed handle must be empty") }
}
