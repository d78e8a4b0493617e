//go:build linux

package bootstrap

import (
    "path/filepath"
    "testing"
)

func TestLinuxKinds(t *testing.T) {
    tr, err := NewTransport("unix")
    if err != nil { t.Fatalf("unix transport: %v", err) }
    if got := Address(tr, "/run/x", "display-0"); got != filepath.Join("/run/x", "display-0") { t.Fatalf("unix address %q", got) }
    if got := Address(tr, "/run/x", "/abs/sock"); got != "/abs/sock" { t.Fatalf("absolute address %q", got) }
    d, err := NewDriver("shm")
    if err != nil || d.Name() != "shm" { t.Fatalf("shm driver: %v", err) }
}
