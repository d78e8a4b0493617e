package handle

import "testing"

func TestTakeMovesOwnership(t *testing.T) {
    h := FromToken("abc")
    moved := h.Take()
    if h.Valid() { t.Fatalf("source must be empty after Take") }
    if tok, ok := moved.Token(); !ok || tok != "abc" { t.Fatalf("moved token mismatch: %v", moved) }
    if err := h.Close(); err != nil { t.Fatalf("close empty: %v", err) }
}

func TestZeroValues(t *testing.T) {
    if FromFD(-1).Valid() { t.Fatalf("negative fd must be empty") }
    if FromToken("").Valid() { t.Fatalf("empty token must be empty") }
    if _, err := (Handle{}).Dup(); err != ErrEmpty { t.Fatalf("dup empty: %v", err) }
    if s := (Handle{}).String(); s != "none" { t.Fatalf("string = %q", s) }
}

func TestDupToken(t *testing.T) {
    h := FromToken("x")
    d, err := h.Dup()
    if err != nil { t.Fatalf("dup: %v", err) }
    if d != h { t.Fatalf("token dup must be equal") }
}
