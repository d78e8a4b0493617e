// Package handle models a transferable reference to a frame channel. A Handle
// is a value with move semantics: whoever holds it owns the underlying OS
// descriptor and must either Take it (moving ownership) or Close it.
package handle

import (
    "errors"
    "strconv"
)

// Kind tells how a handle travels between processes.
type Kind uint8

const (
    KindNone  Kind = iota
    KindFD         // OS file descriptor, passed as SCM_RIGHTS
    KindToken      // opaque token, only meaningful to an in-process driver
)

func (k Kind) String() string {
    switch k {
    case KindFD:
        return "fd"
    case KindToken:
        return "token"
    default:
        return "none"
    }
}

// ErrEmpty is returned when an operation needs a handle but got the zero value.
var ErrEmpty = errors.New("handle: empty")

// Handle is either an owned file descriptor or a driver token. The zero value
// is the empty handle.
type Handle struct {
    kind  Kind
    fd    int
    token string
}

// FromFD wraps fd; the returned handle owns it.
func FromFD(fd int) Handle {
    if fd < 0 { return Handle{} }
    return Handle{kind: KindFD, fd: fd}
}

// FromToken wraps an opaque token.
func FromToken(token string) Handle {
    if token == "" { return Handle{} }
    return Handle{kind: KindToken, token: token}
}

func (h Handle) Kind() Kind   { return h.kind }
func (h Handle) Valid() bool  { return h.kind != KindNone }

// FD returns the descriptor without transferring ownership.
func (h Handle) FD() (int, bool) {
    if h.kind != KindFD { return -1, false }
    return h.fd, true
}

func (h Handle) Token() (string, bool) {
    if h.kind != KindToken { return "", false }
    return h.token, true
}

func (h Handle) String() string {
    switch h.kind {
    case KindFD:
        return "fd:" + strconv.Itoa(h.fd)
    case KindToken:
        return "token:" + h.token
    default:
        return "none"
    }
}

// Take moves ownership out of h and leaves h empty.
func (h *Handle) Take() Handle {
    out := *h
    *h = Handle{}
    return out
}

// Close releases the descriptor if h owns one. Closing an empty handle is a no-op.
func (h *Handle) Close() error {
    t := h.Take()
    if t.kind == KindFD { return closeFD(t.fd) }
    return nil
}

// Dup returns an independent handle referring to the same channel. The
// caller owns both h and the result.
func (h Handle) Dup() (Handle, error) {
    switch h.kind {
    case KindFD:
        fd, err := dupFD(h.fd)
        if err != nil { return Handle{}, err }
        return Handle{kind: KindFD, fd: fd}, nil
    case KindToken:
        return h, nil
    default:
        return Handle{}, ErrEmpty
    }
}
