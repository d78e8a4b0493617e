// Package surface binds stream endpoints to presentable surfaces: a native
// window on the producer side, a texture on the consumer side.
package surface

import (
    "fmt"
    "sync"

    "go.uber.org/zap"

    "framelink/pkg/driver"
    "framelink/pkg/status"
    "framelink/pkg/stream"
    "framelink/pkg/texture"
)

// NativeKind is the kind of native object a producer surface wraps.
type NativeKind uint8

const (
    NativeWindow NativeKind = iota + 1
    NativePixmap
    NativeBuffer
)

func (k NativeKind) String() string {
    switch k {
    case NativeWindow:
        return "window"
    case NativePixmap:
        return "pixmap"
    case NativeBuffer:
        return "buffer"
    default:
        return "unknown"
    }
}

// NativeHandle identifies the native object a surface presents into.
type NativeHandle struct {
    Kind   NativeKind
    ID     uint64
    Width  int
    Height int
}

// FrameToken identifies a presented frame by its channel sequence number.
type FrameToken struct {
    Seq uint64
}

// FrameNotifier is told about every frame a producer binding publishes.
type FrameNotifier interface {
    FrameProduced(seq uint64) error
}

// NotifierFunc adapts a function to FrameNotifier.
type NotifierFunc func(seq uint64) error

func (f NotifierFunc) FrameProduced(seq uint64) error { return f(seq) }

type options struct {
    supported map[NativeKind]bool
    notifier  FrameNotifier
}

// Option configures BindProducer.
type Option func(*options)

// WithSupportedKinds replaces the set of native kinds accepted. Windows only
// by default.
func WithSupportedKinds(kinds ...NativeKind) Option {
    return func(o *options) {
        o.supported = make(map[NativeKind]bool, len(kinds))
        for _, k := range kinds { o.supported[k] = true }
    }
}

// WithNotifier sets the notifier Present calls after publishing a frame.
func WithNotifier(n FrameNotifier) Option { return func(o *options) { o.notifier = n } }

// Binding ties an endpoint to a surface. Its lifetime is the endpoint's.
type Binding struct {
    ep       *stream.Endpoint
    native   NativeHandle
    tex      *texture.Texture
    notifier FrameNotifier

    mu        sync.Mutex
    last      uint64
    buf       []byte
    destroyed bool
}

// BindProducer creates the presentable surface for a producer endpoint.
// Nothing changes on failure.
func BindProducer(ep *stream.Endpoint, native NativeHandle, opts ...Option) (*Binding, error) {
    o := options{supported: map[NativeKind]bool{NativeWindow: true}}
    for _, fn := range opts { fn(&o) }
    if !o.supported[native.Kind] {
        return nil, status.Errorf(status.CodeUnsupportedNativeType, "bind: native %s not supported", native.Kind)
    }
    if ep.Role() != stream.Producer { return nil, stream.ErrWrongRole }
    if err := ep.Claim(); err != nil { return nil, err }
    zap.L().Debug("producer bound", zap.String("channel", ep.ID()), zap.String("native", native.Kind.String()), zap.Uint64("native_id", native.ID))
    return &Binding{ep: ep, native: native, notifier: o.notifier}, nil
}

// BindConsumer attaches a texture from pool to a consumer endpoint.
func BindConsumer(ep *stream.Endpoint, pool *texture.Pool) (*Binding, error) {
    if ep.Role() != stream.Consumer { return nil, stream.ErrWrongRole }
    if err := ep.Claim(); err != nil { return nil, err }
    tex, err := pool.Acquire()
    if err != nil {
        ep.Release()
        return nil, err
    }
    zap.L().Debug("consumer bound", zap.String("channel", ep.ID()), zap.Uint32("texture", tex.ID()), zap.Uint64("base_seq", ep.BaseSeq()))
    return &Binding{ep: ep, tex: tex, last: ep.BaseSeq()}, nil
}

func (b *Binding) Endpoint() *stream.Endpoint { return b.ep }
func (b *Binding) Native() NativeHandle       { return b.native }
func (b *Binding) Texture() *texture.Texture  { return b.tex }

// SurfaceID is the native id for producers and the texture id for consumers.
func (b *Binding) SurfaceID() uint64 {
    if b.tex != nil { return uint64(b.tex.ID()) }
    return b.native.ID
}

func (b *Binding) stale() error {
    return status.Errorf(status.CodeStaleBinding, "binding on channel %s destroyed", b.ep.ID())
}

// Present publishes f as the channel's newest frame and notifies the
// consumer side. A notify failure is returned together with the token of
// the frame that was already published.
func (b *Binding) Present(f driver.Frame) (FrameToken, error) {
    if b.ep.Role() != stream.Producer { return FrameToken{}, stream.ErrWrongRole }
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.destroyed || b.ep.Destroyed() { return FrameToken{}, b.stale() }
    seq, err := b.ep.Channel().Present(f)
    if err != nil { return FrameToken{}, err }
    b.last = seq
    tok := FrameToken{Seq: seq}
    if b.notifier != nil {
        if err := b.notifier.FrameProduced(seq); err != nil { return tok, fmt.Errorf("notify frame %d: %w", seq, err) }
    }
    return tok, nil
}

// AcquireLatest uploads the newest frame into the binding's texture. fresh is
// false when no frame newer than the last acquired one exists; the returned
// token is then the last acquired one.
func (b *Binding) AcquireLatest() (tok FrameToken, fresh bool, err error) {
    if b.ep.Role() != stream.Consumer { return FrameToken{}, false, stream.ErrWrongRole }
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.destroyed || b.ep.Destroyed() { return FrameToken{}, false, b.stale() }
    seq, f, ok, err := b.ep.Channel().Latest(b.buf)
    if err != nil { return FrameToken{}, false, err }
    if !ok || seq <= b.last { return FrameToken{Seq: b.last}, false, nil }
    if err := b.tex.Upload(f, seq); err != nil { return FrameToken{Seq: b.last}, false, err }
    b.buf = f.Pix
    b.last = seq
    return FrameToken{Seq: seq}, true, nil
}

// LastSeq returns the sequence number last presented or acquired.
func (b *Binding) LastSeq() uint64 {
    b.mu.Lock(); defer b.mu.Unlock()
    return b.last
}

// Destroy releases the texture and destroys the endpoint.
func (b *Binding) Destroy() error {
    b.mu.Lock()
    if b.destroyed { b.mu.Unlock(); return nil }
    b.destroyed = true
    b.mu.Unlock()
    if b.tex != nil { b.tex.Release() }
    b.ep.Release()
    return b.ep.Destroy()
}
