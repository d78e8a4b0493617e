package handoff

import (
    "context"
    "errors"
    "fmt"
    "sync"

    "go.uber.org/zap"

    "framelink/pkg/driver"
    "framelink/pkg/handle"
    "framelink/pkg/platform"
    "framelink/pkg/signal"
    "framelink/pkg/status"
    "framelink/pkg/stream"
    "framelink/pkg/surface"
    "framelink/pkg/transport"
    "framelink/pkg/wsys"
)

var ErrSurfaceLost = errors.New("handoff: compositor connection lost")

// Producer is the rendering-client side: it creates window surfaces whose
// frames reach the compositor listening on a display name. Each surface has
// its own windowing connection.
type Producer struct {
    tr       transport.Transport
    name     string
    wopts    []wsys.Option
    platform *platform.Platform
    display  *platform.Display

    errMu   sync.Mutex
    lastErr error

    createMu sync.Mutex
    pending  *ProducerSurface

    mu       sync.Mutex
    surfaces []*ProducerSurface
}

// NewProducer creates surfaces on sd and connects them to the display name
// over tr. kinds lists the native surface kinds accepted; windows only when
// empty.
func NewProducer(tr transport.Transport, name string, sd *stream.Display, kinds []surface.NativeKind, opts ...wsys.Option) (*Producer, error) {
    p := &Producer{tr: tr, name: name, wopts: opts}
    var popts []platform.Option
    if len(kinds) > 0 { popts = append(popts, platform.WithNativeKinds(kinds...)) }
    pl, err := platform.Load(platform.VersionMajor, platform.VersionMinor, status.ReporterFunc(p.setError), popts...)
    if err != nil { return nil, err }
    p.platform = pl
    p.display = pl.OpenDisplay(sd, p)
    return p, nil
}

func (p *Producer) setError(code status.Code, msg string) {
    zap.L().Warn("platform error", zap.String("code", code.String()), zap.String("msg", msg))
    p.errMu.Lock()
    p.lastErr = &status.Error{Code: code, Msg: msg}
    p.errMu.Unlock()
}

// takeError returns and clears the last reported platform error.
func (p *Producer) takeError() error {
    p.errMu.Lock()
    defer p.errMu.Unlock()
    err := p.lastErr
    p.lastErr = nil
    return err
}

func (p *Producer) Platform() *platform.Platform { return p.platform }

// ProducerSurface is one window surface and its compositor connection.
type ProducerSurface struct {
    p        *Producer
    surf     *platform.Surface
    client   *wsys.Client
    notifier *signal.Notifier

    mu     sync.Mutex
    lost   bool
    closed bool
}

// ConnectionID is the id the compositor assigned.
func (s *ProducerSurface) ConnectionID() uint64 { return s.notifier.ConnectionID() }

func (s *ProducerSurface) Binding() *surface.Binding { return s.surf.Binding() }

// Connect implements platform.Connector: it dials the display, hands over h
// and waits for the compositor's verdict.
func (p *Producer) Connect(ctx context.Context, h handle.Handle, native surface.NativeHandle) (surface.FrameNotifier, error) {
    client, err := wsys.Connect(ctx, p.tr, p.name, p.wopts...)
    if err != nil {
        _ = h.Close()
        return nil, fmt.Errorf("connect %s: %w", p.name, err)
    }
    n := signal.NewNotifier(client, client.Builder())
    info := signal.SurfaceInfo{SurfaceID: native.ID, Width: native.Width, Height: native.Height}
    if err := n.NotifyConnectionEstablished(h.Take(), info); err != nil {
        _ = client.Close()
        return nil, err
    }
    for {
        m, err := client.Next(ctx)
        if err != nil {
            _ = client.Close()
            return nil, err
        }
        switch m.Header.Type {
        case signal.TypeConnectionAccepted:
            n.SetConnectionID(m.Header.ConnID)
            p.pending = &ProducerSurface{p: p, client: client, notifier: n}
            return n, nil
        case signal.TypeConnectionRejected:
            r, rerr := client.Builder().Rejection(m)
            _ = client.Close()
            if rerr != nil { return nil, fmt.Errorf("connection rejected: %w", rerr) }
            return nil, status.Errorf(status.Code(r.Code), "rejected by compositor: %s", r.Reason)
        default:
            zap.L().Debug("ignoring signal while connecting", zap.String("type", m.Header.Type.String()))
        }
    }
}

// CreateWindowSurface creates a window surface of w x h identified by
// nativeID and hands its channel to the compositor.
func (p *Producer) CreateWindowSurface(ctx context.Context, nativeID uint64, w, h int) (*ProducerSurface, error) {
    p.createMu.Lock()
    defer p.createMu.Unlock()
    p.pending = nil
    surf, err := p.display.CreateWindowSurface(ctx, surface.NativeHandle{Kind: surface.NativeWindow, ID: nativeID, Width: w, Height: h})
    ps := p.pending
    p.pending = nil
    if err != nil {
        if ps != nil { _ = ps.client.Close() }
        _ = p.takeError()
        return nil, err
    }
    ps.surf = surf
    p.mu.Lock()
    p.surfaces = append(p.surfaces, ps)
    p.mu.Unlock()
    zap.L().Info("window surface ready", zap.Uint64("conn_id", ps.ConnectionID()), zap.Uint64("native_id", nativeID))
    return ps, nil
}

// Present swaps f onto the surface.
func (s *ProducerSurface) Present(f driver.Frame) error {
    s.mu.Lock()
    lost, closed := s.lost, s.closed
    s.mu.Unlock()
    if closed { return status.Errorf(status.CodeStaleBinding, "surface closed") }
    if lost { return ErrSurfaceLost }
    if !s.p.display.SwapBuffers(s.surf, f) {
        if err := s.p.takeError(); err != nil { return err }
        return errors.New("handoff: swap failed")
    }
    return nil
}

// Lost reports whether the compositor dropped the connection.
func (s *ProducerSurface) Lost() bool {
    s.mu.Lock(); defer s.mu.Unlock()
    return s.lost
}

// Close destroys the surface and disconnects it.
func (s *ProducerSurface) Close() error {
    s.mu.Lock()
    if s.closed { s.mu.Unlock(); return nil }
    s.closed = true
    s.mu.Unlock()
    err := s.surf.Destroy()
    if cerr := s.client.Close(); err == nil { err = cerr }
    s.p.forget(s)
    return err
}

func (s *ProducerSurface) OnConnectionAccepted(uint64)            {}
func (s *ProducerSurface) OnConnectionRejected(signal.Rejection)  {}

func (s *ProducerSurface) OnDisconnected(err error) {
    s.mu.Lock()
    s.lost = true
    s.mu.Unlock()
    zap.L().Warn("compositor connection lost", zap.Uint64("conn_id", s.ConnectionID()), zap.Error(err))
}

func (p *Producer) forget(s *ProducerSurface) {
    p.mu.Lock()
    defer p.mu.Unlock()
    for i, x := range p.surfaces {
        if x == s {
            p.surfaces = append(p.surfaces[:i], p.surfaces[i+1:]...)
            return
        }
    }
}

func (p *Producer) snapshot() []*ProducerSurface {
    p.mu.Lock()
    defer p.mu.Unlock()
    return append([]*ProducerSurface(nil), p.surfaces...)
}

// DispatchEvents handles pending compositor messages for every surface.
func (p *Producer) DispatchEvents() int {
    n := 0
    for _, s := range p.snapshot() { n += s.client.DispatchEvents(s) }
    return n
}

// Close closes every surface.
func (p *Producer) Close() error {
    var errs []error
    for _, s := range p.snapshot() {
        if err := s.Close(); err != nil { errs = append(errs, err) }
    }
    return errors.Join(errs...)
}
