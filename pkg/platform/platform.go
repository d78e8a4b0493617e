// Package platform is the surface-creation shim a rendering client loads. It
// negotiates an interface version, exposes its entry points through a hook
// table looked up by name, and routes protocol errors to the driver's
// error reporter.
package platform

import (
    "context"
    "errors"
    "fmt"

    "go.uber.org/zap"

    "framelink/pkg/driver"
    "framelink/pkg/handle"
    "framelink/pkg/status"
    "framelink/pkg/stream"
    "framelink/pkg/surface"
)

// Interface version implemented here.
const (
    VersionMajor = 1
    VersionMinor = 0
    VersionMicro = 123
)

// Hook names understood by Platform.Hook.
const (
    HookCreateWindowSurface = "CreatePlatformWindowSurface"
    HookCreatePixmapSurface = "CreatePlatformPixmapSurface"
    HookCreatePbufferSurface = "CreatePbufferSurface"
    HookSwapBuffers         = "SwapBuffers"
)

var ErrIncompatibleVersion = errors.New("platform: incompatible interface version")

// Version is a major.minor.micro triple.
type Version struct{ Major, Minor, Micro int }

func (v Version) String() string { return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro) }

// Compatible reports whether a caller asking for major.minor can use this
// implementation: majors must match and the requested minor must not be newer.
func Compatible(major, minor int) bool { return major == VersionMajor && minor <= VersionMinor }

// Hook signatures.
type (
    WindowSurfaceFunc  func(ctx context.Context, d *Display, native surface.NativeHandle) (*Surface, error)
    PixmapSurfaceFunc  func(ctx context.Context, d *Display, native surface.NativeHandle) (*Surface, error)
    PbufferSurfaceFunc func(ctx context.Context, d *Display, width, height int) (*Surface, error)
    SwapBuffersFunc    func(d *Display, s *Surface, f driver.Frame) bool
)

// Connector hands a freshly exported channel to the compositor. It returns
// the notifier the new surface reports presented frames to.
type Connector interface {
    Connect(ctx context.Context, h handle.Handle, native surface.NativeHandle) (surface.FrameNotifier, error)
}

// Platform is a loaded shim instance.
type Platform struct {
    version  Version
    reporter status.Reporter
    kinds    []surface.NativeKind
    hooks    map[string]any
}

// Option configures Load.
type Option func(*Platform)

// WithNativeKinds sets the native surface kinds the platform can create.
// Windows only by default.
func WithNativeKinds(kinds ...surface.NativeKind) Option {
    return func(p *Platform) { p.kinds = append([]surface.NativeKind(nil), kinds...) }
}

// Load checks the requested version and returns a platform reporting errors
// to r. A nil reporter logs them.
func Load(major, minor int, r status.Reporter, opts ...Option) (*Platform, error) {
    if !Compatible(major, minor) {
        return nil, fmt.Errorf("%w: requested %d.%d, have %d.%d", ErrIncompatibleVersion, major, minor, VersionMajor, VersionMinor)
    }
    if r == nil { r = status.LogReporter{} }
    p := &Platform{
        version:  Version{VersionMajor, VersionMinor, VersionMicro},
        reporter: r,
        kinds:    []surface.NativeKind{surface.NativeWindow},
    }
    for _, fn := range opts { fn(p) }
    p.hooks = map[string]any{
        HookCreateWindowSurface:  WindowSurfaceFunc(createWindowSurface),
        HookCreatePixmapSurface:  PixmapSurfaceFunc(createPixmapSurface),
        HookCreatePbufferSurface: PbufferSurfaceFunc(createPbufferSurface),
        HookSwapBuffers:          SwapBuffersFunc(swapBuffers),
    }
    return p, nil
}

func (p *Platform) Version() Version { return p.version }

// Hook returns the entry point registered under name, or nil.
func (p *Platform) Hook(name string) any { return p.hooks[name] }

func (p *Platform) supports(k surface.NativeKind) bool {
    for _, s := range p.kinds {
        if s == k { return true }
    }
    return false
}

// OpenDisplay wraps a stream display and the connector used to reach the
// compositor.
func (p *Platform) OpenDisplay(sd *stream.Display, c Connector) *Display {
    return &Display{p: p, sd: sd, conn: c}
}

// Display is a platform display: the native connection plus the stream
// display surfaces are created on.
type Display struct {
    p    *Platform
    sd   *stream.Display
    conn Connector
}

func (d *Display) Platform() *Platform       { return d.p }
func (d *Display) Stream() *stream.Display   { return d.sd }

// Surface is a presentable producer surface created by a Display.
type Surface struct {
    display *Display
    binding *surface.Binding
}

func (s *Surface) Display() *Display          { return s.display }
func (s *Surface) Binding() *surface.Binding  { return s.binding }

// Destroy tears down the surface and its endpoint.
func (s *Surface) Destroy() error { return s.binding.Destroy() }

// CreateWindowSurface runs the window hook.
func (d *Display) CreateWindowSurface(ctx context.Context, native surface.NativeHandle) (*Surface, error) {
    return d.p.hooks[HookCreateWindowSurface].(WindowSurfaceFunc)(ctx, d, native)
}

// SwapBuffers runs the swap hook.
func (d *Display) SwapBuffers(s *Surface, f driver.Frame) bool {
    return d.p.hooks[HookSwapBuffers].(SwapBuffersFunc)(d, s, f)
}

func (d *Display) fail(err error) error {
    status.Report(d.p.reporter, err)
    return err
}

// createNative runs create, export, connect and bind for a native object.
// Every step is undone on failure.
func createNative(ctx context.Context, d *Display, native surface.NativeHandle) (*Surface, error) {
    if !d.p.supports(native.Kind) {
        return nil, d.fail(status.Errorf(status.CodeUnsupportedNativeType, "native %s not supported", native.Kind))
    }
    ep, err := d.sd.CreateEndpoint(stream.Producer)
    if err != nil { return nil, d.fail(err) }
    h, err := ep.ExportTransportHandle()
    if err != nil {
        _ = ep.Destroy()
        return nil, d.fail(err)
    }
    n, err := d.conn.Connect(ctx, h.Take(), native)
    if err != nil {
        _ = ep.Destroy()
        return nil, d.fail(err)
    }
    b, err := surface.BindProducer(ep, native, surface.WithNotifier(n), surface.WithSupportedKinds(d.p.kinds...))
    if err != nil {
        _ = ep.Destroy()
        return nil, d.fail(err)
    }
    zap.L().Info("surface created", zap.String("native", native.Kind.String()), zap.Uint64("native_id", native.ID), zap.String("channel", ep.ID()))
    return &Surface{display: d, binding: b}, nil
}

func createWindowSurface(ctx context.Context, d *Display, native surface.NativeHandle) (*Surface, error) {
    native.Kind = surface.NativeWindow
    return createNative(ctx, d, native)
}

func createPixmapSurface(ctx context.Context, d *Display, native surface.NativeHandle) (*Surface, error) {
    native.Kind = surface.NativePixmap
    return createNative(ctx, d, native)
}

func createPbufferSurface(ctx context.Context, d *Display, width, height int) (*Surface, error) {
    return createNative(ctx, d, surface.NativeHandle{Kind: surface.NativeBuffer, Width: width, Height: height})
}

func swapBuffers(d *Display, s *Surface, f driver.Frame) bool {
    if s == nil || s.display != d {
        d.p.reporter.SetError(status.CodeBadSurface, "invalid surface")
        return false
    }
    if _, err := s.binding.Present(f); err != nil {
        _ = d.fail(err)
        return false
    }
    return true
}
