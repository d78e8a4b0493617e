// Package stream implements stream endpoints: the producer and consumer ends
// of a frame channel, owned by a Display bound to one render driver.
package stream

import (
    "errors"
    "fmt"
    "sync"

    "go.uber.org/zap"

    "framelink/pkg/driver"
    "framelink/pkg/handle"
    "framelink/pkg/status"
)

// Role tells which end of a channel an endpoint is.
type Role uint8

const (
    Producer Role = iota + 1
    Consumer
)

func (r Role) String() string {
    switch r {
    case Producer:
        return "producer"
    case Consumer:
        return "consumer"
    default:
        return "unknown"
    }
}

var (
    ErrAlreadyExported = errors.New("stream: transport handle already exported")
    ErrWrongRole       = errors.New("stream: operation not valid for endpoint role")
    ErrAlreadyBound    = errors.New("stream: endpoint already has a live binding")
    ErrDisplayClosed   = errors.New("stream: display closed")
)

// Display is a process-local rendering context bound to one driver.
type Display struct {
    Name string
    // MaxChannels bounds endpoints owned at once; 0 means unlimited.
    MaxChannels int
    // SlotBytes is the frame capacity of channels this display creates.
    SlotBytes int

    drv driver.Driver

    mu        sync.Mutex
    endpoints map[*Endpoint]struct{}
    closed    bool
}

// NewDisplay returns a display creating channels on d.
func NewDisplay(name string, d driver.Driver, slotBytes, maxChannels int) *Display {
    return &Display{Name: name, MaxChannels: maxChannels, SlotBytes: slotBytes, drv: d, endpoints: make(map[*Endpoint]struct{})}
}

func (d *Display) Driver() driver.Driver { return d.drv }

// Endpoints returns how many endpoints the display currently owns.
func (d *Display) Endpoints() int {
    d.mu.Lock(); defer d.mu.Unlock()
    return len(d.endpoints)
}

// reserve checks capacity before the driver allocates anything.
func (d *Display) reserve() error {
    if d.closed { return ErrDisplayClosed }
    if d.MaxChannels > 0 && len(d.endpoints) >= d.MaxChannels {
        return status.Errorf(status.CodeResourceExhausted, "display %q: %d endpoints live", d.Name, len(d.endpoints))
    }
    return nil
}

// CreateEndpoint allocates a new channel and returns its endpoint.
func (d *Display) CreateEndpoint(role Role) (*Endpoint, error) {
    if role != Producer && role != Consumer { return nil, fmt.Errorf("stream: invalid role %d", role) }
    d.mu.Lock()
    defer d.mu.Unlock()
    if err := d.reserve(); err != nil { return nil, err }
    ch, err := d.drv.CreateChannel(d.SlotBytes)
    if err != nil {
        if status.CodeOf(err) == status.CodeInternal { err = fmt.Errorf("%w: %v", status.ErrResourceExhausted, err) }
        return nil, err
    }
    ep := &Endpoint{role: role, ch: ch, display: d}
    d.endpoints[ep] = struct{}{}
    zap.L().Debug("endpoint created", zap.String("display", d.Name), zap.String("role", role.String()), zap.String("channel", ch.ID()))
    return ep, nil
}

// ImportFromTransportHandle attaches a consumer endpoint to the channel h
// refers to. Ownership of h moves to the display in every case.
func (d *Display) ImportFromTransportHandle(h handle.Handle) (*Endpoint, error) {
    if !h.Valid() { return nil, status.Errorf(status.CodeInvalidHandle, "import: %v", handle.ErrEmpty) }
    d.mu.Lock()
    defer d.mu.Unlock()
    if err := d.reserve(); err != nil {
        _ = h.Close()
        return nil, err
    }
    ch, err := d.drv.OpenChannel(h)
    if err != nil {
        if status.CodeOf(err) != status.CodeInvalidHandle { err = fmt.Errorf("%w: %v", status.ErrInvalidHandle, err) }
        return nil, err
    }
    ep := &Endpoint{role: Consumer, ch: ch, display: d, imported: true, exported: true, baseSeq: ch.Seq()}
    d.endpoints[ep] = struct{}{}
    zap.L().Debug("endpoint imported", zap.String("display", d.Name), zap.String("channel", ch.ID()), zap.Uint64("seq", ep.baseSeq))
    return ep, nil
}

// Close destroys every endpoint the display still owns.
func (d *Display) Close() error {
    d.mu.Lock()
    if d.closed { d.mu.Unlock(); return nil }
    d.closed = true
    eps := make([]*Endpoint, 0, len(d.endpoints))
    for ep := range d.endpoints { eps = append(eps, ep) }
    d.mu.Unlock()
    var errs []error
    for _, ep := range eps {
        if err := ep.Destroy(); err != nil { errs = append(errs, err) }
    }
    return errors.Join(errs...)
}

func (d *Display) forget(ep *Endpoint) {
    d.mu.Lock()
    delete(d.endpoints, ep)
    d.mu.Unlock()
}

// Endpoint is one end of a frame channel.
type Endpoint struct {
    role     Role
    ch       driver.Channel
    display  *Display
    imported bool
    baseSeq  uint64

    mu        sync.Mutex
    exported  bool
    bound     bool
    destroyed bool
}

func (e *Endpoint) Role() Role                { return e.role }
func (e *Endpoint) Display() *Display         { return e.display }
func (e *Endpoint) Channel() driver.Channel   { return e.ch }
func (e *Endpoint) ID() string                { return e.ch.ID() }

// BaseSeq is the channel sequence number observed when a consumer endpoint
// was imported. Frames at or below it were presented before the consumer
// attached and are never delivered.
func (e *Endpoint) BaseSeq() uint64 { return e.baseSeq }

// ExportTransportHandle returns the handle a consumer process imports. It can
// be called once per producer endpoint; the caller owns the result.
func (e *Endpoint) ExportTransportHandle() (handle.Handle, error) {
    if e.role != Producer { return handle.Handle{}, ErrWrongRole }
    e.mu.Lock()
    defer e.mu.Unlock()
    if e.destroyed { return handle.Handle{}, status.Errorf(status.CodeStaleBinding, "export: endpoint %s destroyed", e.ch.ID()) }
    if e.exported { return handle.Handle{}, ErrAlreadyExported }
    h, err := e.ch.Export()
    if err != nil { return handle.Handle{}, err }
    e.exported = true
    return h, nil
}

// Exported reports whether the transport handle was handed out.
func (e *Endpoint) Exported() bool {
    e.mu.Lock(); defer e.mu.Unlock()
    return e.exported
}

// Destroyed reports whether this endpoint or, for consumers, the producer
// end of the channel was destroyed.
func (e *Endpoint) Destroyed() bool {
    e.mu.Lock()
    d := e.destroyed
    e.mu.Unlock()
    return d || e.ch.Destroyed()
}

// Claim reserves the endpoint for a binding. At most one binding holds it.
func (e *Endpoint) Claim() error {
    e.mu.Lock()
    defer e.mu.Unlock()
    if e.destroyed { return status.Errorf(status.CodeStaleBinding, "bind: endpoint %s destroyed", e.ch.ID()) }
    if e.bound { return ErrAlreadyBound }
    e.bound = true
    return nil
}

// Release drops a claim taken with Claim.
func (e *Endpoint) Release() {
    e.mu.Lock()
    e.bound = false
    e.mu.Unlock()
}

// Destroy releases the channel. Destroying a producer marks the channel
// destroyed for every importer. Safe to call more than once.
func (e *Endpoint) Destroy() error {
    e.mu.Lock()
    if e.destroyed { e.mu.Unlock(); return nil }
    e.destroyed = true
    e.bound = false
    e.mu.Unlock()
    err := e.ch.Close()
    e.display.forget(e)
    zap.L().Debug("endpoint destroyed", zap.String("display", e.display.Name), zap.String("role", e.role.String()), zap.String("channel", e.ch.ID()))
    return err
}
