// Package mem is an in-process render driver. Channels live in a table owned
// by the Driver value and handles are token strings, so producer and consumer
// must share one Driver. Useful for tests and single-process demos.
package mem

import (
    "fmt"
    "sync"
    "sync/atomic"

    "github.com/pborman/uuid"

    "framelink/pkg/driver"
    "framelink/pkg/handle"
    "framelink/pkg/status"
)

type Driver struct {
    mu       sync.Mutex
    channels map[string]*slot
    // MaxChannels bounds live channels; 0 means unlimited.
    MaxChannels int
}

func New() *Driver { return &Driver{channels: make(map[string]*slot)} }

func (d *Driver) Name() string { return "mem" }

func (d *Driver) CreateChannel(slotBytes int) (driver.Channel, error) {
    if slotBytes <= 0 { return nil, fmt.Errorf("mem: invalid slot size %d", slotBytes) }
    d.mu.Lock()
    defer d.mu.Unlock()
    if d.MaxChannels > 0 && len(d.channels) >= d.MaxChannels {
        return nil, status.Errorf(status.CodeResourceExhausted, "mem: %d channels live", len(d.channels))
    }
    s := &slot{id: uuid.New(), capacity: slotBytes}
    d.channels[s.id] = s
    return &channel{d: d, s: s, owner: true}, nil
}

func (d *Driver) OpenChannel(h handle.Handle) (driver.Channel, error) {
    tok, ok := h.Token()
    if !ok {
        _ = h.Close()
        return nil, status.Errorf(status.CodeInvalidHandle, "mem: foreign handle %s", h)
    }
    d.mu.Lock()
    s := d.channels[tok]
    d.mu.Unlock()
    if s == nil { return nil, status.Errorf(status.CodeInvalidHandle, "mem: unknown channel %s", tok) }
    if s.destroyed() { return nil, status.Errorf(status.CodeInvalidHandle, "mem: channel %s destroyed", tok) }
    return &channel{d: d, s: s}, nil
}

func (d *Driver) forget(id string) {
    d.mu.Lock()
    delete(d.channels, id)
    d.mu.Unlock()
}

// slot is the shared state of one channel.
type slot struct {
    id       string
    capacity int

    mu     sync.Mutex
    seq    uint64
    frame  driver.Frame
    dead   bool
}

func (s *slot) destroyed() bool {
    s.mu.Lock(); defer s.mu.Unlock()
    return s.dead
}

// channel is one process-local view of a slot.
type channel struct {
    d      *Driver
    s      *slot
    owner  bool
    closed atomic.Bool
}

func (c *channel) ID() string { return c.s.id }

func (c *channel) stale() error { return status.Errorf(status.CodeStaleBinding, "mem: channel %s destroyed", c.s.id) }

func (c *channel) Export() (handle.Handle, error) {
    if c.closed.Load() || c.s.destroyed() { return handle.Handle{}, c.stale() }
    return handle.FromToken(c.s.id), nil
}

func (c *channel) Present(f driver.Frame) (uint64, error) {
    if !f.Valid() { return 0, fmt.Errorf("mem: invalid frame %dx%d (%d bytes)", f.Width, f.Height, len(f.Pix)) }
    if len(f.Pix) > c.s.capacity {
        return 0, status.Errorf(status.CodeResourceExhausted, "mem: frame %d bytes exceeds slot %d", len(f.Pix), c.s.capacity)
    }
    c.s.mu.Lock()
    defer c.s.mu.Unlock()
    if c.closed.Load() || c.s.dead { return 0, c.stale() }
    pix := append(c.s.frame.Pix[:0], f.Pix...)
    c.s.frame = driver.Frame{Width: f.Width, Height: f.Height, Pix: pix}
    c.s.seq++
    return c.s.seq, nil
}

func (c *channel) Seq() uint64 {
    c.s.mu.Lock(); defer c.s.mu.Unlock()
    return c.s.seq
}

func (c *channel) Latest(dst []byte) (uint64, driver.Frame, bool, error) {
    c.s.mu.Lock()
    defer c.s.mu.Unlock()
    if c.closed.Load() || c.s.dead { return 0, driver.Frame{}, false, c.stale() }
    if c.s.seq == 0 { return 0, driver.Frame{}, true, nil }
    pix := append(dst[:0], c.s.frame.Pix...)
    return c.s.seq, driver.Frame{Width: c.s.frame.Width, Height: c.s.frame.Height, Pix: pix}, true, nil
}

func (c *channel) Destroyed() bool { return c.closed.Load() || c.s.destroyed() }

func (c *channel) Close() error {
    if c.closed.Swap(true) { return nil }
    if c.owner {
        c.s.mu.Lock()
        c.s.dead = true
        c.s.frame = driver.Frame{}
        c.s.mu.Unlock()
        c.d.forget(c.s.id)
    }
    return nil
}
