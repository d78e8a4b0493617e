//go:build linux

// Package shm is a cross-process render driver. Each channel is a sealed
// memfd mapping holding a fixed header and one frame slot; the handle is the
// memfd descriptor, so importing a channel is an mmap of a received fd.
//
// Layout (little-endian, 64-byte header, slot follows):
//
//  0 ..3   magic    'F''L''S''H'
//  4 ..7   version  u32
//  8 ..11  capacity u32 (slot bytes)
//  12..15  width    u32
//  16..19  height   u32
//  20..23  length   u32 (bytes in slot)
//  24..39  channel id (uuid, 16 bytes)
//  40..47  lock     u64 (seqlock; odd while a frame is being written)
//  48..55  seq      u64 (last presented sequence number)
//  56..59  dead     u32 (1 once the producer destroyed the channel)
//  60..63  reserved
package shm

import (
    "encoding/binary"
    "fmt"
    "runtime"
    "sync"
    "sync/atomic"
    "unsafe"

    "github.com/pborman/uuid"
    "golang.org/x/sys/unix"

    "framelink/pkg/driver"
    "framelink/pkg/handle"
    "framelink/pkg/status"
)

const (
    headerSize   = 64
    magic        = uint32(0x48534c46) // "FLSH"
    layoutVer    = uint32(1)
    offCapacity  = 8
    offWidth     = 12
    offHeight    = 16
    offLength    = 20
    offID        = 24
    offLock      = 40
    offSeq       = 48
    offDead      = 56
    readAttempts = 4
)

// Driver creates memfd-backed channels.
type Driver struct{}

func New() *Driver { return &Driver{} }

func (d *Driver) Name() string { return "shm" }

func (d *Driver) CreateChannel(slotBytes int) (driver.Channel, error) {
    if slotBytes <= 0 || slotBytes > 1<<30 { return nil, fmt.Errorf("shm: invalid slot size %d", slotBytes) }
    id := uuid.NewRandom()
    fd, err := unix.MemfdCreate("framelink-"+id.String(), unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
    if err != nil { return nil, status.Errorf(status.CodeResourceExhausted, "shm: memfd: %v", err) }
    size := headerSize + slotBytes
    if err := unix.Ftruncate(fd, int64(size)); err != nil {
        _ = unix.Close(fd)
        return nil, status.Errorf(status.CodeResourceExhausted, "shm: truncate %d: %v", size, err)
    }
    if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK|unix.F_SEAL_GROW|unix.F_SEAL_SEAL); err != nil {
        _ = unix.Close(fd)
        return nil, status.Errorf(status.CodeResourceExhausted, "shm: seal: %v", err)
    }
    mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
    if err != nil {
        _ = unix.Close(fd)
        return nil, status.Errorf(status.CodeResourceExhausted, "shm: mmap: %v", err)
    }
    binary.LittleEndian.PutUint32(mem[0:4], magic)
    binary.LittleEndian.PutUint32(mem[4:8], layoutVer)
    binary.LittleEndian.PutUint32(mem[offCapacity:], uint32(slotBytes))
    copy(mem[offID:offID+16], id)
    return &channel{id: id.String(), fd: fd, mem: mem, capacity: slotBytes, owner: true}, nil
}

func (d *Driver) OpenChannel(h handle.Handle) (driver.Channel, error) {
    fd, ok := h.FD()
    if !ok {
        _ = h.Close()
        return nil, status.Errorf(status.CodeInvalidHandle, "shm: foreign handle %s", h)
    }
    fail := func(format string, args ...any) (driver.Channel, error) {
        _ = h.Close()
        return nil, status.Errorf(status.CodeInvalidHandle, format, args...)
    }
    var st unix.Stat_t
    if err := unix.Fstat(fd, &st); err != nil { return fail("shm: fstat: %v", err) }
    if st.Size < headerSize { return fail("shm: region too small (%d bytes)", st.Size) }
    mem, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
    if err != nil { return fail("shm: mmap: %v", err) }
    bad := func(format string, args ...any) (driver.Channel, error) {
        _ = unix.Munmap(mem)
        return fail(format, args...)
    }
    if binary.LittleEndian.Uint32(mem[0:4]) != magic { return bad("shm: bad magic") }
    if v := binary.LittleEndian.Uint32(mem[4:8]); v != layoutVer { return bad("shm: layout version %d", v) }
    capacity := int(binary.LittleEndian.Uint32(mem[offCapacity:]))
    if headerSize+capacity > len(mem) { return bad("shm: capacity %d exceeds region", capacity) }
    id := uuid.UUID(append([]byte(nil), mem[offID:offID+16]...))
    c := &channel{id: id.String(), fd: fd, mem: mem, capacity: capacity}
    if atomic.LoadUint32(c.u32(offDead)) != 0 { return bad("shm: channel %s destroyed", c.id) }
    return c, nil
}

type channel struct {
    id       string
    capacity int
    owner    bool

    mu     sync.RWMutex // guards fd/mem against Close
    wmu    sync.Mutex   // serializes Present
    fd     int
    mem    []byte
    closed bool
}

func (c *channel) u32(off int) *uint32 { return (*uint32)(unsafe.Pointer(&c.mem[off])) }
func (c *channel) u64(off int) *uint64 { return (*uint64)(unsafe.Pointer(&c.mem[off])) }

func (c *channel) stale() error { return status.Errorf(status.CodeStaleBinding, "shm: channel %s destroyed", c.id) }

func (c *channel) ID() string { return c.id }

func (c *channel) Export() (handle.Handle, error) {
    c.mu.RLock()
    defer c.mu.RUnlock()
    if c.closed { return handle.Handle{}, c.stale() }
    return handle.FromFD(c.fd).Dup()
}

func (c *channel) Present(f driver.Frame) (uint64, error) {
    if !f.Valid() { return 0, fmt.Errorf("shm: invalid frame %dx%d (%d bytes)", f.Width, f.Height, len(f.Pix)) }
    if len(f.Pix) > c.capacity {
        return 0, status.Errorf(status.CodeResourceExhausted, "shm: frame %d bytes exceeds slot %d", len(f.Pix), c.capacity)
    }
    c.mu.RLock()
    defer c.mu.RUnlock()
    if c.closed || atomic.LoadUint32(c.u32(offDead)) != 0 { return 0, c.stale() }
    c.wmu.Lock()
    defer c.wmu.Unlock()
    lock := c.u64(offLock)
    atomic.AddUint64(lock, 1)
    copy(c.mem[headerSize:], f.Pix)
    atomic.StoreUint32(c.u32(offWidth), uint32(f.Width))
    atomic.StoreUint32(c.u32(offHeight), uint32(f.Height))
    atomic.StoreUint32(c.u32(offLength), uint32(len(f.Pix)))
    seq := atomic.AddUint64(c.u64(offSeq), 1)
    atomic.AddUint64(lock, 1)
    return seq, nil
}

func (c *channel) Seq() uint64 {
    c.mu.RLock()
    defer c.mu.RUnlock()
    if c.closed { return 0 }
    return atomic.LoadUint64(c.u64(offSeq))
}

func (c *channel) Latest(dst []byte) (uint64, driver.Frame, bool, error) {
    c.mu.RLock()
    defer c.mu.RUnlock()
    if c.closed || atomic.LoadUint32(c.u32(offDead)) != 0 { return 0, driver.Frame{}, false, c.stale() }
    lock := c.u64(offLock)
    for i := 0; i < readAttempts; i++ {
        before := atomic.LoadUint64(lock)
        if before&1 == 1 {
            runtime.Gosched()
            continue
        }
        seq := atomic.LoadUint64(c.u64(offSeq))
        if seq == 0 { return 0, driver.Frame{}, true, nil }
        w := int(atomic.LoadUint32(c.u32(offWidth)))
        h := int(atomic.LoadUint32(c.u32(offHeight)))
        n := int(atomic.LoadUint32(c.u32(offLength)))
        if n > c.capacity || n != driver.Size(w, h) {
            if atomic.LoadUint64(lock) != before { continue }
            return 0, driver.Frame{}, false, fmt.Errorf("shm: corrupt slot header %dx%d/%d", w, h, n)
        }
        pix := append(dst[:0], c.mem[headerSize:headerSize+n]...)
        if atomic.LoadUint64(lock) == before {
            return seq, driver.Frame{Width: w, Height: h, Pix: pix}, true, nil
        }
    }
    return 0, driver.Frame{}, false, nil
}

func (c *channel) Destroyed() bool {
    c.mu.RLock()
    defer c.mu.RUnlock()
    return c.closed || atomic.LoadUint32(c.u32(offDead)) != 0
}

func (c *channel) Close() error {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.closed { return nil }
    c.closed = true
    if c.owner { atomic.StoreUint32(c.u32(offDead), 1) }
    err := unix.Munmap(c.mem)
    c.mem = nil
    if cerr := unix.Close(c.fd); err == nil { err = cerr }
    return err
}
