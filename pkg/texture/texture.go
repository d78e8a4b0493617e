// Package texture holds the consumer-side textures frames are uploaded into.
package texture

import (
    "fmt"
    "image"
    "sync"

    "framelink/pkg/driver"
    "framelink/pkg/status"
)

// Texture is an RGBA image a consumer binding uploads frames into. Its
// contents persist until the next upload, so a compositor can keep drawing
// the previous frame when nothing new arrived.
type Texture struct {
    id   uint32
    pool *Pool

    mu  sync.RWMutex
    img *image.RGBA
    seq uint64
}

func (t *Texture) ID() uint32 { return t.id }

// Upload copies f into the texture, resizing it to the frame's dimensions.
func (t *Texture) Upload(f driver.Frame, seq uint64) error {
    if !f.Valid() { return fmt.Errorf("texture %d: invalid frame %dx%d", t.id, f.Width, f.Height) }
    t.mu.Lock()
    defer t.mu.Unlock()
    if t.img == nil || t.img.Rect.Dx() != f.Width || t.img.Rect.Dy() != f.Height {
        t.img = image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
    }
    copy(t.img.Pix, f.Pix)
    t.seq = seq
    return nil
}

// Seq is the sequence number of the frame last uploaded (0 if none).
func (t *Texture) Seq() uint64 {
    t.mu.RLock(); defer t.mu.RUnlock()
    return t.seq
}

// View calls fn with the current image while holding a read lock. img is nil
// until the first upload.
func (t *Texture) View(fn func(img *image.RGBA)) {
    t.mu.RLock()
    defer t.mu.RUnlock()
    fn(t.img)
}

// Release returns the texture to its pool. Releasing twice is a no-op.
func (t *Texture) Release() {
    if t.pool != nil { t.pool.release(t) }
}

// Pool hands out textures up to a fixed capacity.
type Pool struct {
    mu       sync.Mutex
    capacity int
    next     uint32
    live     map[uint32]*Texture
}

// NewPool returns a pool allowing capacity live textures; 0 means unlimited.
func NewPool(capacity int) *Pool {
    return &Pool{capacity: capacity, live: make(map[uint32]*Texture)}
}

// Acquire allocates a texture.
func (p *Pool) Acquire() (*Texture, error) {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.capacity > 0 && len(p.live) >= p.capacity {
        return nil, status.Errorf(status.CodeResourceExhausted, "texture pool: %d of %d in use", len(p.live), p.capacity)
    }
    p.next++
    t := &Texture{id: p.next, pool: p}
    p.live[t.id] = t
    return t, nil
}

// Live returns the number of textures not yet released.
func (p *Pool) Live() int {
    p.mu.Lock(); defer p.mu.Unlock()
    return len(p.live)
}

func (p *Pool) release(t *Texture) {
    p.mu.Lock()
    delete(p.live, t.id)
    p.mu.Unlock()
}
