package signal

import (
    "errors"
    "sync"

    "go.uber.org/zap"

    "framelink/pkg/handle"
)

var ErrAlreadyEstablished = errors.New("signal: connection already established")

// Sender delivers one message to the peer, taking ownership of its handle.
type Sender interface {
    SendSignal(m Message) error
}

// Notifier is the producer side of the signaling protocol for one
// connection. Messages leave in call order.
type Notifier struct {
    s Sender
    b *Builder

    mu          sync.Mutex
    established bool
    connID      uint64
}

func NewNotifier(s Sender, b *Builder) *Notifier { return &Notifier{s: s, b: b} }

// NotifyConnectionEstablished hands h to the server. It may be sent once.
func (n *Notifier) NotifyConnectionEstablished(h handle.Handle, info SurfaceInfo) error {
    n.mu.Lock()
    defer n.mu.Unlock()
    if n.established {
        _ = h.Close()
        return ErrAlreadyEstablished
    }
    m, err := n.b.ConnectionEstablished(h, info)
    if err != nil { return err }
    if err := n.s.SendSignal(m); err != nil { return err }
    n.established = true
    zap.L().Debug("connection established sent", zap.Uint64("surface_id", info.SurfaceID), zap.Int("width", info.Width), zap.Int("height", info.Height))
    return nil
}

// SetConnectionID records the id the server assigned.
func (n *Notifier) SetConnectionID(id uint64) {
    n.mu.Lock(); n.connID = id; n.mu.Unlock()
}

func (n *Notifier) ConnectionID() uint64 {
    n.mu.Lock(); defer n.mu.Unlock()
    return n.connID
}

// NotifyFrameProduced tells the server frame seq is in the channel.
func (n *Notifier) NotifyFrameProduced(connID, seq uint64) error {
    n.mu.Lock()
    defer n.mu.Unlock()
    return n.s.SendSignal(n.b.FrameProduced(connID, seq))
}

// FrameProduced notifies seq under the assigned connection id.
func (n *Notifier) FrameProduced(seq uint64) error {
    return n.NotifyFrameProduced(n.ConnectionID(), seq)
}
