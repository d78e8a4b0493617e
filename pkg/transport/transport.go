package transport

import (
    "context"
    "fmt"
    "net"
    "time"

    "framelink/pkg/handle"
)

// Kind identifies the link type.
type Kind int

const (
    KindUnknown Kind = iota
    KindMem
    KindUnix
)

func (k Kind) String() string {
    switch k {
    case KindMem:
        return "mem"
    case KindUnix:
        return "unix"
    default:
        return "unknown"
    }
}

// MaxPayload bounds one message payload.
const MaxPayload = 1 << 16

// Message is one packet: a payload plus at most one transferable handle.
// Sending a message moves ownership of Handle to the receiver.
type Message struct {
    Payload []byte
    Handle  handle.Handle
}

// PeerInfo describes the remote end of a session.
type PeerInfo struct {
    ID   string
    Addr string
}

// TempPeerID builds a peer id from transport kind and remote address for
// peers that never identify themselves.
func TempPeerID(kind Kind, addr net.Addr) string {
    if addr == nil || addr.String() == "" { return fmt.Sprintf("temp:%s:unknown", kind) }
    return fmt.Sprintf("temp:%s:%s", kind, addr.String())
}

// Quality is a liveness snapshot of a session.
type Quality struct {
    EstablishedAt time.Time
    LastSeen      time.Time
}

// Session is a message-oriented connection. Message boundaries are kept.
// One reader and any number of writers are allowed.
type Session interface {
    Peer() PeerInfo
    TransportKind() Kind
    LocalAddr() net.Addr
    RemoteAddr() net.Addr

    // Send transmits m and takes ownership of m.Handle, even on error.
    Send(m Message) error
    // Recv blocks for the next message. The caller owns the returned handle.
    Recv() (Message, error)

    Quality() Quality
    Close() error
}

// Listener accepts inbound sessions.
type Listener interface {
    // Accept blocks until an inbound session is available or ctx is done.
    Accept(ctx context.Context) (Session, error)
    Addr() net.Addr
    // Close stops the listener and unblocks Accept.
    Close() error
}

// Transport dials and listens for one link kind.
type Transport interface {
    Kind() Kind
    Listen(ctx context.Context, address string) (Listener, error)
    Dial(ctx context.Context, address string, peer PeerInfo) (Session, error)
}
