// Package wsys is the windowing system connection: a compositor listens on a
// display name, producers connect to it, and signals travel over the
// transport. Reader goroutines only queue events; handlers run on whichever
// goroutine calls DispatchEvents, in arrival order per connection.
package wsys

import (
    "errors"
    "sync"
    "sync/atomic"

    "go.uber.org/zap"

    "framelink/pkg/handle"
    "framelink/pkg/protocol/codec"
    "framelink/pkg/signal"
    "framelink/pkg/transport"
)

var (
    ErrClosed       = errors.New("wsys: closed")
    ErrDisconnected = errors.New("wsys: peer disconnected")
)

const defaultQueueDepth = 256

type options struct {
    builder *signal.Builder
    depth   int
}

// Option configures Listen and Connect.
type Option func(*options)

// WithBuilder sets how outgoing bodies are encoded. CBOR by default.
func WithBuilder(b *signal.Builder) Option { return func(o *options) { o.builder = b } }

// WithQueueDepth bounds the number of undispatched events.
func WithQueueDepth(n int) Option { return func(o *options) { if n > 0 { o.depth = n } } }

func buildOptions(opts []Option) (options, error) {
    o := options{depth: defaultQueueDepth}
    for _, fn := range opts { fn(&o) }
    if o.builder == nil {
        reg, err := codec.NewRegistry()
        if err != nil { return o, err }
        o.builder = signal.NewBuilder(reg, codec.FormatCBOR)
    }
    return o, nil
}

// Conn is one windowing connection as seen by either side.
type Conn struct {
    serial uint64
    s      transport.Session
    closed atomic.Bool

    // newest frame notification that did not fit in the event queue
    pmu      sync.Mutex
    pendConn uint64
    pendSeq  uint64
    pendSet  bool
}

// Serial is a process-local number identifying the connection in logs.
func (c *Conn) Serial() uint64               { return c.serial }
func (c *Conn) Peer() transport.PeerInfo     { return c.s.Peer() }
func (c *Conn) Quality() transport.Quality   { return c.s.Quality() }

// SendSignal encodes m and sends it, moving m.Handle to the peer.
func (c *Conn) SendSignal(m signal.Message) error {
    if c.closed.Load() {
        _ = m.Handle.Close()
        return ErrClosed
    }
    tm, err := m.Encode()
    if err != nil {
        _ = m.Handle.Close()
        return err
    }
    return c.s.Send(tm)
}

// Close drops the connection. The peer observes a disconnect.
func (c *Conn) Close() error {
    if c.closed.Swap(true) { return nil }
    return c.s.Close()
}

func (c *Conn) stash(connID, seq uint64) {
    c.pmu.Lock()
    if !c.pendSet || seq > c.pendSeq { c.pendConn, c.pendSeq, c.pendSet = connID, seq, true }
    c.pmu.Unlock()
}

func (c *Conn) takePending() (connID, seq uint64, ok bool) {
    c.pmu.Lock()
    defer c.pmu.Unlock()
    if !c.pendSet { return 0, 0, false }
    c.pendSet = false
    return c.pendConn, c.pendSeq, true
}

// supersede drops a stashed notification no newer than seq.
func (c *Conn) supersede(seq uint64) {
    c.pmu.Lock()
    if c.pendSet && c.pendSeq <= seq { c.pendSet = false }
    c.pmu.Unlock()
}

type eventKind uint8

const (
    eventMessage eventKind = iota
    eventDisconnected
)

type event struct {
    kind eventKind
    conn *Conn
    msg  signal.Message
    err  error
}

// discard releases resources an undispatched event holds.
func (ev *event) discard() { _ = ev.msg.Handle.Close() }

// readLoop turns packets into events until the session fails or done closes.
// The disconnect event is always the last event of a connection.
//
// With a non-nil kick, frame notifications never wait for queue space: when
// the queue is full the newest one is stashed on the connection and kick is
// signalled. Every other event blocks, leaving the transport to buffer.
func readLoop(c *Conn, out chan<- event, done <-chan struct{}, kick chan<- struct{}) {
    push := func(ev event) bool {
        select {
        case out <- ev:
            return true
        case <-done:
            ev.discard()
            return false
        }
    }
    for {
        tm, err := c.s.Recv()
        if err != nil {
            push(event{kind: eventDisconnected, conn: c, err: err})
            return
        }
        m, err := signal.Decode(tm)
        if err != nil {
            zap.L().Warn("dropping malformed signal", zap.Uint64("serial", c.serial), zap.Error(err))
            continue
        }
        ev := event{kind: eventMessage, conn: c, msg: m}
        if kick != nil && m.Header.Type == signal.TypeFrameProduced {
            select {
            case out <- ev:
            case <-done:
                ev.discard()
                return
            default:
                ev.discard()
                c.stash(m.Header.ConnID, m.Header.Seq)
                select { case kick <- struct{}{}: default: }
            }
            continue
        }
        if !push(ev) { return }
    }
}

// closeHandle closes h, used for handles on messages nobody consumes.
func closeHandle(h *handle.Handle) {
    if h.Valid() { _ = h.Close() }
}
