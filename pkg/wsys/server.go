package wsys

import (
    "context"
    "errors"
    "io"
    "net"
    "sync"

    "go.uber.org/zap"

    "framelink/pkg/handle"
    "framelink/pkg/signal"
    "framelink/pkg/status"
    "framelink/pkg/transport"
)

// Handler receives server-side windowing events. Methods are called only
// from DispatchEvents. OnConnectionEstablished owns h.
type Handler interface {
    OnConnectionEstablished(c *Conn, h handle.Handle, info signal.SurfaceInfo)
    OnFrameProduced(c *Conn, connID, seq uint64)
    OnDisconnected(c *Conn, err error)
}

// Server is the compositor end of a display.
type Server struct {
    l       transport.Listener
    h       Handler
    b       *signal.Builder
    events  chan event
    kick    chan struct{}
    done    chan struct{}
    closeMu sync.Once
    wg      sync.WaitGroup

    mu     sync.Mutex
    conns  map[*Conn]struct{}
    serial uint64
}

// Listen starts accepting producers on name.
func Listen(ctx context.Context, tr transport.Transport, name string, h Handler, opts ...Option) (*Server, error) {
    o, err := buildOptions(opts)
    if err != nil { return nil, err }
    l, err := tr.Listen(ctx, name)
    if err != nil { return nil, err }
    s := &Server{l: l, h: h, b: o.builder, events: make(chan event, o.depth), kick: make(chan struct{}, 1), done: make(chan struct{}), conns: make(map[*Conn]struct{})}
    s.wg.Add(1)
    go s.acceptLoop(ctx)
    go func() { select { case <-ctx.Done(): _ = s.Close(); case <-s.done: } }()
    zap.L().Info("display listening", zap.String("transport", tr.Kind().String()), zap.String("addr", l.Addr().String()))
    return s, nil
}

func (s *Server) Addr() net.Addr            { return s.l.Addr() }
func (s *Server) Builder() *signal.Builder  { return s.b }

// Conns returns the number of live connections.
func (s *Server) Conns() int {
    s.mu.Lock(); defer s.mu.Unlock()
    return len(s.conns)
}

func (s *Server) acceptLoop(ctx context.Context) {
    defer s.wg.Done()
    for {
        sess, err := s.l.Accept(ctx)
        if err != nil {
            select {
            case <-s.done:
            case <-ctx.Done():
            default:
                zap.L().Warn("accept failed", zap.Error(err))
            }
            return
        }
        s.mu.Lock()
        select {
        case <-s.done:
            s.mu.Unlock()
            _ = sess.Close()
            return
        default:
        }
        s.serial++
        c := &Conn{serial: s.serial, s: sess}
        s.conns[c] = struct{}{}
        s.mu.Unlock()
        zap.L().Debug("producer connected", zap.Uint64("serial", c.serial), zap.String("peer", sess.Peer().ID))
        s.wg.Add(1)
        go func() { defer s.wg.Done(); readLoop(c, s.events, s.done, s.kick) }()
    }
}

// DispatchEvents runs the handler for every queued event without blocking
// and returns how many were handled. Frame notifications that overflowed the
// queue are delivered last, one per connection.
func (s *Server) DispatchEvents() int {
    n := 0
    for {
        select {
        case ev := <-s.events:
            s.dispatch(ev)
            n++
            continue
        default:
        }
        select {
        case <-s.kick:
            n += s.flushPending()
        default:
        }
        return n
    }
}

func (s *Server) flushPending() int {
    s.mu.Lock()
    conns := make([]*Conn, 0, len(s.conns))
    for c := range s.conns { conns = append(conns, c) }
    s.mu.Unlock()
    n := 0
    for _, c := range conns {
        connID, seq, ok := c.takePending()
        if !ok { continue }
        s.h.OnFrameProduced(c, connID, seq)
        n++
    }
    return n
}

// WaitEvents blocks until at least one event is queued, then dispatches
// everything queued.
func (s *Server) WaitEvents(ctx context.Context) (int, error) {
    select {
    case ev := <-s.events:
        s.dispatch(ev)
        return 1 + s.DispatchEvents(), nil
    case <-s.kick:
        n := s.DispatchEvents()
        return n + s.flushPending(), nil
    case <-ctx.Done():
        return 0, ctx.Err()
    case <-s.done:
        return 0, ErrClosed
    }
}

func (s *Server) dispatch(ev event) {
    c := ev.conn
    if ev.kind == eventDisconnected {
        s.mu.Lock()
        delete(s.conns, c)
        s.mu.Unlock()
        _ = c.Close()
        _, _, _ = c.takePending()
        err := ev.err
        if errors.Is(err, io.EOF) { err = nil }
        s.h.OnDisconnected(c, err)
        return
    }
    m := ev.msg
    switch m.Header.Type {
    case signal.TypeConnectionEstablished:
        info, err := s.b.SurfaceInfo(m)
        if err != nil {
            closeHandle(&m.Handle)
            zap.L().Warn("malformed connection request", zap.Uint64("serial", c.serial), zap.Error(err))
            if rej, rerr := s.b.ConnectionRejected(int(status.CodeInternal), err.Error()); rerr == nil { _ = c.SendSignal(rej) }
            return
        }
        s.h.OnConnectionEstablished(c, m.Handle.Take(), info)
    case signal.TypeFrameProduced:
        c.supersede(m.Header.Seq)
        s.h.OnFrameProduced(c, m.Header.ConnID, m.Header.Seq)
    default:
        closeHandle(&m.Handle)
        zap.L().Warn("unexpected signal", zap.Uint64("serial", c.serial), zap.String("type", m.Header.Type.String()))
    }
}

// Close stops accepting, drops every connection and discards queued events.
func (s *Server) Close() error {
    var err error
    s.closeMu.Do(func() {
        close(s.done)
        err = s.l.Close()
        s.mu.Lock()
        for c := range s.conns { _ = c.Close() }
        s.mu.Unlock()
        s.wg.Wait()
        for drained := false; !drained; {
            select {
            case ev := <-s.events:
                ev.discard()
            default:
                drained = true
            }
        }
    })
    return err
}
