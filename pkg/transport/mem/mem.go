// Package mem is an in-process transport. Sessions are pairs of buffered
// channels, so handles of any kind cross without copying.
package mem

import (
    "context"
    "errors"
    "io"
    "net"
    "sync"
    "time"

    "framelink/pkg/transport"
)

var ErrClosed = errors.New("mem: session closed")

// Transport keeps named listeners. Dialers and listeners must share it.
type Transport struct {
    mu        sync.Mutex
    listeners map[string]*listener
    // Depth is the per-direction queue depth of new sessions.
    Depth int
}

func New() *Transport { return &Transport{listeners: make(map[string]*listener), Depth: 64} }

func (t *Transport) Kind() transport.Kind { return transport.KindMem }

func (t *Transport) Listen(ctx context.Context, name string) (transport.Listener, error) {
    t.mu.Lock(); defer t.mu.Unlock()
    if _, ok := t.listeners[name]; ok { return nil, errors.New("mem: listener already exists") }
    l := &listener{name: name, newCh: make(chan *session, 8), closeCh: make(chan struct{})}
    l.onClose = func() { t.mu.Lock(); if t.listeners[name] == l { delete(t.listeners, name) }; t.mu.Unlock() }
    t.listeners[name] = l
    go func() { select { case <-ctx.Done(): _ = l.Close(); case <-l.closeCh: } }()
    return l, nil
}

func (t *Transport) Dial(ctx context.Context, name string, peer transport.PeerInfo) (transport.Session, error) {
    t.mu.Lock(); l := t.listeners[name]; t.mu.Unlock()
    if l == nil { return nil, errors.New("mem: no such listener") }
    depth := t.Depth
    if depth <= 0 { depth = 1 }
    a2b := make(chan transport.Message, depth)
    b2a := make(chan transport.Message, depth)
    done := make(chan struct{})
    var once sync.Once
    closeFn := func() { once.Do(func() { close(done) }) }
    now := time.Now()
    srv := &session{peer: transport.PeerInfo{ID: peer.ID, Addr: name}, local: memAddr(name), remote: memAddr(peer.ID), in: a2b, out: b2a, done: done, closeFn: closeFn, establishedAt: now}
    cli := &session{peer: transport.PeerInfo{ID: name, Addr: name}, local: memAddr(peer.ID), remote: memAddr(name), in: b2a, out: a2b, done: done, closeFn: closeFn, establishedAt: now}
    select {
    case l.newCh <- srv:
    case <-l.closeCh:
        return nil, errors.New("mem: listener closed")
    case <-ctx.Done():
        return nil, ctx.Err()
    }
    return cli, nil
}

type listener struct {
    name    string
    newCh   chan *session
    closeCh chan struct{}
    once    sync.Once
    onClose func()
}

func (l *listener) Addr() net.Addr { return memAddr(l.name) }

func (l *listener) Accept(ctx context.Context) (transport.Session, error) {
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case <-l.closeCh:
        return nil, errors.New("mem listener closed")
    case s := <-l.newCh:
        return s, nil
    }
}

func (l *listener) Close() error {
    l.once.Do(func() { close(l.closeCh); l.onClose() })
    return nil
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

type session struct {
    peer          transport.PeerInfo
    local, remote net.Addr
    in            <-chan transport.Message
    out           chan<- transport.Message
    done          chan struct{}
    closeFn       func()
    establishedAt time.Time

    mu       sync.Mutex
    lastSeen time.Time
}

func (s *session) Peer() transport.PeerInfo      { return s.peer }
func (s *session) TransportKind() transport.Kind { return transport.KindMem }
func (s *session) LocalAddr() net.Addr           { return s.local }
func (s *session) RemoteAddr() net.Addr          { return s.remote }

func (s *session) Quality() transport.Quality {
    s.mu.Lock(); defer s.mu.Unlock()
    return transport.Quality{EstablishedAt: s.establishedAt, LastSeen: s.lastSeen}
}

func (s *session) touch() { s.mu.Lock(); s.lastSeen = time.Now(); s.mu.Unlock() }

func (s *session) Send(m transport.Message) error {
    if len(m.Payload) > transport.MaxPayload {
        _ = m.Handle.Close()
        return errors.New("mem: payload too large")
    }
    m.Payload = append([]byte(nil), m.Payload...)
    select {
    case <-s.done:
        _ = m.Handle.Close()
        return ErrClosed
    default:
    }
    select {
    case s.out <- m:
        s.touch()
        return nil
    case <-s.done:
        _ = m.Handle.Close()
        return ErrClosed
    }
}

// Recv drains queued messages before reporting the close as io.EOF.
func (s *session) Recv() (transport.Message, error) {
    select {
    case m := <-s.in:
        s.touch()
        return m, nil
    default:
    }
    select {
    case m := <-s.in:
        s.touch()
        return m, nil
    case <-s.done:
        select {
        case m := <-s.in:
            return m, nil
        default:
            return transport.Message{}, io.EOF
        }
    }
}

func (s *session) Close() error { s.closeFn(); return nil }
