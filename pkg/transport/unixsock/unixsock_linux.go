//go:build linux

// Package unixsock is the cross-process windowing transport: SOCK_SEQPACKET unix
// sockets, one message per packet, with at most one file descriptor per
// message passed as SCM_RIGHTS.
package unixsock

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net"
    "os"
    "sync"
    "time"

    "go.uber.org/zap"
    "golang.org/x/sys/unix"

    "framelink/pkg/handle"
    "framelink/pkg/transport"
)

const network = "unixpacket"

type Transport struct{}

func New() *Transport { return &Transport{} }

func (t *Transport) Kind() transport.Kind { return transport.KindUnix }

// Listen binds a socket at path, removing a stale socket file first.
func (t *Transport) Listen(ctx context.Context, path string) (transport.Listener, error) {
    if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSocket != 0 { _ = os.Remove(path) }
    ul, err := net.ListenUnix(network, &net.UnixAddr{Name: path, Net: network})
    if err != nil { return nil, err }
    ul.SetUnlinkOnClose(true)
    l := &listener{l: ul, newCh: make(chan *session, 8), closeCh: make(chan struct{})}
    go l.acceptLoop()
    go func() { select { case <-ctx.Done(): _ = l.Close(); case <-l.closeCh: } }()
    return l, nil
}

func (t *Transport) Dial(ctx context.Context, path string, peer transport.PeerInfo) (transport.Session, error) {
    d := &net.Dialer{}
    c, err := d.DialContext(ctx, network, path)
    if err != nil { return nil, err }
    uc, ok := c.(*net.UnixConn)
    if !ok {
        _ = c.Close()
        return nil, fmt.Errorf("unix: unexpected conn %T", c)
    }
    if peer.Addr == "" { peer.Addr = path }
    return newSession(uc, peer), nil
}

type listener struct {
    l       *net.UnixListener
    newCh   chan *session
    closeCh chan struct{}
    once    sync.Once
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept(ctx context.Context) (transport.Session, error) {
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case <-l.closeCh:
        return nil, errors.New("unix listener closed")
    case s := <-l.newCh:
        return s, nil
    }
}

func (l *listener) Close() error {
    var err error
    l.once.Do(func() { close(l.closeCh); err = l.l.Close() })
    return err
}

func (l *listener) acceptLoop() {
    for {
        c, err := l.l.AcceptUnix()
        if err != nil { return }
        peer := transport.PeerInfo{Addr: l.l.Addr().String()}
        if cred, err := peerCred(c); err == nil {
            peer.ID = fmt.Sprintf("pid:%d", cred.Pid)
        } else {
            peer.ID = transport.TempPeerID(transport.KindUnix, c.RemoteAddr())
        }
        s := newSession(c, peer)
        select {
        case l.newCh <- s:
        case <-l.closeCh:
            _ = s.Close()
            return
        default:
            zap.L().Warn("unix accept queue full, dropping connection", zap.String("peer", peer.ID))
            _ = s.Close()
        }
    }
}

func peerCred(c *net.UnixConn) (*unix.Ucred, error) {
    raw, err := c.SyscallConn()
    if err != nil { return nil, err }
    var cred *unix.Ucred
    var cerr error
    if err := raw.Control(func(fd uintptr) { cred, cerr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED) }); err != nil { return nil, err }
    return cred, cerr
}

type session struct {
    peer          transport.PeerInfo
    c             *net.UnixConn
    establishedAt time.Time

    wmu sync.Mutex
    mu  sync.Mutex
    lastSeen time.Time

    rbuf []byte
    oob  []byte
}

func newSession(c *net.UnixConn, peer transport.PeerInfo) *session {
    return &session{
        peer:          peer,
        c:             c,
        establishedAt: time.Now(),
        rbuf:          make([]byte, transport.MaxPayload),
        oob:           make([]byte, unix.CmsgSpace(4*4)),
    }
}

func (s *session) Peer() transport.PeerInfo      { return s.peer }
func (s *session) TransportKind() transport.Kind { return transport.KindUnix }
func (s *session) LocalAddr() net.Addr           { return s.c.LocalAddr() }
func (s *session) RemoteAddr() net.Addr          { return s.c.RemoteAddr() }
func (s *session) Close() error                  { return s.c.Close() }

func (s *session) Quality() transport.Quality {
    s.mu.Lock(); defer s.mu.Unlock()
    return transport.Quality{EstablishedAt: s.establishedAt, LastSeen: s.lastSeen}
}

func (s *session) touch() { s.mu.Lock(); s.lastSeen = time.Now(); s.mu.Unlock() }

// Send writes one packet. A descriptor handle travels as SCM_RIGHTS and the
// local copy is closed once the kernel has duplicated it.
func (s *session) Send(m transport.Message) error {
    h := m.Handle.Take()
    defer h.Close()
    if len(m.Payload) == 0 || len(m.Payload) > transport.MaxPayload { return fmt.Errorf("unix: payload size %d", len(m.Payload)) }
    var oob []byte
    switch h.Kind() {
    case handle.KindNone:
    case handle.KindFD:
        fd, _ := h.FD()
        oob = unix.UnixRights(fd)
    default:
        return fmt.Errorf("unix: cannot pass %s handle between processes", h.Kind())
    }
    s.wmu.Lock()
    n, oobn, err := s.c.WriteMsgUnix(m.Payload, oob, nil)
    s.wmu.Unlock()
    if err != nil { return err }
    if n != len(m.Payload) || oobn != len(oob) { return fmt.Errorf("unix: short write %d/%d", n, len(m.Payload)) }
    s.touch()
    return nil
}

// Recv reads one packet. Extra descriptors beyond the first are closed.
func (s *session) Recv() (transport.Message, error) {
    n, oobn, flags, _, err := s.c.ReadMsgUnix(s.rbuf, s.oob)
    if err != nil { return transport.Message{}, err }
    var h handle.Handle
    if oobn > 0 {
        fds, perr := parseRights(s.oob[:oobn])
        for i, fd := range fds {
            if i == 0 { h = handle.FromFD(fd); continue }
            _ = unix.Close(fd)
        }
        if perr != nil {
            _ = h.Close()
            return transport.Message{}, perr
        }
    }
    if flags&(unix.MSG_TRUNC|unix.MSG_CTRUNC) != 0 {
        _ = h.Close()
        return transport.Message{}, fmt.Errorf("unix: truncated packet (flags %#x)", flags)
    }
    if n == 0 {
        _ = h.Close()
        return transport.Message{}, io.EOF
    }
    s.touch()
    return transport.Message{Payload: append([]byte(nil), s.rbuf[:n]...), Handle: h}, nil
}

func parseRights(oob []byte) ([]int, error) {
    msgs, err := unix.ParseSocketControlMessage(oob)
    if err != nil { return nil, err }
    var fds []int
    for i := range msgs {
        if msgs[i].Header.Level != unix.SOL_SOCKET || msgs[i].Header.Type != unix.SCM_RIGHTS { continue }
        got, err := unix.ParseUnixRights(&msgs[i])
        if err != nil { return fds, err }
        fds = append(fds, got...)
    }
    return fds, nil
}
