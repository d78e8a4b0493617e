package wsys

import (
    "context"
    "errors"
    "testing"
    "time"

    "framelink/pkg/handle"
    "framelink/pkg/signal"
    "framelink/pkg/transport/mem"
)

type recHandler struct {
    established []handle.Handle
    infos       []signal.SurfaceInfo
    frames      []uint64
    disconnects int
    order       []string
}

func (r *recHandler) OnConnectionEstablished(c *Conn, h handle.Handle, info signal.SurfaceInfo) {
    r.established = append(r.established, h)
    r.infos = append(r.infos, info)
    r.order = append(r.order, "established")
    _ = c.SendSignal(signal.NewBuilder(nil, 0).ConnectionAccepted(uint64(len(r.established))))
}

func (r *recHandler) OnFrameProduced(_ *Conn, _, seq uint64) {
    r.frames = append(r.frames, seq)
    r.order = append(r.order, "frame")
}

func (r *recHandler) OnDisconnected(*Conn, error) {
    r.disconnects++
    r.order = append(r.order, "disconnected")
}

type recClient struct {
    accepted []uint64
    lost     int
}

func (r *recClient) OnConnectionAccepted(id uint64)        { r.accepted = append(r.accepted, id) }
func (r *recClient) OnConnectionRejected(signal.Rejection) {}
func (r *recClient) OnDisconnected(error)                  { r.lost++ }

// drain dispatches until want events were handled.
func drain(t *testing.T, s *Server, want int) {
    t.Helper()
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    for got := 0; got < want; {
        n, err := s.WaitEvents(ctx)
        if err != nil { t.Fatalf("wait events (%d/%d): %v", got, want, err) }
        got += n
    }
}

func TestSignalsDispatchInOrder(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    tr := mem.New()
    h := &recHandler{}
    srv, err := Listen(ctx, tr, "display-0", h)
    if err != nil { t.Fatalf("listen: %v", err) }
    defer srv.Close()

    cli, err := Connect(ctx, tr, "display-0")
    if err != nil { t.Fatalf("connect: %v", err) }
    n := signal.NewNotifier(cli, cli.Builder())
    if err := n.NotifyConnectionEstablished(handle.FromToken("chan"), signal.SurfaceInfo{SurfaceID: 1, Width: 4, Height: 4}); err != nil {
        t.Fatalf("established: %v", err)
    }
    for seq := uint64(1); seq <= 3; seq++ {
        if err := n.FrameProduced(seq); err != nil { t.Fatalf("frame: %v", err) }
    }
    if len(h.order) != 0 { t.Fatalf("handler ran outside DispatchEvents") }
    drain(t, srv, 4)
    if len(h.established) != 1 || !h.established[0].Valid() || h.infos[0].Width != 4 { t.Fatalf("established %+v", h.infos) }
    if len(h.frames) != 3 || h.frames[2] != 3 { t.Fatalf("frames %v", h.frames) }

    m, err := cli.Next(ctx)
    if err != nil { t.Fatalf("next: %v", err) }
    if m.Header.Type != signal.TypeConnectionAccepted || m.Header.ConnID != 1 { t.Fatalf("reply %+v", m.Header) }

    _ = cli.Close()
    drain(t, srv, 1)
    if h.disconnects != 1 || h.order[len(h.order)-1] != "disconnected" { t.Fatalf("order %v", h.order) }
    if srv.Conns() != 0 { t.Fatalf("conns = %d", srv.Conns()) }
}

func TestClientObservesServerClose(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    tr := mem.New()
    srv, err := Listen(ctx, tr, "d", &recHandler{})
    if err != nil { t.Fatalf("listen: %v", err) }
    cli, err := Connect(ctx, tr, "d")
    if err != nil { t.Fatalf("connect: %v", err) }
    defer cli.Close()
    deadline := time.Now().Add(2 * time.Second)
    for srv.Conns() == 0 && time.Now().Before(deadline) { time.Sleep(time.Millisecond) }
    _ = srv.Close()

    wctx, wcancel := context.WithTimeout(ctx, 2*time.Second)
    defer wcancel()
    if _, err := cli.Next(wctx); !errors.Is(err, ErrDisconnected) { t.Fatalf("expected disconnect, got %v", err) }
    if err := cli.SendSignal(cli.Builder().FrameProduced(1, 1)); err == nil { t.Fatalf("send after server close must fail") }
    if _, err := srv.WaitEvents(ctx); !errors.Is(err, ErrClosed) { t.Fatalf("wait on closed server: %v", err) }
}

func TestClientDispatch(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    tr := mem.New()
    h := &recHandler{}
    srv, _ := Listen(ctx, tr, "d", h)
    defer srv.Close()
    cli, _ := Connect(ctx, tr, "d")
    defer cli.Close()
    n := signal.NewNotifier(cli, cli.Builder())
    _ = n.NotifyConnectionEstablished(handle.FromToken("x"), signal.SurfaceInfo{SurfaceID: 2, Width: 1, Height: 1})
    drain(t, srv, 1)
    rc := &recClient{}
    deadline := time.Now().Add(2 * time.Second)
    for len(rc.accepted) == 0 && time.Now().Before(deadline) {
        cli.DispatchEvents(rc)
        time.Sleep(time.Millisecond)
    }
    if len(rc.accepted) != 1 || rc.accepted[0] != 1 { t.Fatalf("accepted %v", rc.accepted) }
}

func TestFrameFloodDoesNotBlockProducer(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    tr := mem.New()
    h := &recHandler{}
    srv, err := Listen(ctx, tr, "d", h, WithQueueDepth(1))
    if err != nil { t.Fatalf("listen: %v", err) }
    defer srv.Close()
    cli, err := Connect(ctx, tr, "d")
    if err != nil { t.Fatalf("connect: %v", err) }
    defer cli.Close()

    const frames = 200
    sent := make(chan error, 1)
    go func() {
        for seq := uint64(1); seq <= frames; seq++ {
            if err := cli.SendSignal(cli.Builder().FrameProduced(1, seq)); err != nil { sent <- err; return }
        }
        sent <- nil
    }()
    select {
    case err := <-sent:
        if err != nil { t.Fatalf("send: %v", err) }
    case <-time.After(2 * time.Second):
        t.Fatalf("producer blocked on an undispatched server")
    }

    wctx, wcancel := context.WithTimeout(ctx, 2*time.Second)
    defer wcancel()
    for len(h.frames) == 0 || h.frames[len(h.frames)-1] != frames {
        if _, err := srv.WaitEvents(wctx); err != nil { t.Fatalf("newest frame never dispatched, got %v: %v", h.frames, err) }
    }
    for i := 1; i < len(h.frames); i++ {
        if h.frames[i] <= h.frames[i-1] { t.Fatalf("frames out of order: %v", h.frames) }
    }
    if len(h.frames) >= frames { t.Fatalf("notifications were not collapsed: %d", len(h.frames)) }
}
