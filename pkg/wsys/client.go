package wsys

import (
    "context"
    "errors"
    "io"
    "sync"

    "framelink/pkg/signal"
    "framelink/pkg/transport"
)

// ClientHandler receives producer-side events.
type ClientHandler interface {
    OnConnectionAccepted(connID uint64)
    OnConnectionRejected(r signal.Rejection)
    OnDisconnected(err error)
}

// Client is the producer end of one connection to a display.
type Client struct {
    *Conn
    b      *signal.Builder
    events chan event
    done   chan struct{}
    once   sync.Once
    wg     sync.WaitGroup
}

// Connect dials the display called name.
func Connect(ctx context.Context, tr transport.Transport, name string, opts ...Option) (*Client, error) {
    o, err := buildOptions(opts)
    if err != nil { return nil, err }
    sess, err := tr.Dial(ctx, name, transport.PeerInfo{})
    if err != nil { return nil, err }
    c := &Client{Conn: &Conn{serial: 1, s: sess}, b: o.builder, events: make(chan event, o.depth), done: make(chan struct{})}
    c.wg.Add(1)
    go func() { defer c.wg.Done(); readLoop(c.Conn, c.events, c.done, nil) }()
    return c, nil
}

func (c *Client) Builder() *signal.Builder { return c.b }

// Next blocks for the next message from the server. A disconnect is
// reported as ErrDisconnected.
func (c *Client) Next(ctx context.Context) (signal.Message, error) {
    select {
    case ev := <-c.events:
        if ev.kind == eventDisconnected { return signal.Message{}, disconnectErr(ev.err) }
        return ev.msg, nil
    case <-ctx.Done():
        return signal.Message{}, ctx.Err()
    case <-c.done:
        return signal.Message{}, ErrClosed
    }
}

// DispatchEvents handles queued server messages without blocking.
func (c *Client) DispatchEvents(h ClientHandler) int {
    n := 0
    for {
        select {
        case ev := <-c.events:
            n++
            if ev.kind == eventDisconnected {
                h.OnDisconnected(disconnectErr(ev.err))
                continue
            }
            c.dispatch(ev.msg, h)
        default:
            return n
        }
    }
}

func (c *Client) dispatch(m signal.Message, h ClientHandler) {
    closeHandle(&m.Handle)
    switch m.Header.Type {
    case signal.TypeConnectionAccepted:
        h.OnConnectionAccepted(m.Header.ConnID)
    case signal.TypeConnectionRejected:
        r, err := c.b.Rejection(m)
        if err != nil { r.Reason = err.Error() }
        h.OnConnectionRejected(r)
    }
}

func disconnectErr(err error) error {
    if err == nil || errors.Is(err, io.EOF) { return ErrDisconnected }
    return errors.Join(ErrDisconnected, err)
}

// Close disconnects from the display.
func (c *Client) Close() error {
    var err error
    c.once.Do(func() {
        close(c.done)
        err = c.Conn.Close()
        c.wg.Wait()
    })
    return err
}
