// Package handoff ties stream endpoints, surface bindings and the windowing
// connection together: the Coordinator runs on the compositor, the Producer
// on each rendering client.
package handoff

import (
    "errors"
    "fmt"
    "sync"

    "go.uber.org/zap"

    "framelink/pkg/compose"
    "framelink/pkg/handle"
    "framelink/pkg/signal"
    "framelink/pkg/stats"
    "framelink/pkg/status"
    "framelink/pkg/stream"
    "framelink/pkg/surface"
    "framelink/pkg/texture"
    "framelink/pkg/wsys"
)

// Coordinator is the compositor side of the handoff protocol. It implements
// wsys.Handler, so its callbacks run from the display's DispatchEvents.
type Coordinator struct {
    display  *stream.Display
    pool     *texture.Pool
    reporter status.Reporter
    builder  *signal.Builder
    stats    *stats.Store

    mu     sync.Mutex
    reg    *Registry
    nextID uint64
}

// CoordinatorOption configures NewCoordinator.
type CoordinatorOption func(*Coordinator)

// WithReporter routes protocol errors to r instead of the log.
func WithReporter(r status.Reporter) CoordinatorOption { return func(c *Coordinator) { c.reporter = r } }

// WithStats records per-connection statistics in s.
func WithStats(s *stats.Store) CoordinatorOption { return func(c *Coordinator) { c.stats = s } }

// NewCoordinator imports channels into d and binds them to textures from
// pool. Replies are encoded with b.
func NewCoordinator(d *stream.Display, pool *texture.Pool, b *signal.Builder, opts ...CoordinatorOption) *Coordinator {
    c := &Coordinator{display: d, pool: pool, builder: b, reporter: status.LogReporter{}, reg: NewRegistry()}
    for _, fn := range opts { fn(c) }
    return c
}

var _ wsys.Handler = (*Coordinator)(nil)

// OnConnectionEstablished imports the producer's channel and creates a
// record. On any failure no record exists afterwards, the error is reported
// and the producer gets a rejection.
func (c *Coordinator) OnConnectionEstablished(conn *wsys.Conn, h handle.Handle, info signal.SurfaceInfo) {
    state := Connecting
    log := zap.L().With(zap.Uint64("serial", conn.Serial()), zap.String("peer", conn.Peer().ID))
    log.Debug("connection request", zap.String("handle", h.String()), zap.Uint64("surface_id", info.SurfaceID))

    ep, err := c.display.ImportFromTransportHandle(h.Take())
    if err != nil {
        c.reject(conn, state, fmt.Errorf("import: %w", err))
        return
    }
    b, err := surface.BindConsumer(ep, c.pool)
    if err != nil {
        _ = ep.Destroy()
        c.reject(conn, state, fmt.Errorf("bind consumer: %w", err))
        return
    }

    c.mu.Lock()
    c.nextID++
    rec := &ConnectionRecord{
        ID:              c.nextID,
        Endpoint:        ep,
        Binding:         b,
        Texture:         b.Texture(),
        LastAcquiredSeq: ep.BaseSeq(),
        State:           Streaming,
        Info:            info,
        conn:            conn,
    }
    added := c.reg.Add(rec)
    c.mu.Unlock()
    if !added {
        _ = b.Destroy()
        c.reject(conn, state, errors.New("connection already has a stream"))
        return
    }

    if c.stats != nil {
        c.stats.Open(stats.ConnStats{ConnID: rec.ID, Peer: conn.Peer().ID, Channel: ep.ID(), SurfaceID: info.SurfaceID, Width: info.Width, Height: info.Height, State: Streaming.String()})
    }
    if err := conn.SendSignal(c.builder.ConnectionAccepted(rec.ID)); err != nil {
        log.Warn("accept reply failed", zap.Uint64("conn_id", rec.ID), zap.Error(err))
    }
    log.Info("connection streaming", zap.Uint64("conn_id", rec.ID), zap.String("channel", ep.ID()), zap.Uint64("base_seq", rec.LastAcquiredSeq))
}

func (c *Coordinator) reject(conn *wsys.Conn, from State, err error) {
    if !from.next(Disconnected) { zap.L().Error("bad state transition", zap.String("from", from.String())) }
    status.Report(c.reporter, err)
    if c.stats != nil { c.stats.Rejected() }
    zap.L().Warn("connection rejected", zap.Uint64("serial", conn.Serial()), zap.Error(err))
    m, merr := c.builder.ConnectionRejected(int(status.CodeOf(err)), err.Error())
    if merr != nil { return }
    if serr := conn.SendSignal(m); serr != nil {
        zap.L().Debug("reject reply failed", zap.Uint64("serial", conn.Serial()), zap.Error(serr))
    }
}

// OnFrameProduced acquires the newest frame of the sending connection.
func (c *Coordinator) OnFrameProduced(conn *wsys.Conn, connID, seq uint64) {
    c.mu.Lock()
    defer c.mu.Unlock()
    rec := c.reg.ByConn(conn)
    if rec == nil {
        zap.L().Debug("frame for unknown connection", zap.Uint64("serial", conn.Serial()), zap.Uint64("conn_id", connID), zap.Uint64("seq", seq))
        return
    }
    if connID != 0 && connID != rec.ID {
        zap.L().Warn("frame signal names another connection", zap.Uint64("conn_id", rec.ID), zap.Uint64("claimed", connID))
    }
    if c.stats != nil { c.stats.Notified(rec.ID, seq) }
    if rec.State != Streaming { return }
    tok, fresh, err := rec.Binding.AcquireLatest()
    if err != nil {
        if errors.Is(err, status.ErrStaleBinding) {
            zap.L().Debug("producer gone", zap.Uint64("conn_id", rec.ID))
            return
        }
        status.Report(c.reporter, err)
        return
    }
    if fresh { rec.LastAcquiredSeq = tok.Seq }
    if c.stats != nil { c.stats.Acquired(rec.ID, tok.Seq, fresh) }
}

// OnDisconnected tears the connection's record down.
func (c *Coordinator) OnDisconnected(conn *wsys.Conn, err error) {
    c.mu.Lock()
    rec := c.reg.ByConn(conn)
    if rec == nil {
        c.mu.Unlock()
        return
    }
    c.closeLocked(rec)
    c.mu.Unlock()
    zap.L().Info("connection closed", zap.Uint64("conn_id", rec.ID), zap.Error(err))
}

// closeLocked walks Streaming -> Closing -> Disconnected. c.mu must be held.
func (c *Coordinator) closeLocked(rec *ConnectionRecord) {
    rec.State = Closing
    if c.stats != nil { c.stats.SetState(rec.ID, Closing.String()) }
    if err := rec.Binding.Destroy(); err != nil {
        zap.L().Warn("destroy binding", zap.Uint64("conn_id", rec.ID), zap.Error(err))
    }
    c.reg.Remove(rec.ID)
    rec.State = Disconnected
    if c.stats != nil { c.stats.Close(rec.ID) }
}

// Composite draws every connection's texture in connection order. Textures
// keep their previous contents when no new frame arrived.
func (c *Coordinator) Composite(dst *compose.Compositor) int {
    c.mu.Lock()
    texs := make([]*texture.Texture, 0, c.reg.Len())
    c.reg.Each(func(rec *ConnectionRecord) { texs = append(texs, rec.Texture) })
    c.mu.Unlock()
    return dst.Compose(texs)
}

// RecordInfo is a copy of a record's observable fields.
type RecordInfo struct {
    ID              uint64
    State           State
    LastAcquiredSeq uint64
    Channel         string
    Info            signal.SurfaceInfo
}

// Records returns the current records in connection order.
func (c *Coordinator) Records() []RecordInfo {
    c.mu.Lock()
    defer c.mu.Unlock()
    out := make([]RecordInfo, 0, c.reg.Len())
    c.reg.Each(func(rec *ConnectionRecord) {
        out = append(out, RecordInfo{ID: rec.ID, State: rec.State, LastAcquiredSeq: rec.LastAcquiredSeq, Channel: rec.Endpoint.ID(), Info: rec.Info})
    })
    return out
}

// Close tears down every record.
func (c *Coordinator) Close() {
    c.mu.Lock()
    defer c.mu.Unlock()
    var recs []*ConnectionRecord
    c.reg.Each(func(rec *ConnectionRecord) { recs = append(recs, rec) })
    for _, rec := range recs { c.closeLocked(rec) }
}
