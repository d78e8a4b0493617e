package handoff

import (
    "framelink/pkg/signal"
    "framelink/pkg/stream"
    "framelink/pkg/surface"
    "framelink/pkg/texture"
    "framelink/pkg/wsys"
)

// ConnectionRecord is the compositor's view of one producer connection.
type ConnectionRecord struct {
    ID              uint64
    Endpoint        *stream.Endpoint
    Binding         *surface.Binding
    Texture         *texture.Texture
    LastAcquiredSeq uint64
    State           State
    Info            signal.SurfaceInfo

    conn *wsys.Conn
}

// Registry holds records in connection order with O(1) lookup by id and by
// connection. It is not safe for concurrent use.
type Registry struct {
    order  []*ConnectionRecord
    byID   map[uint64]*ConnectionRecord
    byConn map[*wsys.Conn]*ConnectionRecord
}

func NewRegistry() *Registry {
    return &Registry{byID: make(map[uint64]*ConnectionRecord), byConn: make(map[*wsys.Conn]*ConnectionRecord)}
}

func (r *Registry) Len() int { return len(r.order) }

// Add appends rec. It reports false if the id or connection is taken.
func (r *Registry) Add(rec *ConnectionRecord) bool {
    if _, ok := r.byID[rec.ID]; ok { return false }
    if rec.conn != nil {
        if _, ok := r.byConn[rec.conn]; ok { return false }
        r.byConn[rec.conn] = rec
    }
    r.byID[rec.ID] = rec
    r.order = append(r.order, rec)
    return true
}

func (r *Registry) Get(id uint64) *ConnectionRecord { return r.byID[id] }

func (r *Registry) ByConn(c *wsys.Conn) *ConnectionRecord { return r.byConn[c] }

// Remove drops the record with id and returns it.
func (r *Registry) Remove(id uint64) *ConnectionRecord {
    rec := r.byID[id]
    if rec == nil { return nil }
    delete(r.byID, id)
    if rec.conn != nil { delete(r.byConn, rec.conn) }
    for i, x := range r.order {
        if x == rec {
            r.order = append(r.order[:i], r.order[i+1:]...)
            break
        }
    }
    return rec
}

// Each calls fn for every record in connection order.
func (r *Registry) Each(fn func(rec *ConnectionRecord)) {
    for _, rec := range r.order { fn(rec) }
}
