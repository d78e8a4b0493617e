// Package stats keeps per-connection statistics of a compositor in the
// in-memory KV. Records of closed connections stay readable for a retention
// period and then expire.
package stats

import (
    "encoding/json"
    "sort"
    "strconv"
    "time"

    "go.uber.org/zap"

    "framelink/pkg/memkv"
)

// ConnStats is the stored document for one connection.
type ConnStats struct {
    ConnID         uint64 `json:"conn_id"`
    Peer           string `json:"peer,omitempty"`
    Channel        string `json:"channel,omitempty"`
    SurfaceID      uint64 `json:"surface_id"`
    Width          int    `json:"width"`
    Height         int    `json:"height"`
    State          string `json:"state"`
    ConnectedAt    int64  `json:"connected_unix_ms"`
    ClosedAt       int64  `json:"closed_unix_ms,omitempty"`
    Notified       uint64 `json:"frames_notified"`
    Acquired       uint64 `json:"frames_acquired"`
    NoNewFrame     uint64 `json:"no_new_frame"`
    Skipped        uint64 `json:"frames_skipped"`
    LastSeq        uint64 `json:"last_seq"`
    LastNotified   uint64 `json:"last_notified_seq"`
    LastNotifiedAt int64  `json:"last_notified_unix_ms,omitempty"`
}

// Summary counts connection outcomes over the compositor's lifetime.
type Summary struct {
    Accepted     uint64 `json:"accepted"`
    Rejected     uint64 `json:"rejected"`
    Disconnected uint64 `json:"disconnected"`
}

const (
    connPrefix = "conn:"
    summaryKey = "summary"
)

func keyConn(id uint64) string { return connPrefix + strconv.FormatUint(id, 10) }

type Store struct {
    kv     *memkv.Store
    retain time.Duration
    nowFn  func() time.Time
}

// NewStore keeps closed connections for retain; 0 drops them on close.
func NewStore(kv *memkv.Store, retain time.Duration) *Store {
    s := &Store{kv: kv, retain: retain, nowFn: time.Now}
    if _, ok := kv.Get(summaryKey); !ok {
        b, _ := json.Marshal(Summary{})
        kv.Set(summaryKey, b, 0)
    }
    return s
}

func (s *Store) update(id uint64, fn func(cs *ConnStats)) bool {
    return s.kv.Update(keyConn(id), func(old []byte) []byte {
        var cs ConnStats
        _ = json.Unmarshal(old, &cs)
        fn(&cs)
        b, _ := json.Marshal(cs)
        return b
    })
}

func (s *Store) summary(fn func(sm *Summary)) {
    _ = s.kv.Update(summaryKey, func(old []byte) []byte {
        var sm Summary
        _ = json.Unmarshal(old, &sm)
        fn(&sm)
        b, _ := json.Marshal(sm)
        return b
    })
}

// Open records an accepted connection.
func (s *Store) Open(cs ConnStats) {
    cs.ConnectedAt = s.nowFn().UnixMilli()
    b, _ := json.Marshal(cs)
    s.kv.Set(keyConn(cs.ConnID), b, 0)
    s.summary(func(sm *Summary) { sm.Accepted++ })
    zap.L().Debug("stats open", zap.Uint64("conn_id", cs.ConnID), zap.String("peer", cs.Peer))
}

// Rejected counts a refused connection attempt.
func (s *Store) Rejected() { s.summary(func(sm *Summary) { sm.Rejected++ }) }

func (s *Store) SetState(id uint64, state string) {
    s.update(id, func(cs *ConnStats) { cs.State = state })
}

// Notified records a frame-produced signal for seq.
func (s *Store) Notified(id, seq uint64) {
    now := s.nowFn().UnixMilli()
    s.update(id, func(cs *ConnStats) {
        cs.Notified++
        cs.LastNotified = seq
        cs.LastNotifiedAt = now
    })
}

// Acquired records the outcome of an acquire. fresh frames that jumped past
// intermediate sequence numbers count those as skipped.
func (s *Store) Acquired(id, seq uint64, fresh bool) {
    s.update(id, func(cs *ConnStats) {
        if !fresh {
            cs.NoNewFrame++
            return
        }
        if cs.LastSeq != 0 && seq > cs.LastSeq+1 { cs.Skipped += seq - cs.LastSeq - 1 }
        cs.Acquired++
        cs.LastSeq = seq
    })
}

// Close marks the connection closed and schedules its record to expire.
func (s *Store) Close(id uint64) {
    now := s.nowFn().UnixMilli()
    if !s.update(id, func(cs *ConnStats) { cs.ClosedAt = now; cs.State = "closed" }) { return }
    s.summary(func(sm *Summary) { sm.Disconnected++ })
    if s.retain <= 0 {
        s.kv.Delete(keyConn(id))
        return
    }
    s.kv.Expire(keyConn(id), s.retain)
}

func (s *Store) Get(id uint64) (ConnStats, bool) {
    b, ok := s.kv.Get(keyConn(id))
    if !ok { return ConnStats{}, false }
    var cs ConnStats
    if err := json.Unmarshal(b, &cs); err != nil { return ConnStats{}, false }
    return cs, true
}

// List returns every stored connection ordered by id.
func (s *Store) List() []ConnStats {
    keys := s.kv.Keys(connPrefix)
    out := make([]ConnStats, 0, len(keys))
    for _, k := range keys {
        id, err := strconv.ParseUint(k[len(connPrefix):], 10, 64)
        if err != nil { continue }
        if cs, ok := s.Get(id); ok { out = append(out, cs) }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ConnID < out[j].ConnID })
    return out
}

func (s *Store) Summary() Summary {
    var sm Summary
    if b, ok := s.kv.Get(summaryKey); ok { _ = json.Unmarshal(b, &sm) }
    return sm
}
