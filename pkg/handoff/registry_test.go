package handoff

import (
    "testing"

    "framelink/pkg/wsys"
)

func TestRegistryOrderAndLookup(t *testing.T) {
    r := NewRegistry()
    c1, c2 := &wsys.Conn{}, &wsys.Conn{}
    if !r.Add(&ConnectionRecord{ID: 1, conn: c1}) || !r.Add(&ConnectionRecord{ID: 2, conn: c2}) || !r.Add(&ConnectionRecord{ID: 3}) {
        t.Fatalf("add failed")
    }
    if r.Add(&ConnectionRecord{ID: 2}) || r.Add(&ConnectionRecord{ID: 9, conn: c1}) { t.Fatalf("duplicates accepted") }
    if r.ByConn(c2).ID != 2 || r.Get(3) == nil { t.Fatalf("lookup failed") }
    if r.Remove(2) == nil || r.Remove(2) != nil { t.Fatalf("remove semantics") }
    if r.ByConn(c2) != nil { t.Fatalf("conn index not cleared") }
    var ids []uint64
    r.Each(func(rec *ConnectionRecord) { ids = append(ids, rec.ID) })
    if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 { t.Fatalf("order %v", ids) }
}

func TestStateTransitions(t *testing.T) {
    path := []State{Disconnected, Connecting, Streaming, Closing, Disconnected}
    for i := 0; i+1 < len(path); i++ {
        if !path[i].next(path[i+1]) { t.Fatalf("%s -> %s must be legal", path[i], path[i+1]) }
    }
    if Streaming.next(Connecting) || Disconnected.next(Streaming) { t.Fatalf("illegal transition allowed") }
    if !Connecting.next(Disconnected) { t.Fatalf("failed connect must return to disconnected") }
}
