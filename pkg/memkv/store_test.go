package memkv

import (
    "sync/atomic"
    "testing"
    "time"
)

func TestSetGetUpdateDelete(t *testing.T) {
    s := New(Options{Shards: 4})
    defer s.Close()
    if !s.Set("conn/1", []byte("a"), 0) { t.Fatalf("set failed") }
    v, ok := s.Get("conn/1")
    if !ok || string(v) != "a" { t.Fatalf("get = %q %v", v, ok) }
    v[0] = 'z'
    if v2, _ := s.Get("conn/1"); string(v2) != "a" { t.Fatalf("get must return a copy") }
    if !s.Update("conn/1", func(old []byte) []byte { return append(old, 'b') }) { t.Fatalf("update failed") }
    if v, _ := s.Get("conn/1"); string(v) != "ab" { t.Fatalf("after update = %q", v) }
    if s.Update("missing", func(b []byte) []byte { return b }) { t.Fatalf("update of missing key") }
    if !s.Delete("conn/1") || s.Delete("conn/1") { t.Fatalf("delete semantics") }
    m := s.Metrics()
    if m.Keys != 0 || m.Bytes != 0 || m.Dels != 1 { t.Fatalf("metrics %+v", m) }
}

func TestTTLWithFakeClock(t *testing.T) {
    var clock atomic.Int64
    clock.Store(time.Unix(1000, 0).UnixNano())
    s := newStore(Options{}, func() time.Time { return time.Unix(0, clock.Load()) })
    defer s.Close()
    s.Set("k", []byte("v"), time.Second)
    if d, ok := s.TTL("k"); !ok || d != time.Second { t.Fatalf("ttl = %v %v", d, ok) }
    if !s.Persist("k") { t.Fatalf("persist failed") }
    if d, ok := s.TTL("k"); !ok || d != 0 { t.Fatalf("ttl after persist = %v %v", d, ok) }
    if !s.Expire("k", time.Second) { t.Fatalf("expire failed") }
    clock.Add(int64(2 * time.Second))
    if _, ok := s.Get("k"); ok { t.Fatalf("expired key still readable") }
    if m := s.Metrics(); m.Keys != 0 || m.Expired != 1 { t.Fatalf("metrics %+v", m) }
}

func TestBackgroundExpiry(t *testing.T) {
    s := New(Options{})
    defer s.Close()
    s.Set("short", []byte("x"), 10*time.Millisecond)
    s.Set("long", []byte("y"), time.Hour)
    deadline := time.Now().Add(2 * time.Second)
    for s.Metrics().Expired == 0 && time.Now().Before(deadline) { time.Sleep(5 * time.Millisecond) }
    if s.Metrics().Expired != 1 { t.Fatalf("short key not expired in background") }
    if keys := s.Keys(""); len(keys) != 1 || keys[0] != "long" { t.Fatalf("keys = %v", keys) }
}

func TestMaxBytes(t *testing.T) {
    s := New(Options{MaxBytes: 4})
    defer s.Close()
    if !s.Set("a", []byte("abc"), 0) { t.Fatalf("first set") }
    if s.Set("b", []byte("de"), 0) { t.Fatalf("limit must reject") }
    if !s.Set("a", []byte("a"), 0) || !s.Set("b", []byte("bcd"), 0) { t.Fatalf("shrink must free room") }
    if m := s.Metrics(); m.Bytes != 4 { t.Fatalf("bytes = %d", m.Bytes) }
}

func TestKeysPrefix(t *testing.T) {
    s := New(Options{})
    defer s.Close()
    for _, k := range []string{"conn/2", "conn/1", "other"} { s.Set(k, nil, 0) }
    keys := s.Keys("conn/")
    if len(keys) != 2 || keys[0] != "conn/1" || keys[1] != "conn/2" { t.Fatalf("keys = %v", keys) }
}

func BenchmarkSetGetParallel(b *testing.B) {
    s := New(Options{})
    defer s.Close()
    val := make([]byte, 64)
    b.RunParallel(func(pb *testing.PB) {
        i := 0
        for pb.Next() {
            k := "k" + string(rune('a'+i%26))
            s.Set(k, val, 0)
            s.Get(k)
            i++
        }
    })
}
