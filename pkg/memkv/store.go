package memkv

import (
    "container/heap"
    "sort"
    "strings"
    "sync"
    "sync/atomic"
    "time"
)

type Options struct {
    Shards   int    // shard count, 64 by default
    MaxBytes uint64 // limit on the sum of value sizes, 0 = unlimited
}

func (o Options) withDefaults() Options {
    if o.Shards <= 0 { o.Shards = 64 }
    return o
}

type Store struct {
    opts   Options
    shards []shard
    expq   expQueue
    wake   chan struct{}
    done   chan struct{}
    once   sync.Once
    wg     sync.WaitGroup
    nowFn  func() time.Time

    mKeys    atomic.Uint64
    mBytes   atomic.Uint64
    mSets    atomic.Uint64
    mHits    atomic.Uint64
    mMisses  atomic.Uint64
    mDels    atomic.Uint64
    mExpired atomic.Uint64
    mUpdates atomic.Uint64
}

type shard struct {
    mu sync.RWMutex
    m  map[string]*entry
}

type entry struct {
    val      []byte
    expireAt int64 // unix nanos, 0 = never
}

func (e *entry) expired(now int64) bool { return e.expireAt != 0 && e.expireAt <= now }

func New(opts Options) *Store { return newStore(opts, time.Now) }

func newStore(opts Options, nowFn func() time.Time) *Store {
    opts = opts.withDefaults()
    s := &Store{
        opts:   opts,
        shards: make([]shard, opts.Shards),
        wake:   make(chan struct{}, 1),
        done:   make(chan struct{}),
        nowFn:  nowFn,
    }
    for i := range s.shards { s.shards[i].m = make(map[string]*entry) }
    s.wg.Add(1)
    go s.expirer()
    return s
}

// Close stops the expirer. The store stays readable.
func (s *Store) Close() {
    s.once.Do(func() { close(s.done) })
    s.wg.Wait()
}

// shardFor hashes key with FNV-1a.
func (s *Store) shardFor(key string) *shard {
    var h uint64 = 1469598103934665603
    for i := 0; i < len(key); i++ {
        h ^= uint64(key[i])
        h *= 1099511628211
    }
    return &s.shards[int(h%uint64(len(s.shards)))]
}

// reserve accounts delta more bytes, failing if MaxBytes would be exceeded.
func (s *Store) reserve(delta uint64) bool {
    if s.opts.MaxBytes == 0 {
        s.mBytes.Add(delta)
        return true
    }
    for {
        cur := s.mBytes.Load()
        if cur+delta > s.opts.MaxBytes { return false }
        if s.mBytes.CompareAndSwap(cur, cur+delta) { return true }
    }
}

func (s *Store) unreserve(n int) {
    if n > 0 { s.mBytes.Add(^uint64(n - 1)) }
}

// removeLocked drops key from sh; sh.mu must be held.
func (s *Store) removeLocked(sh *shard, key string, e *entry, expired bool) {
    delete(sh.m, key)
    s.mKeys.Add(^uint64(0))
    s.unreserve(len(e.val))
    if expired { s.mExpired.Add(1) } else { s.mDels.Add(1) }
}

// Set stores a copy of val. ttl <= 0 means no expiry. It reports false when
// the size limit rejected the write.
func (s *Store) Set(key string, val []byte, ttl time.Duration) bool {
    var expAt int64
    if ttl > 0 { expAt = s.nowFn().Add(ttl).UnixNano() }
    v := append([]byte(nil), val...)
    sh := s.shardFor(key)
    sh.mu.Lock()
    prev, existed := sh.m[key]
    oldLen := 0
    if existed { oldLen = len(prev.val) }
    if d := len(v) - oldLen; d > 0 && !s.reserve(uint64(d)) {
        sh.mu.Unlock()
        return false
    } else if d < 0 {
        s.unreserve(-d)
    }
    sh.m[key] = &entry{val: v, expireAt: expAt}
    if !existed { s.mKeys.Add(1) }
    s.mSets.Add(1)
    sh.mu.Unlock()
    if expAt != 0 { s.enqueueExpire(key, expAt) }
    return true
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(key string) ([]byte, bool) {
    sh := s.shardFor(key)
    sh.mu.RLock()
    e, ok := sh.m[key]
    var out []byte
    live := ok && !e.expired(s.nowFn().UnixNano())
    if live { out = append([]byte(nil), e.val...) }
    sh.mu.RUnlock()
    if !live {
        if ok { s.expireNow(key) }
        s.mMisses.Add(1)
        return nil, false
    }
    s.mHits.Add(1)
    return out, true
}

func (s *Store) expireNow(key string) {
    sh := s.shardFor(key)
    sh.mu.Lock()
    if e, ok := sh.m[key]; ok && e.expired(s.nowFn().UnixNano()) { s.removeLocked(sh, key, e, true) }
    sh.mu.Unlock()
}

// Update replaces the value of a live key with fn(old). fn must not retain
// old. The TTL is kept.
func (s *Store) Update(key string, fn func(old []byte) []byte) bool {
    sh := s.shardFor(key)
    sh.mu.Lock()
    defer sh.mu.Unlock()
    e, ok := sh.m[key]
    if !ok { return false }
    if e.expired(s.nowFn().UnixNano()) {
        s.removeLocked(sh, key, e, true)
        return false
    }
    nv := append([]byte(nil), fn(e.val)...)
    if d := len(nv) - len(e.val); d > 0 && !s.reserve(uint64(d)) {
        return false
    } else if d < 0 {
        s.unreserve(-d)
    }
    e.val = nv
    s.mUpdates.Add(1)
    return true
}

func (s *Store) Delete(key string) bool {
    sh := s.shardFor(key)
    sh.mu.Lock()
    defer sh.mu.Unlock()
    e, ok := sh.m[key]
    if ok { s.removeLocked(sh, key, e, false) }
    return ok
}

// Expire sets a new TTL on a live key. ttl <= 0 deletes it.
func (s *Store) Expire(key string, ttl time.Duration) bool {
    if ttl <= 0 { return s.Delete(key) }
    now := s.nowFn()
    exp := now.Add(ttl).UnixNano()
    sh := s.shardFor(key)
    sh.mu.Lock()
    e, ok := sh.m[key]
    if ok && e.expired(now.UnixNano()) {
        s.removeLocked(sh, key, e, true)
        ok = false
    }
    if ok { e.expireAt = exp }
    sh.mu.Unlock()
    if ok { s.enqueueExpire(key, exp) }
    return ok
}

// Persist clears the TTL of a live key.
func (s *Store) Persist(key string) bool {
    sh := s.shardFor(key)
    sh.mu.Lock()
    defer sh.mu.Unlock()
    e, ok := sh.m[key]
    if !ok || e.expired(s.nowFn().UnixNano()) { return false }
    e.expireAt = 0
    return true
}

// TTL returns the remaining lifetime; 0 with ok=true means no expiry.
func (s *Store) TTL(key string) (time.Duration, bool) {
    sh := s.shardFor(key)
    sh.mu.RLock()
    e, ok := sh.m[key]
    var exp int64
    if ok { exp = e.expireAt }
    sh.mu.RUnlock()
    if !ok { return 0, false }
    if exp == 0 { return 0, true }
    now := s.nowFn().UnixNano()
    if exp <= now {
        s.expireNow(key)
        return 0, false
    }
    return time.Duration(exp - now), true
}

// Keys returns the live keys starting with prefix, sorted.
func (s *Store) Keys(prefix string) []string {
    now := s.nowFn().UnixNano()
    var out []string
    for i := range s.shards {
        sh := &s.shards[i]
        sh.mu.RLock()
        for k, e := range sh.m {
            if strings.HasPrefix(k, prefix) && !e.expired(now) { out = append(out, k) }
        }
        sh.mu.RUnlock()
    }
    sort.Strings(out)
    return out
}

// Stats is a snapshot of the store counters.
type Stats struct {
    Keys    uint64
    Bytes   uint64
    Sets    uint64
    Hits    uint64
    Misses  uint64
    Dels    uint64
    Expired uint64
    Updates uint64
}

func (s *Store) Metrics() Stats {
    return Stats{
        Keys:    s.mKeys.Load(),
        Bytes:   s.mBytes.Load(),
        Sets:    s.mSets.Load(),
        Hits:    s.mHits.Load(),
        Misses:  s.mMisses.Load(),
        Dels:    s.mDels.Load(),
        Expired: s.mExpired.Load(),
        Updates: s.mUpdates.Load(),
    }
}

type expItem struct {
    when int64
    key  string
}

// expQueue is a min-heap of deadlines guarded by its own mutex.
type expQueue struct {
    mu    sync.Mutex
    items []expItem
}

func (q *expQueue) Len() int           { return len(q.items) }
func (q *expQueue) Less(i, j int) bool { return q.items[i].when < q.items[j].when }
func (q *expQueue) Swap(i, j int)      { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *expQueue) Push(x any)         { q.items = append(q.items, x.(expItem)) }
func (q *expQueue) Pop() any {
    n := len(q.items)
    it := q.items[n-1]
    q.items = q.items[:n-1]
    return it
}

func (s *Store) enqueueExpire(key string, when int64) {
    s.expq.mu.Lock()
    heap.Push(&s.expq, expItem{when: when, key: key})
    s.expq.mu.Unlock()
    select { case s.wake <- struct{}{}: default: }
}

// expirer sleeps until the earliest deadline and drops keys that are still
// expired then. Stale heap items (key rewritten or re-expired) are skipped.
func (s *Store) expirer() {
    defer s.wg.Done()
    timer := time.NewTimer(time.Hour)
    defer timer.Stop()
    for {
        s.expq.mu.Lock()
        var wait time.Duration = -1
        var due []string
        now := s.nowFn().UnixNano()
        for s.expq.Len() > 0 {
            it := s.expq.items[0]
            if it.when > now {
                wait = time.Duration(it.when - now)
                break
            }
            heap.Pop(&s.expq)
            due = append(due, it.key)
        }
        s.expq.mu.Unlock()
        for _, k := range due { s.expireNow(k) }

        if !timer.Stop() {
            select { case <-timer.C: default: }
        }
        if wait >= 0 { timer.Reset(wait) } else { timer.Reset(time.Hour) }
        select {
        case <-s.done:
            return
        case <-s.wake:
        case <-timer.C:
        }
    }
}
