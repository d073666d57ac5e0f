package kvstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store.
//
// It mirrors the Redis semantics the core relies on: missing keys read as
// empty, sorted sets order by score then member, keys whose TTL has passed
// are invisible, and empty collections are removed.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Atomic applies its batch while
//     holding the store lock, so no reader observes a partial batch.
type Memory struct {
	mu   sync.RWMutex
	keys map[string]*memEntry
	now  func() time.Time
}

type memEntry struct {
	hash      map[string]string
	zset      map[string]float64
	set       map[string]struct{}
	expiresAt time.Time
}

func (e *memEntry) empty() bool {
	return len(e.hash) == 0 && len(e.zset) == 0 && len(e.set) == 0
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		keys: make(map[string]*memEntry),
		now:  time.Now,
	}
}

// SetClock replaces the time source used for TTL expiry.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// live returns the entry for key if it exists and has not expired.
// Callers must hold m.mu.
func (m *Memory) live(key string) *memEntry {
	e, ok := m.keys[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		return nil
	}
	return e
}

// entry returns the live entry for key, creating it if needed.
// Callers must hold the write lock.
func (m *Memory) entry(key string) *memEntry {
	if e := m.live(key); e != nil {
		return e
	}
	e := &memEntry{}
	m.keys[key] = e
	return e
}

// HGetAll returns a copy of every field of a hash.
func (m *Memory) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string)
	if e := m.live(key); e != nil {
		for k, v := range e.hash {
			out[k] = v
		}
	}
	return out, nil
}

// Exists reports whether key is present and unexpired.
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.live(key) != nil, nil
}

// ZRange returns sorted-set members by rank, lowest score first.
func (m *Memory) ZRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e := m.live(key)
	if e == nil || len(e.zset) == 0 {
		return []string{}, nil
	}

	members := make([]string, 0, len(e.zset))
	for member := range e.zset {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool {
		si, sj := e.zset[members[i]], e.zset[members[j]]
		if si != sj {
			return si < sj
		}
		return members[i] < members[j]
	})

	n := int64(len(members))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return []string{}, nil
	}
	return members[start : stop+1], nil
}

// ZRem removes sorted-set members.
func (m *Memory) ZRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zrem(key, members)
	return nil
}

// SMembers returns the members of a set.
func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []string{}
	if e := m.live(key); e != nil {
		for member := range e.set {
			out = append(out, member)
		}
	}
	return out, nil
}

// Atomic applies the queued writes under the store lock.
func (m *Memory) Atomic(ctx context.Context, fn func(b Batch)) error {
	b := &memBatch{}
	fn(b)

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range b.ops {
		op(m)
	}
	return nil
}

// Ping always succeeds.
func (m *Memory) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

// Keys returns every live key. Intended for tests asserting nothing leaked.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.keys))
	for k := range m.keys {
		if m.live(k) != nil {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (m *Memory) zrem(key string, members []string) {
	e := m.live(key)
	if e == nil {
		return
	}
	for _, member := range members {
		delete(e.zset, member)
	}
	if e.empty() {
		delete(m.keys, key)
	}
}

// memBatch records writes as closures replayed by Atomic.
type memBatch struct {
	ops []func(m *Memory)
}

func (b *memBatch) HSet(key string, fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	b.ops = append(b.ops, func(m *Memory) {
		e := m.entry(key)
		if e.hash == nil {
			e.hash = make(map[string]string, len(copied))
		}
		for k, v := range copied {
			e.hash[k] = v
		}
	})
}

func (b *memBatch) Del(keys ...string) {
	b.ops = append(b.ops, func(m *Memory) {
		for _, k := range keys {
			delete(m.keys, k)
		}
	})
}

func (b *memBatch) Expire(key string, ttl time.Duration) {
	b.ops = append(b.ops, func(m *Memory) {
		if e := m.live(key); e != nil {
			e.expiresAt = m.now().Add(ttl)
		}
	})
}

func (b *memBatch) ZAdd(key string, score float64, member string) {
	b.ops = append(b.ops, func(m *Memory) {
		e := m.entry(key)
		if e.zset == nil {
			e.zset = make(map[string]float64)
		}
		e.zset[member] = score
	})
}

func (b *memBatch) ZRem(key string, members ...string) {
	b.ops = append(b.ops, func(m *Memory) {
		m.zrem(key, members)
	})
}

func (b *memBatch) SAdd(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	b.ops = append(b.ops, func(m *Memory) {
		e := m.entry(key)
		if e.set == nil {
			e.set = make(map[string]struct{})
		}
		for _, member := range members {
			e.set[member] = struct{}{}
		}
	})
}

func (b *memBatch) SRem(key string, members ...string) {
	b.ops = append(b.ops, func(m *Memory) {
		e := m.live(key)
		if e == nil {
			return
		}
		for _, member := range members {
			delete(e.set, member)
		}
		if e.empty() {
			delete(m.keys, key)
		}
	})
}
