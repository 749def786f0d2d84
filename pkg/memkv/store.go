// Package memkv is a sharded in-memory key/value store with per-key TTL.
// The delivery engine uses it to persist outbox records and small node state
// without pulling a disk database into the hot path.
package memkv

import (
	"sync"
	"sync/atomic"
	"time"
)

type Options struct {
	Shards        int           // default 64
	SweepInterval time.Duration // background expiry scan period; default 1s
}

func (o Options) withDefaults() Options {
	if o.Shards <= 0 {
		o.Shards = 64
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Second
	}
	return o
}

type Store struct {
	opts    Options
	shards  []shard
	closeCh chan struct{}
	wg      sync.WaitGroup

	nowFn func() time.Time

	mKeys    atomic.Uint64
	mSets    atomic.Uint64
	mHits    atomic.Uint64
	mMisses  atomic.Uint64
	mDels    atomic.Uint64
	mExpired atomic.Uint64
}

type shard struct {
	mu sync.RWMutex
	m  map[string]entry
}

type entry struct {
	val      []byte
	expireAt int64 // unix nano; 0 = no expiry
}

func New(opts Options) *Store {
	opts = opts.withDefaults()
	s := &Store{
		opts:    opts,
		shards:  make([]shard, opts.Shards),
		closeCh: make(chan struct{}),
		nowFn:   time.Now,
	}
	for i := range s.shards {
		s.shards[i].m = make(map[string]entry)
	}
	s.wg.Add(1)
	go s.sweeper()
	return s
}

func (s *Store) Close() {
	select {
	case <-s.closeCh:
		return
	default:
	}
	close(s.closeCh)
	s.wg.Wait()
}

func (s *Store) shardFor(key string) *shard {
	// FNV-1a 64
	var h uint64 = 1469598103934665603
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= 1099511628211
	}
	return &s.shards[int(h%uint64(len(s.shards)))]
}

// Set stores a copy of val under key. ttl <= 0 means no expiry.
// Returns true when the key was created rather than overwritten.
func (s *Store) Set(key string, val []byte, ttl time.Duration) bool {
	var expAt int64
	if ttl > 0 {
		expAt = s.nowFn().Add(ttl).UnixNano()
	}
	v := make([]byte, len(val))
	copy(v, val)

	sh := s.shardFor(key)
	sh.mu.Lock()
	_, existed := sh.m[key]
	sh.m[key] = entry{val: v, expireAt: expAt}
	sh.mu.Unlock()

	if !existed {
		s.mKeys.Add(1)
	}
	s.mSets.Add(1)
	return !existed
}

// Get returns a copy of the value, or (nil,false) when absent or expired.
func (s *Store) Get(key string) ([]byte, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.m[key]
	sh.mu.RUnlock()

	if !ok || s.expired(e) {
		if ok {
			s.lazyExpire(sh, key)
		}
		s.mMisses.Add(1)
		return nil, false
	}
	s.mHits.Add(1)
	out := make([]byte, len(e.val))
	copy(out, e.val)
	return out, true
}

// GetDel atomically fetches and removes a key.
func (s *Store) GetDel(key string) ([]byte, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	e, ok := sh.m[key]
	if ok {
		delete(sh.m, key)
	}
	sh.mu.Unlock()

	if !ok {
		s.mMisses.Add(1)
		return nil, false
	}
	s.mKeys.Add(^uint64(0))
	if s.expired(e) {
		s.mExpired.Add(1)
		s.mMisses.Add(1)
		return nil, false
	}
	s.mDels.Add(1)
	s.mHits.Add(1)
	return e.val, true
}

// Update applies fn to the current value while holding the shard lock.
// Returns false when the key is absent or expired.
func (s *Store) Update(key string, fn func(old []byte) []byte) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.m[key]
	if !ok {
		return false
	}
	if s.expired(e) {
		delete(sh.m, key)
		s.mExpired.Add(1)
		s.mKeys.Add(^uint64(0))
		return false
	}
	nv := fn(e.val)
	buf := make([]byte, len(nv))
	copy(buf, nv)
	sh.m[key] = entry{val: buf, expireAt: e.expireAt}
	return true
}

func (s *Store) Exists(key string) bool {
	_, ok := s.Get(key)
	return ok
}

func (s *Store) Delete(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	_, ok := sh.m[key]
	if ok {
		delete(sh.m, key)
	}
	sh.mu.Unlock()
	if ok {
		s.mDels.Add(1)
		s.mKeys.Add(^uint64(0))
	}
	return ok
}

// Expire resets the TTL for an existing key. ttl <= 0 deletes it.
func (s *Store) Expire(key string, ttl time.Duration) bool {
	if ttl <= 0 {
		return s.Delete(key)
	}
	expAt := s.nowFn().Add(ttl).UnixNano()
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.m[key]
	if !ok || s.expired(e) {
		return false
	}
	e.expireAt = expAt
	sh.m[key] = e
	return true
}

// TTL returns the remaining lifetime. ok=true with zero duration means the
// key exists without an expiry.
func (s *Store) TTL(key string) (time.Duration, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.m[key]
	sh.mu.RUnlock()
	if !ok || s.expired(e) {
		return 0, false
	}
	if e.expireAt == 0 {
		return 0, true
	}
	return time.Duration(e.expireAt - s.nowFn().UnixNano()), true
}

// Keys returns all live keys with the given prefix.
func (s *Store) Keys(prefix string) []string {
	var out []string
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for k, e := range sh.m {
			if len(k) >= len(prefix) && k[:len(prefix)] == prefix && !s.expired(e) {
				out = append(out, k)
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

type Stats struct {
	Keys    uint64
	Sets    uint64
	Hits    uint64
	Misses  uint64
	Dels    uint64
	Expired uint64
}

func (s *Store) Metrics() Stats {
	return Stats{
		Keys:    s.mKeys.Load(),
		Sets:    s.mSets.Load(),
		Hits:    s.mHits.Load(),
		Misses:  s.mMisses.Load(),
		Dels:    s.mDels.Load(),
		Expired: s.mExpired.Load(),
	}
}

func (s *Store) expired(e entry) bool {
	return e.expireAt != 0 && e.expireAt <= s.nowFn().UnixNano()
}

func (s *Store) lazyExpire(sh *shard, key string) {
	sh.mu.Lock()
	if e, ok := sh.m[key]; ok && s.expired(e) {
		delete(sh.m, key)
		s.mExpired.Add(1)
		s.mKeys.Add(^uint64(0))
	}
	sh.mu.Unlock()
}

func (s *Store) sweeper() {
	defer s.wg.Done()
	t := time.NewTicker(s.opts.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-s.closeCh:
			return
		case <-t.C:
		}
		now := s.nowFn().UnixNano()
		for i := range s.shards {
			sh := &s.shards[i]
			sh.mu.Lock()
			for k, e := range sh.m {
				if e.expireAt != 0 && e.expireAt <= now {
					delete(sh.m, k)
					s.mExpired.Add(1)
					s.mKeys.Add(^uint64(0))
				}
			}
			sh.mu.Unlock()
		}
	}
}
