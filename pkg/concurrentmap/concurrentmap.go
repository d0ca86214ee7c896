// Package concurrentmap provides a lock-striped map over integer keys. Each
// bucket has its own mutex, so writers to different buckets do not contend.
package concurrentmap

import (
	"runtime"
	"sync"
)

// Integer is the set of key types the map accepts.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

type bucket[K Integer, V any] struct {
	mu     sync.Mutex
	values map[K]*V
}

// Map is a fixed set of independently locked buckets. The zero value is not
// usable; create one with New.
type Map[K Integer, V any] struct {
	buckets []bucket[K, V]
}

// New creates a Map with bucketCount buckets. bucketCount below one is
// treated as one.
func New[K Integer, V any](bucketCount int) *Map[K, V] {
	if bucketCount < 1 {
		bucketCount = 1
	}
	m := &Map[K, V]{buckets: make([]bucket[K, V], bucketCount)}
	for i := range m.buckets {
		m.buckets[i].values = make(map[K]*V)
	}
	return m
}

// Access is exclusive ownership of one value. The bucket lock is held from
// AccessOrInsert until Release.
type Access[K Integer, V any] struct {
	b     *bucket[K, V]
	value *V
}

// Value returns the guarded value. It must not be used after Release.
func (a *Access[K, V]) Value() *V {
	return a.value
}

// Release unlocks the bucket. Calling it twice panics.
func (a *Access[K, V]) Release() {
	a.value = nil
	a.b.mu.Unlock()
}

func (m *Map[K, V]) bucketFor(key K) *bucket[K, V] {
	return &m.buckets[uint64(key)%uint64(len(m.buckets))]
}

// AccessOrInsert locks the bucket owning key and returns the value stored
// under key, inserting the zero value first if absent. The caller must call
// Release, typically with defer.
func (m *Map[K, V]) AccessOrInsert(key K) *Access[K, V] {
	b := m.bucketFor(key)
	b.mu.Lock()
	v, ok := b.values[key]
	if !ok {
		v = new(V)
		b.values[key] = v
	}
	return &Access[K, V]{b: b, value: v}
}

// Update runs fn on the value for key while holding its bucket lock.
func (m *Map[K, V]) Update(key K, fn func(v *V)) {
	acc := m.AccessOrInsert(key)
	defer acc.Release()
	fn(acc.Value())
}

// ToOrdinaryMap copies every bucket into one map. Each bucket is copied
// atomically with respect to writers of that bucket; buckets are visited in
// turn, so writers to other buckets may run during the copy.
func (m *Map[K, V]) ToOrdinaryMap() map[K]V {
	out := make(map[K]V)
	for i := range m.buckets {
		b := &m.buckets[i]
		for !b.mu.TryLock() {
			runtime.Gosched()
		}
		for k, v := range b.values {
			out[k] = *v
		}
		b.mu.Unlock()
	}
	return out
}

func (m *Map[K, V]) BucketCount() int {
	return len(m.buckets)
}
