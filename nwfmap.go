// nwfmap.go: nearly-wait-free resizable hash map (C4)
//
// Grounded on original_source/e/nwf_hash_map.h, itself a port of Cliff
// Click's NonBlockingHashMap. Operations outside of a resize (and clear of
// its absolute worst case) are wait-free; resizing itself is lock-free,
// with readers and writers cooperatively helping a copy to completion
// instead of blocking on it.
//
// The original encodes NULL/NO_MATCH_OLD/MATCH_ANY/TOMBSTONE/TOMBPRIME and
// the mid-copy "primed" bit by stealing the low bit of a raw key/value
// pointer. Go pointers are opaque and scanned by the garbage collector, so
// this port follows the alternative the design notes call out: every slot
// holds an *immutable*, heap-allocated box (keyBox[K] / valueBox[V]) and
// every sentinel is a distinct box identity compared by pointer equality,
// exactly mirroring the original's pointer-identity comparisons without
// any bit-stealing.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package concur

import "sync/atomic"

// keyBox wraps a key so slots can hold sentinel identities (nil, or the
// map's tombstoneKey) distinct from any real key, mirroring the
// original's wrapper<K>::type pointer sentinels.
type keyBox[K comparable] struct {
	key K
}

// valueBox wraps a value, or marks a sentinel. special boxes (the
// NO_MATCH_OLD/MATCH_ANY comparison markers, and the per-map tombstone/
// tombprime singletons) never carry a meaningful value.
type valueBox[V comparable] struct {
	value     V
	special   bool
	tombstone bool
	primed    bool
}

// NWFMap is a nearly-wait-free, incrementally resizable hash map keyed by
// K and storing V. K and V are both comparable: CAS and equality-checked
// operations (CAS, DelIf) compare values with ==, exactly as the original
// compares unwrapped T values.
type NWFMap[K comparable, V comparable] struct {
	gc     *Collector
	table  atomic.Pointer[nwfTable[K, V]]
	hasher Hasher[K]
	cfg    Config

	lastResizeMillis atomic.Int64

	tombstoneKey *keyBox[K]
	noMatchOld   *valueBox[V]
	matchAny     *valueBox[V]
	tombstone    *valueBox[V]
	tombPrime    *valueBox[V]
}

// NewNWFMap constructs an empty NWFMap backed by gc, using hasher to
// digest keys.
func NewNWFMap[K comparable, V comparable](gc *Collector, hasher Hasher[K]) *NWFMap[K, V] {
	return NewNWFMapWithConfig[K, V](gc, hasher, DefaultConfig())
}

// NewNWFMapWithConfig is NewNWFMap with explicit tunables.
func NewNWFMapWithConfig[K comparable, V comparable](gc *Collector, hasher Hasher[K], cfg Config) *NWFMap[K, V] {
	_ = cfg.Validate()
	m := &NWFMap[K, V]{
		gc:           gc,
		hasher:       hasher,
		cfg:          cfg,
		tombstoneKey: &keyBox[K]{},
		noMatchOld:   &valueBox[V]{special: true},
		matchAny:     &valueBox[V]{special: true},
	}
	m.tombstone = &valueBox[V]{special: true, tombstone: true}
	m.tombPrime = &valueBox[V]{special: true, tombstone: true, primed: true}
	t := newNWFTable[K, V](uint64(m.cfg.MinTableSize), 0)
	m.table.Store(t)
	m.lastResizeMillis.Store(m.cfg.TimeProvider.Now() / 1e6)
	return m
}

// Size reports the top-level table's element count. Concurrent resizes
// may make this transiently approximate, matching the original.
func (m *NWFMap[K, V]) Size() int {
	return int(m.table.Load().size())
}

// Empty reports whether Size() == 0.
func (m *NWFMap[K, V]) Empty() bool {
	return m.Size() == 0
}

// Put unconditionally stores v under k, overwriting any existing value.
func (m *NWFMap[K, V]) Put(k K, v V) {
	m.putIfMatchTop(m.boxKey(k), m.noMatchOld, m.reference(v))
}

// PutIfAbsent stores v under k only if k has no current mapping. Returns
// true if the store happened.
func (m *NWFMap[K, V]) PutIfAbsent(k K, v V) bool {
	old := m.putIfMatchTop(m.boxKey(k), m.tombstone, m.reference(v))
	return m.isEmpty(old)
}

// CAS stores n under k only if k's current value equals o. Returns true
// if the store happened.
func (m *NWFMap[K, V]) CAS(k K, o, n V) bool {
	old := m.putIfMatchTop(m.boxKey(k), m.reference(o), m.reference(n))
	return m.valEqual(m.reference(o), old)
}

// Del removes k unconditionally. Returns true if a mapping was removed.
func (m *NWFMap[K, V]) Del(k K) bool {
	old := m.putIfMatchTop(m.boxKey(k), m.noMatchOld, m.tombstone)
	return !m.isEmpty(old)
}

// DelIf removes k only if its current value equals v. Returns true if a
// mapping was removed.
func (m *NWFMap[K, V]) DelIf(k K, v V) bool {
	old := m.putIfMatchTop(m.boxKey(k), m.reference(v), m.tombstone)
	return m.valEqual(m.reference(v), old)
}

// Has reports whether k has a current mapping.
func (m *NWFMap[K, V]) Has(k K) bool {
	_, ok := m.Get(k)
	return ok
}

// Get returns k's current value and true, or the zero value and false if
// k has no mapping.
func (m *NWFMap[K, V]) Get(k K) (V, bool) {
	kb := m.boxKey(k)
	hash := m.hashKey(k)
	t := m.table.Load()
	return m.get(t, kb, hash)
}

func (m *NWFMap[K, V]) get(t *nwfTable[K, V], key *keyBox[K], hash uint64) (V, bool) {
	mask := t.capacity - 1
	idx := hash & mask
	var reprobes uint64

	for {
		k := t.nodes[idx].key.Load()
		v := t.nodes[idx].val.Load()

		if m.isNullKey(k) {
			var zero V
			return zero, false
		}

		nested := t.next.Load()

		if m.keyEqual(key, k) {
			if !m.isPrimed(v) {
				if m.isTombstone(v) || m.isNullVal(v) {
					var zero V
					return zero, false
				}
				return v.value, true
			}
			newT := m.copySlotAndCheck(t, idx, true)
			return m.get(newT, key, hash)
		}

		reprobes++

		if reprobes >= m.reprobeLimit(t.capacity) || m.isTombstoneKey(k) {
			if nested != nil {
				newT := m.helpCopy(t)
				return m.get(newT, key, hash)
			}
			var zero V
			return zero, false
		}

		idx = (idx + 1) & mask
	}
}

func (m *NWFMap[K, V]) boxKey(k K) *keyBox[K] {
	return &keyBox[K]{key: k}
}

func (m *NWFMap[K, V]) reference(v V) *valueBox[V] {
	return &valueBox[V]{value: v}
}

func (m *NWFMap[K, V]) hashKey(k K) uint64 {
	return mix64(m.hasher(k))
}

func (m *NWFMap[K, V]) reprobeLimit(capacity uint64) uint64 {
	return uint64(m.cfg.ReprobeBase) + (capacity >> 2)
}

func (m *NWFMap[K, V]) keyEqual(a, b *keyBox[K]) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a == m.tombstoneKey || b == m.tombstoneKey {
		return false
	}
	return a.key == b.key
}

func (m *NWFMap[K, V]) isNullKey(k *keyBox[K]) bool      { return k == nil }
func (m *NWFMap[K, V]) isTombstoneKey(k *keyBox[K]) bool { return k == m.tombstoneKey }

func (m *NWFMap[K, V]) isNullVal(v *valueBox[V]) bool      { return v == nil }
func (m *NWFMap[K, V]) isNoMatchOld(v *valueBox[V]) bool   { return v == m.noMatchOld }
func (m *NWFMap[K, V]) isMatchAny(v *valueBox[V]) bool     { return v == m.matchAny }
func (m *NWFMap[K, V]) isTombstone(v *valueBox[V]) bool    { return v == m.tombstone || v == m.tombPrime }
func (m *NWFMap[K, V]) isTombPrime(v *valueBox[V]) bool    { return v == m.tombPrime }
func (m *NWFMap[K, V]) isEmpty(v *valueBox[V]) bool        { return m.isTombstone(v) || m.isNullVal(v) }
func (m *NWFMap[K, V]) isPrimed(v *valueBox[V]) bool       { return v != nil && v.primed }
func (m *NWFMap[K, V]) isSpecialVal(v *valueBox[V]) bool   { return v == nil || v.special }

func (m *NWFMap[K, V]) valEqual(a, b *valueBox[V]) bool {
	if a == b {
		return true
	}
	if m.isSpecialVal(a) || m.isSpecialVal(b) {
		return false
	}
	return a.value == b.value
}

// prime returns the mid-copy marker for v: TOMBPRIME if v is already a
// tombstone, otherwise a fresh box wrapping the same value with the
// primed flag set (the Go analog of OR-ing the low bit of the original's
// raw pointer).
func (m *NWFMap[K, V]) prime(v *valueBox[V]) *valueBox[V] {
	if m.isTombstone(v) {
		return m.tombPrime
	}
	return &valueBox[V]{value: v.value, primed: true}
}

func (m *NWFMap[K, V]) deprime(v *valueBox[V]) *valueBox[V] {
	if v == m.tombPrime {
		return m.tombstone
	}
	if v != nil && v.primed {
		return &valueBox[V]{value: v.value}
	}
	return v
}

func mix64(x uint64) uint64 {
	// splitmix64 finalizer: an avalanche mix analogous to the original's
	// lookup3_64 pass layered over the caller-supplied hash function.
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
