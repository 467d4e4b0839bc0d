// lfmap.go: lock-free linked hash map and set (C5)
//
// Grounded on original_source/e/lockfree_hash_map.h and
// lockfree_hash_set.h: a fixed-size bucket array, each bucket heading a
// hash-ordered singly-linked list shared across buckets is not needed
// here since buckets never resize. Deletion is Harris's mark-then-unlink:
// a node is first logically removed by replacing its own outgoing link
// (the one stored in its next field) with one flagged deleted, then
// physically unlinked from its predecessor by whichever goroutine next
// traverses past it.
//
// The original steals the low bits of the `node*` stored at each link to
// carry the deleted flag. This port instead makes every link an
// immutable box (lfLink) pairing a *lfNode with that flag, the same
// tagged-union technique NWFMap uses for its sentinels, so no pointer
// bits need stealing and the garbage collector keeps scanning ordinary
// Go pointers.
//
// Ordering within a bucket is by hash only; the original additionally
// orders same-hash collisions by key via operator< to terminate a probe
// early. Go's comparable constraint gives no such ordering, so same-hash
// keys are instead scanned linearly in insertion order — a minor
// performance simplification that does not change correctness.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package concur

import "sync/atomic"

// lfNode is one entry: an immutable hash/key/value triple, linked to its
// successor via an atomically-replaced lfLink.
type lfNode[K comparable, V comparable] struct {
	hash uint64
	key  K
	val  V
	next atomic.Pointer[lfLink[K, V]]
}

// lfLink is the box stored in a bucket slot or a node's next field: the
// node it points to, and whether the node that OWNS this link (not the
// one it points to) has been logically deleted — set only on a node's
// own outgoing link by Remove, mirroring the DELETED bit the original
// steals from a node's own next pointer.
type lfLink[K comparable, V comparable] struct {
	node    *lfNode[K, V]
	deleted bool
}

func linkedNode[K comparable, V comparable](l *lfLink[K, V]) *lfNode[K, V] {
	if l == nil {
		return nil
	}
	return l.node
}

// LFMap is a lock-free hash map with a fixed bucket count, chosen at
// construction and never resized, matching the original.
type LFMap[K comparable, V comparable] struct {
	hazards *HazardDomain[lfNode[K, V]]
	buckets []atomic.Pointer[lfLink[K, V]]
	mask    uint64
	hasher  Hasher[K]
}

// NewLFMap constructs an LFMap with 1<<magnitude buckets. magnitude <= 0
// is normalized to 5 (32 buckets), matching the original's default.
func NewLFMap[K comparable, V comparable](hasher Hasher[K], magnitude int) *LFMap[K, V] {
	if magnitude <= 0 {
		magnitude = 5
	}
	n := uint64(1) << uint(magnitude)
	return &LFMap[K, V]{
		hazards: NewHazardDomain[lfNode[K, V]](3),
		buckets: make([]atomic.Pointer[lfLink[K, V]], n),
		mask:    n - 1,
		hasher:  hasher,
	}
}

// find walks the bucket for hash/key, physically unlinking any logically
// deleted nodes it passes, and returns the slot a new node would need to
// be spliced into (prevPtr, atCur — the link currently stored there) plus
// the matching node if one was found.
func (m *LFMap[K, V]) find(hptr *HazardRecord[lfNode[K, V]], hash uint64, key K) (prevPtr *atomic.Pointer[lfLink[K, V]], atCur *lfLink[K, V], found *lfNode[K, V]) {
retry:
	for {
		prevPtr = &m.buckets[hash&m.mask]

		for {
			cur := prevPtr.Load()
			if cur == nil {
				return prevPtr, nil, nil
			}
			hptr.Set(0, cur.node)
			if prevPtr.Load() != cur {
				continue retry
			}

			next := cur.node.next.Load()
			hptr.Set(1, linkedNode(next))
			if cur.node.next.Load() != next {
				continue retry
			}

			if next != nil && next.deleted {
				unmarked := &lfLink[K, V]{node: next.node}
				if prevPtr.CompareAndSwap(cur, unmarked) {
					hptr.Retire(cur.node)
				}
				continue retry
			}

			if cur.node.hash == hash && cur.node.key == key {
				return prevPtr, cur, cur.node
			}
			if cur.node.hash > hash {
				return prevPtr, cur, nil
			}

			prevPtr = &cur.node.next
		}
	}
}

// Contains reports whether k has a mapping.
func (m *LFMap[K, V]) Contains(k K) bool {
	_, ok := m.Lookup(k)
	return ok
}

// Lookup returns k's value and true, or the zero value and false.
func (m *LFMap[K, V]) Lookup(k K) (V, bool) {
	hptr := m.hazards.Acquire()
	defer m.hazards.Release(hptr)

	hash := mix64(m.hasher(k))
	_, _, n := m.find(hptr, hash, k)
	if n == nil {
		var zero V
		return zero, false
	}
	return n.val, true
}

// Insert adds k/v if k has no existing mapping. Returns false if k was
// already present.
func (m *LFMap[K, V]) Insert(k K, v V) bool {
	hptr := m.hazards.Acquire()
	defer m.hazards.Release(hptr)

	hash := mix64(m.hasher(k))

	for {
		prevPtr, atCur, n := m.find(hptr, hash, k)
		if n != nil {
			return false
		}

		nn := &lfNode[K, V]{hash: hash, key: k, val: v}
		nn.next.Store(atCur)

		if prevPtr.CompareAndSwap(atCur, &lfLink[K, V]{node: nn}) {
			return true
		}
	}
}

// Remove deletes k's mapping if present, returning true if one was
// removed.
func (m *LFMap[K, V]) Remove(k K) bool {
	hptr := m.hazards.Acquire()
	defer m.hazards.Release(hptr)

	hash := mix64(m.hasher(k))

	for {
		prevPtr, atCur, n := m.find(hptr, hash, k)
		if n == nil {
			return false
		}

		next := n.next.Load()
		if next != nil && next.deleted {
			continue
		}

		var nextNode *lfNode[K, V]
		if next != nil {
			nextNode = next.node
		}
		marked := &lfLink[K, V]{node: nextNode, deleted: true}
		if !n.next.CompareAndSwap(next, marked) {
			continue
		}

		if prevPtr.CompareAndSwap(atCur, next) {
			hptr.Retire(n)
		} else {
			m.find(hptr, hash, k)
		}
		return true
	}
}

// LFMapIterator walks every live entry of an LFMap, one hazard-protected
// bucket chain at a time, grounded on the original's iterator class and
// its prime()/next() pair. It is sloppy: entries inserted or removed
// during the walk may or may not be observed, and the walk never blocks
// a concurrent Insert or Remove.
type LFMapIterator[K comparable, V comparable] struct {
	m      *LFMap[K, V]
	hptr   *HazardRecord[lfNode[K, V]]
	offset uint64
	elem   *lfNode[K, V]
	key    K
	val    V
}

// Iterator returns an LFMapIterator over m. Call Release when done with
// it to free its hazard record.
func (m *LFMap[K, V]) Iterator() *LFMapIterator[K, V] {
	return &LFMapIterator[K, V]{m: m, hptr: m.hazards.Acquire()}
}

// Release returns the iterator's hazard record to the domain. Next
// returning false does not release the record; Release is still needed
// after the iterator is drained.
func (it *LFMapIterator[K, V]) Release() {
	it.m.hazards.Release(it.hptr)
}

// Next advances the iterator and reports whether a pair is available via
// Key/Value.
func (it *LFMapIterator[K, V]) Next() bool {
	if it.elem != nil {
		if !it.advance() {
			return false
		}
	} else if !it.prime() {
		return false
	}

	it.key = it.elem.key
	it.val = it.elem.val
	return true
}

// prime scans forward from the current bucket offset for the head of the
// first non-empty, non-deleted chain, exactly as the original's prime()
// scans m_table[m_offset] onward. It leaves it.elem set to that head, or
// reports false once every bucket has been exhausted.
func (it *LFMapIterator[K, V]) prime() bool {
	buckets := it.m.buckets
	for it.offset < uint64(len(buckets)) && it.elem == nil {
		link := buckets[it.offset].Load()
		it.hptr.Set(1, linkedNode(link))
		if buckets[it.offset].Load() != link {
			continue
		}
		if link != nil && link.deleted {
			continue
		}

		it.elem = linkedNode(link)
		it.hptr.Set(0, it.elem)
		if it.elem == nil {
			it.offset++
		}
	}
	return it.elem != nil
}

// advance steps from it.elem to its successor, following the original's
// next(): a deleted flag on it.elem's outgoing link (it.elem itself has
// been removed) restarts the scan from the current bucket's head, a nil
// successor moves to the next bucket, and anything else is a plain step
// forward in the chain.
func (it *LFMapIterator[K, V]) advance() bool {
	for {
		next := it.elem.next.Load()
		it.hptr.Set(1, linkedNode(next))
		if it.elem.next.Load() != next {
			continue
		}
		it.hptr.Set(0, linkedNode(next))

		if next != nil && next.deleted {
			it.elem = nil
			return it.prime()
		} else if linkedNode(next) != nil {
			it.elem = next.node
			return true
		} else {
			it.offset++
			it.elem = nil
			return it.prime()
		}
	}
}

// Key returns the current pair's key. Valid only after Next returns true.
func (it *LFMapIterator[K, V]) Key() K { return it.key }

// Value returns the current pair's value. Valid only after Next returns true.
func (it *LFMapIterator[K, V]) Value() V { return it.val }

// LFSet is a lock-free set, implemented as an LFMap with an empty value.
type LFSet[K comparable] struct {
	m *LFMap[K, struct{}]
}

// NewLFSet constructs an LFSet with 1<<magnitude buckets.
func NewLFSet[K comparable](hasher Hasher[K], magnitude int) *LFSet[K] {
	return &LFSet[K]{m: NewLFMap[K, struct{}](hasher, magnitude)}
}

// Contains reports whether k is a member.
func (s *LFSet[K]) Contains(k K) bool { return s.m.Contains(k) }

// Insert adds k, returning false if it was already a member.
func (s *LFSet[K]) Insert(k K) bool { return s.m.Insert(k, struct{}{}) }

// Remove deletes k, returning true if it was a member.
func (s *LFSet[K]) Remove(k K) bool { return s.m.Remove(k) }
