// gc.go: epoch-based garbage collection (C2)
//
// Grounded on the original_source garbage_collector.h/.cc: threads
// periodically report a quiescent point, and an object retired at epoch T
// is safe to destroy once every thread's quiescent epoch exceeds T. A
// Collector has no global singleton; callers own its lifetime, matching
// the original's plain object with an explicit constructor/destructor.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package concur

import (
	"container/heap"
	"sync"
	"sync/atomic"
)

// garbageItem is one deferred destructor, timestamped with the epoch at
// which it was retired.
type garbageItem struct {
	timestamp uint64
	release   func()
}

// garbageNode is a node in the lock-free shared garbage list (an
// intrusive singly-linked list built with atomic.Pointer, mirroring the
// original's CAS-based enqueue).
type garbageNode struct {
	next atomic.Pointer[garbageNode]
	item garbageItem
}

// garbageHeap is a per-thread min-heap of deferred destructors ordered by
// timestamp, the Go equivalent of the original's std::vector<garbage> kept
// as a binary heap via push_heap/pop_heap.
type garbageHeap []garbageItem

func (h garbageHeap) Len() int            { return len(h) }
func (h garbageHeap) Less(i, j int) bool  { return h[i].timestamp < h[j].timestamp }
func (h garbageHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *garbageHeap) Push(x interface{}) { *h = append(*h, x.(garbageItem)) }
func (h *garbageHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// threadStateNode is the registry entry backing a ThreadState.
type threadStateNode struct {
	next               atomic.Pointer[threadStateNode]
	quiescentTimestamp atomic.Uint64
	offlineTimestamp   atomic.Uint64
	heapMu             sync.Mutex
	heap               garbageHeap
}

func (n *threadStateNode) purge(minTimestamp uint64, logger Logger) {
	n.heapMu.Lock()
	defer n.heapMu.Unlock()
	for len(n.heap) > 0 && n.heap[0].timestamp < minTimestamp {
		item := heap.Pop(&n.heap).(garbageItem)
		runRelease(item.release, logger)
	}
}

// runRelease invokes a retired object's release closure, recovering from
// any panic so one caller's broken destructor can't take down the thread
// draining the collector's garbage — mirrored from the teacher's
// recover-around-a-caller-supplied-callback pattern in its cache loader.
func runRelease(release func(), logger Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic recovered releasing a retired object",
				"error", NewErrPanicRecovered("Retire", r))
		}
	}()
	release()
}

// ThreadState is the per-thread registration handle a goroutine passes to
// every Collector operation. It must be registered via RegisterThread
// before use and deregistered exactly once when the goroutine retires.
type ThreadState struct {
	tsn *threadStateNode
}

// Collector is an epoch-based garbage collector: it defers destruction of
// retired objects until every registered thread has passed through a
// quiescent point observed after the retirement.
type Collector struct {
	timestamp           epochCounter
	offlineTransitions  atomic.Uint64
	minimum             atomic.Uint64
	registered          atomic.Pointer[threadStateNode]
	garbage             atomic.Pointer[garbageNode]
	protectRegistration sync.Mutex
	logger              Logger
}

// NewCollector constructs a Collector with no registered threads.
func NewCollector() *Collector {
	return NewCollectorWithConfig(DefaultConfig())
}

// NewCollectorWithConfig constructs a Collector using cfg.Logger for
// diagnostic messages. cfg is validated in place.
func NewCollectorWithConfig(cfg Config) *Collector {
	_ = cfg.Validate()
	c := &Collector{logger: cfg.Logger}
	c.timestamp.v.Store(2)
	return c
}

// RegisterThread registers ts with the collector. ts must not already be
// registered.
func (c *Collector) RegisterThread(ts *ThreadState) error {
	if ts.tsn != nil {
		return NewErrAlreadyRegistered()
	}
	tsn := &threadStateNode{}

	c.protectRegistration.Lock()
	defer c.protectRegistration.Unlock()
	ts.tsn = tsn
	tsn.next.Store(c.registered.Load())
	c.registered.Store(tsn)
	timestamp := c.timestamp.next()
	tsn.quiescentTimestamp.Store(timestamp)
	return nil
}

// DeregisterThread removes ts from the registry and drains its pending
// garbage into the shared list so other threads can continue to make
// progress reclaiming it.
func (c *Collector) DeregisterThread(ts *ThreadState) error {
	if ts.tsn == nil {
		return NewErrNotRegistered("DeregisterThread")
	}

	c.protectRegistration.Lock()
	node := c.registered.Load()
	if node == ts.tsn {
		c.registered.Store(node.next.Load())
	} else {
		for node != nil && node.next.Load() != ts.tsn {
			node = node.next.Load()
		}
		if node != nil {
			node.next.Store(ts.tsn.next.Load())
		}
	}
	c.protectRegistration.Unlock()

	target := ts.tsn
	target.heapMu.Lock()
	for _, item := range target.heap {
		c.enqueue(item)
	}
	target.heap = nil
	target.heapMu.Unlock()

	ts.tsn = nil
	return nil
}

// QuiescentState records that ts has reached a point with no outstanding
// references to shared structures, advances the global minimum epoch, and
// opportunistically destroys garbage that has become unreachable.
func (c *Collector) QuiescentState(ts *ThreadState) error {
	tsn := ts.tsn
	if tsn == nil {
		return NewErrNotRegistered("QuiescentState")
	}

	prevMin := c.minimum.Load()
	var timestamp, minTimestamp uint64

	for {
		timestamp = c.timestamp.next()
		minTimestamp = timestamp

		transitions := c.offlineTransitions.Load()

		node := c.registered.Load()
		for node != nil {
			if node != tsn {
				qst := node.quiescentTimestamp.Load()
				oft := node.offlineTimestamp.Load()
				if qst > oft {
					if qst < minTimestamp {
						minTimestamp = qst
					}
				} else {
					node.purge(prevMin, c.logger)
				}
			}
			node = node.next.Load()
		}

		c.timestamp.next()

		if transitions == c.offlineTransitions.Load() {
			break
		}
	}

	for {
		cur := c.minimum.Load()
		if cur >= minTimestamp {
			break
		}
		if c.minimum.CompareAndSwap(cur, minTimestamp) {
			break
		}
	}

	gc := c.garbage.Load()
	if !c.garbage.CompareAndSwap(gc, nil) {
		gc = nil
	}

	tsn.quiescentTimestamp.Store(timestamp)
	tsn.purge(minTimestamp, c.logger)

	for gc != nil {
		next := gc.next.Load()
		if gc.item.timestamp < minTimestamp {
			runRelease(gc.item.release, c.logger)
		} else {
			tsn.heapMu.Lock()
			heap.Push(&tsn.heap, gc.item)
			tsn.heapMu.Unlock()
		}
		gc = next
	}

	return nil
}

// Offline marks ts as not participating in quiescent-state tracking until
// a matching call to Online. Use this around long blocking operations so
// other threads' garbage collection isn't held up waiting for this thread.
func (c *Collector) Offline(ts *ThreadState) error {
	tsn := ts.tsn
	if tsn == nil {
		return NewErrNotRegistered("Offline")
	}
	timestamp := c.timestamp.next()
	tsn.offlineTimestamp.Store(timestamp)
	tsn.quiescentTimestamp.Store(timestamp)
	c.timestamp.next()
	return nil
}

// Online reverses a prior Offline call.
func (c *Collector) Online(ts *ThreadState) error {
	tsn := ts.tsn
	if tsn == nil {
		return NewErrNotRegistered("Online")
	}
	timestamp := c.timestamp.next()
	tsn.quiescentTimestamp.Store(timestamp)

	for {
		cur := c.offlineTransitions.Load()
		if cur >= timestamp {
			break
		}
		if c.offlineTransitions.CompareAndSwap(cur, timestamp) {
			break
		}
	}

	c.timestamp.next()
	return nil
}

// Retire schedules release to run once no registered thread can still be
// observing the object release frees. release must not block and must not
// itself call back into the Collector.
func (c *Collector) Retire(release func()) {
	timestamp := c.timestamp.next()
	c.enqueue(garbageItem{timestamp: timestamp, release: release})
}

func (c *Collector) enqueue(item garbageItem) {
	n := &garbageNode{item: item}
	expect := c.garbage.Load()
	n.next.Store(expect)
	for !c.garbage.CompareAndSwap(expect, n) {
		expect = c.garbage.Load()
		n.next.Store(expect)
	}
}
