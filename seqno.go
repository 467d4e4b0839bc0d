// seqno.go: sequence-number collector (C8)
//
// Grounded on original_source/e/seqno_collector.{h,cc}: sequence numbers
// are tracked in runs of 512, each run a 64-byte block of eight 64-bit
// bitmasks kept in an NWFMap keyed by the run's base index. Once every
// bit in a run is set it is compressed out of the map, and lowerBound
// walks forward from a monotonically advancing hint to report the
// largest prefix observed contiguously from zero.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package concur

import "sync/atomic"

const seqnoRunSpan = 512

type seqnoRun struct {
	nums [8]atomic.Uint64
}

// SeqnoCollector records which non-negative sequence numbers have been
// observed and reports the largest prefix seen contiguously from zero.
type SeqnoCollector struct {
	gc     *Collector
	runs   *NWFMap[uint64, *seqnoRun]
	lbHint atomic.Uint64
}

// NewSeqnoCollector constructs an empty SeqnoCollector backed by gc.
func NewSeqnoCollector(gc *Collector) *SeqnoCollector {
	return &SeqnoCollector{
		gc:   gc,
		runs: NewNWFMap[uint64, *seqnoRun](gc, HashUint64),
	}
}

// Collect records that seqno has been observed.
func (c *SeqnoCollector) Collect(seqno uint64) {
	idx := seqno &^ (seqnoRunSpan - 1)
	r := c.getRun(idx)
	c.collectAt(seqno, idx, r)
}

// CollectUpTo records every sequence number below seqno as observed:
// numbers in [idx(seqno), seqno), where idx(seqno) is seqno's run's
// base, are set in that run, and numbers below idx(seqno) are covered by
// advancing the lower-bound hint to idx(seqno). seqno itself is not
// recorded.
func (c *SeqnoCollector) CollectUpTo(seqno uint64) {
	idx := seqno &^ (seqnoRunSpan - 1)
	r := c.getRun(idx)
	c.setHint(idx)

	for i := idx; i < seqno; i++ {
		c.collectAt(i, idx, r)
	}
}

// LowerBound returns the largest N such that every sequence number in
// [0, N) has been collected.
func (c *SeqnoCollector) LowerBound() uint64 {
	for {
		lb := c.lbHint.Load()
		r, ok := c.runs.Get(lb)
		if !ok {
			return lb
		}

		i := 0
		var witness uint64
		for ; i < 8; i++ {
			witness = r.nums[i].Load()
			if witness != ^uint64(0) {
				break
			}
		}
		if i >= 8 {
			continue
		}

		seqno := lb + uint64(i)*64
		for witness&1 != 0 {
			seqno++
			witness >>= 1
		}
		return seqno
	}
}

func (c *SeqnoCollector) getRun(idx uint64) *seqnoRun {
	for {
		if r, ok := c.runs.Get(idx); ok {
			return r
		}
		r := &seqnoRun{}
		if c.runs.PutIfAbsent(idx, r) {
			return r
		}
	}
}

func (c *SeqnoCollector) collectAt(seqno, idx uint64, r *seqnoRun) {
	diff := seqno - idx
	byteIdx := diff >> 6
	bit := diff & 63

	for {
		expect := r.nums[byteIdx].Load()
		newval := expect | (1 << bit)
		if r.nums[byteIdx].CompareAndSwap(expect, newval) {
			if newval == ^uint64(0) {
				c.compress(idx, r)
			}
			return
		}
	}
}

func (c *SeqnoCollector) compress(idx uint64, r *seqnoRun) {
	for i := 0; i < 8; i++ {
		if r.nums[i].Load() != ^uint64(0) {
			return
		}
	}
	if c.lbHint.Load() != idx {
		return
	}

	c.setHint(idx + seqnoRunSpan)

	if c.runs.Del(idx) {
		old := r
		c.gc.Retire(func() { _ = old })
		nr := c.getRun(idx + seqnoRunSpan)
		c.compress(idx+seqnoRunSpan, nr)
	}
}

func (c *SeqnoCollector) setHint(idx uint64) {
	for {
		expect := c.lbHint.Load()
		if expect >= idx {
			return
		}
		if c.lbHint.CompareAndSwap(expect, idx) {
			return
		}
	}
}
