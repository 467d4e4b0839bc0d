// atomic.go: the ordering primitive shared by every component in this
// package.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package concur

import "sync/atomic"

// epochCounter is a monotonically increasing, globally visible timestamp.
// Its fetch-add is the sole ordering primitive the epoch collector builds
// on: Go's sync/atomic guarantees sequential
// consistency for every operation on it, which is strictly stronger than
// the acquire/release pairing this design otherwise needs, so no separate
// fence is introduced.
type epochCounter struct {
	v atomic.Uint64
}

// next returns the next value of the counter, incrementing it.
func (e *epochCounter) next() uint64 {
	return e.v.Add(1)
}

// load returns the counter's current value without advancing it.
func (e *epochCounter) load() uint64 {
	return e.v.Load()
}

// memoryBarrier is a documented no-op: every sync/atomic operation in this
// package already carries a full barrier, and no code in this package
// calls it. It names the design's full fence without claiming Go exposes
// a bare fence primitive.
func memoryBarrier() {}
