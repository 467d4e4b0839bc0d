// Package concur provides a concurrent-data-structure and
// safe-memory-reclamation core for multi-threaded Go services.
//
// It contains:
//
//   - Collector: an epoch-based garbage collector for deferred reclamation
//     of memory shared across goroutines without locks.
//   - HazardDomain: hazard-pointer based protection for individually
//     referenced objects, an alternative to Collector for structures that
//     retire one pointer at a time on every operation.
//   - NWFMap: a nearly-wait-free, incrementally-resizable hash map.
//   - LFMap / LFSet: a lock-free linked hash map and set built on marked
//     pointers and cooperative unlinking.
//   - BoundedFIFO: a bounded multi-producer multi-consumer queue.
//   - MPSCFifo: an unbounded multi-producer single-consumer queue.
//   - SeqnoCollector: a compact tracker of which sequence numbers have been
//     observed, and the largest prefix observed contiguously.
//
// None of these types perform I/O, logging is opt-in via the Logger
// interface (NoOpLogger by default), and errors follow a three-tier model:
// structural refusals are plain bool/option returns, contract violations
// and resource exhaustion are reported as structured errors.
//
// Example usage:
//
//	gc := concur.NewCollector()
//	m := concur.NewNWFMap[string, int](gc, concur.FNV1a64)
//	m.Put("a", 1)
//	v, ok := m.Get("a")
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package concur
