// hash.go: ready-made Hasher implementations for NWFMap/LFMap/LFSet.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package concur

import "hash/fnv"

// FNV1a64 hashes a string with 64-bit FNV-1a, stdlib's hash/fnv being the
// purpose-built implementation of the algorithm -- there is no ecosystem
// library in the example corpus worth reaching for here.
func FNV1a64(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// HashBytesFNV1a64 hashes a byte slice with 64-bit FNV-1a.
func HashBytesFNV1a64(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// HashUint64 is the identity hasher for uint64 keys; mix64 applied
// downstream in NWFMap/LFMap already supplies the avalanche these small
// integer keys need.
func HashUint64(k uint64) uint64 {
	return k
}

// HashInt hashes an int key via HashUint64.
func HashInt(k int) uint64 {
	return uint64(k)
}
