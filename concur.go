// concur.go: package-level constants
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package concur

const (
	// Version of the concur library.
	Version = "v0.1.0-dev"

	// DefaultHazardPointers is the number of hazard-pointer slots reserved
	// per thread when a HazardDomain is constructed without an explicit P.
	DefaultHazardPointers = 3

	// DefaultMinTableSize is the smallest capacity an NWFMap table is ever
	// allocated at, and the floor it never shrinks below.
	DefaultMinTableSize = 8

	// DefaultReprobeBase is the additive constant in an NWFMap's reprobe
	// limit: reprobeLimit = DefaultReprobeBase + capacity>>2.
	DefaultReprobeBase = 10

	// DefaultBoundedFIFOCapacity is used when a BoundedFIFO is constructed
	// with a non-positive requested capacity.
	DefaultBoundedFIFOCapacity = 1024

	// DefaultRetireScanFactor is the multiplier (N * P * factor) at which a
	// HazardDomain's retire list triggers a scan.
	DefaultRetireScanFactor = 1.2
)
