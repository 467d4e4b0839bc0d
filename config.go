// config.go: configuration for concur
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package concur

import (
	"github.com/agilira/go-timecache"
)

// Config holds the runtime tunables shared by constructors in this package.
// Unlike a typical application config, there is no "invalid" value here:
// every field that is zero or out of range is silently normalized to its
// documented default by Validate, matching the package's general stance
// that structural refusals are bool returns, not config-time errors.
type Config struct {
	// HazardPointersPerThread is the number of hazard-pointer slots per
	// registered thread. Must be > 0. Default: DefaultHazardPointers.
	// NewHazardDomain does not read Config: it takes P as an argument.
	HazardPointersPerThread int

	// RetireScanFactor is the factor in a hazard retire-list scan
	// threshold: scanThreshold = RetireScanFactor * N * P, where N is the
	// number of registered threads and P is HazardPointersPerThread.
	// Default: DefaultRetireScanFactor. HazardDomain does not read this
	// field; it always scans at DefaultRetireScanFactor.
	RetireScanFactor float64

	// MinTableSize is the smallest capacity an NWFMap ever allocates, and
	// the size new maps start at. Default: DefaultMinTableSize. Rounded up
	// to the next power of two.
	MinTableSize int

	// ReprobeBase is the additive constant in an NWFMap's reprobe limit.
	// Default: DefaultReprobeBase.
	ReprobeBase int

	// BoundedFIFOCapacity is a default BoundedFIFO slot count. Rounded up
	// to the next power of two. Default: DefaultBoundedFIFOCapacity.
	// NewBoundedFIFO does not read Config: a non-positive capacity there
	// uses DefaultBoundedFIFOCapacity.
	BoundedFIFOCapacity int

	// Logger is used for diagnostic messages about internal conditions
	// that have no return-value channel. A Collector built with
	// NewCollectorWithConfig logs panics recovered from retired objects'
	// release closures through it. If nil, NoOpLogger is used.
	Logger Logger

	// TimeProvider supplies the monotonic clock consumed by NWFMap's
	// resize heuristic. If nil, a cached system clock is used.
	TimeProvider TimeProvider
}

// Validate normalizes zero or out-of-range fields to their documented
// defaults. It never returns a non-nil error; it exists, like balios's
// Config.Validate, so callers can inspect the normalized configuration
// before constructing anything.
func (c *Config) Validate() error {
	if c.HazardPointersPerThread <= 0 {
		c.HazardPointersPerThread = DefaultHazardPointers
	}

	if c.RetireScanFactor <= 0 {
		c.RetireScanFactor = DefaultRetireScanFactor
	}

	if c.MinTableSize <= 0 {
		c.MinTableSize = DefaultMinTableSize
	}
	c.MinTableSize = nextPowerOfTwo(c.MinTableSize)

	if c.ReprobeBase <= 0 {
		c.ReprobeBase = DefaultReprobeBase
	}

	if c.BoundedFIFOCapacity <= 0 {
		c.BoundedFIFOCapacity = DefaultBoundedFIFOCapacity
	}
	c.BoundedFIFOCapacity = nextPowerOfTwo(c.BoundedFIFOCapacity)

	if c.Logger == nil {
		c.Logger = NoOpLogger{}
	}

	if c.TimeProvider == nil {
		c.TimeProvider = &systemTimeProvider{}
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	c := Config{}
	_ = c.Validate()
	return c
}

// systemTimeProvider is the default time provider using go-timecache.
// This provides fast time access with zero allocations; NWFMap's resize
// heuristic only needs millisecond-scale freshness.
type systemTimeProvider struct{}

func (t *systemTimeProvider) Now() int64 {
	return timecache.CachedTimeNano()
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
