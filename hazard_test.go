package concur

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestHazardDomain_AcquireRelease(t *testing.T) {
	d := NewHazardDomain[int](3)
	rec := d.Acquire()
	if d.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", d.Len())
	}

	v := 42
	rec.Set(0, &v)
	d.Release(rec)

	rec2 := d.Acquire()
	if rec2 != rec {
		t.Fatal("expected Release to make the record reusable")
	}
	if d.Len() != 1 {
		t.Fatalf("expected record reuse not to allocate a new one, got %d", d.Len())
	}
	d.Release(rec2)
}

func TestHazardDomain_RetiredProtectedPointerSurvivesScan(t *testing.T) {
	d := NewHazardDomain[int](2)
	rec := d.Acquire()
	defer d.Release(rec)

	v := 7
	rec.Set(0, &v)

	for i := 0; i < 100; i++ {
		rec.Retire(&v)
	}
	rec.scan()

	found := false
	for _, p := range rec.rlist {
		if p == &v {
			found = true
		}
	}
	if !found {
		t.Fatal("a still-protected pointer must survive a scan")
	}
}

func TestHazardDomain_ForceScanDropsUnprotected(t *testing.T) {
	d := NewHazardDomain[int](2)
	rec := d.Acquire()

	v := 9
	rec.Retire(&v)
	d.ForceScan()

	for _, p := range rec.rlist {
		if p == &v {
			t.Fatal("an unprotected retired pointer should not survive a force scan")
		}
	}
	d.Release(rec)
}

func TestHazardDomain_ConcurrentAcquireRelease(t *testing.T) {
	d := NewHazardDomain[int](3)
	const goroutines = 16
	const iterations = 500

	var wg sync.WaitGroup
	var totalRetires atomic.Int64
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				rec := d.Acquire()
				v := id*iterations + j
				rec.Set(0, &v)
				rec.Retire(&v)
				totalRetires.Add(1)
				d.Release(rec)
			}
		}(i)
	}

	wg.Wait()
	if totalRetires.Load() != goroutines*iterations {
		t.Fatalf("expected %d retires, got %d", goroutines*iterations, totalRetires.Load())
	}
}
