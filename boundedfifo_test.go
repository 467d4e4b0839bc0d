package concur

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestBoundedFIFO_CapacityRoundsToPowerOfTwo(t *testing.T) {
	f := NewBoundedFIFO[int](5)
	if f.Capacity() != 8 {
		t.Fatalf("got capacity %d, want 8", f.Capacity())
	}

	f2 := NewBoundedFIFO[int](0)
	if f2.Capacity() != DefaultBoundedFIFOCapacity {
		t.Fatalf("got capacity %d, want default %d", f2.Capacity(), DefaultBoundedFIFOCapacity)
	}

	f3 := NewBoundedFIFO[int](1)
	if f3.Capacity() != 2 {
		t.Fatalf("got capacity %d, want minimum 2", f3.Capacity())
	}
}

func TestBoundedFIFO_PushPopOrder(t *testing.T) {
	f := NewBoundedFIFO[int](8)

	for i := 0; i < 8; i++ {
		if !f.Push(i) {
			t.Fatalf("Push(%d) unexpectedly failed", i)
		}
	}
	if f.Push(99) {
		t.Fatal("Push should fail once the queue is full")
	}

	for i := 0; i < 8; i++ {
		v, ok := f.Pop()
		if !ok || v != i {
			t.Fatalf("Pop() = (%d, %v), want (%d, true)", v, ok, i)
		}
	}
	if _, ok := f.Pop(); ok {
		t.Fatal("Pop should fail once the queue is empty")
	}
}

func TestBoundedFIFO_CapacityEightCycleRepeatedly(t *testing.T) {
	f := NewBoundedFIFO[int](8)

	for cycle := 0; cycle < 1000; cycle++ {
		for i := 0; i < 8; i++ {
			if !f.Push(cycle*8 + i) {
				t.Fatalf("cycle %d: Push(%d) unexpectedly failed", cycle, i)
			}
		}
		if f.Push(-1) {
			t.Fatalf("cycle %d: Push should fail when full", cycle)
		}
		for i := 0; i < 8; i++ {
			v, ok := f.Pop()
			if !ok || v != cycle*8+i {
				t.Fatalf("cycle %d: Pop() = (%d, %v), want (%d, true)", cycle, v, ok, cycle*8+i)
			}
		}
		if _, ok := f.Pop(); ok {
			t.Fatalf("cycle %d: Pop should fail when empty", cycle)
		}
	}
}

func TestBoundedFIFO_ConcurrentProducersConsumers(t *testing.T) {
	f := NewBoundedFIFO[int](64)

	const producers = 8
	const perProducer = 2000
	const total = producers * perProducer

	var produced atomic.Int64
	var consumed atomic.Int64
	var sum atomic.Int64

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for !f.Push(1) {
				}
				produced.Add(1)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		for consumed.Load() < total {
			if v, ok := f.Pop(); ok {
				sum.Add(int64(v))
				consumed.Add(1)
			}
		}
		close(done)
	}()

	wg.Wait()
	<-done

	if produced.Load() != total {
		t.Fatalf("produced %d, want %d", produced.Load(), total)
	}
	if consumed.Load() != total {
		t.Fatalf("consumed %d, want %d", consumed.Load(), total)
	}
	if sum.Load() != total {
		t.Fatalf("sum %d, want %d", sum.Load(), total)
	}
}
