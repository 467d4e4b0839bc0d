package concur

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestCollector_RegisterDeregister(t *testing.T) {
	c := NewCollector()
	ts := &ThreadState{}

	if err := c.RegisterThread(ts); err != nil {
		t.Fatalf("RegisterThread: %v", err)
	}
	if err := c.RegisterThread(ts); err == nil {
		t.Fatal("expected error registering an already-registered ThreadState")
	}
	if !IsContractViolation(c.RegisterThread(ts)) {
		t.Fatal("expected a contract violation error")
	}

	if err := c.DeregisterThread(ts); err != nil {
		t.Fatalf("DeregisterThread: %v", err)
	}
	if err := c.DeregisterThread(ts); err == nil {
		t.Fatal("expected error deregistering an unregistered ThreadState")
	}
}

func TestCollector_RetireIsEventuallyReleased(t *testing.T) {
	c := NewCollector()
	ts := &ThreadState{}
	if err := c.RegisterThread(ts); err != nil {
		t.Fatal(err)
	}

	var released atomic.Bool
	c.Retire(func() { released.Store(true) })

	for i := 0; i < 4; i++ {
		if err := c.QuiescentState(ts); err != nil {
			t.Fatal(err)
		}
	}

	if !released.Load() {
		t.Fatal("retired object was never released after repeated quiescent states")
	}
}

func TestCollector_OfflineDoesNotBlockOthers(t *testing.T) {
	c := NewCollector()
	blocked := &ThreadState{}
	active := &ThreadState{}

	if err := c.RegisterThread(blocked); err != nil {
		t.Fatal(err)
	}
	if err := c.RegisterThread(active); err != nil {
		t.Fatal(err)
	}
	if err := c.Offline(blocked); err != nil {
		t.Fatal(err)
	}

	var released atomic.Bool
	c.Retire(func() { released.Store(true) })

	for i := 0; i < 4; i++ {
		if err := c.QuiescentState(active); err != nil {
			t.Fatal(err)
		}
	}

	if !released.Load() {
		t.Fatal("an offline thread should not hold up reclamation")
	}

	if err := c.Online(blocked); err != nil {
		t.Fatal(err)
	}
	if err := c.DeregisterThread(blocked); err != nil {
		t.Fatal(err)
	}
	if err := c.DeregisterThread(active); err != nil {
		t.Fatal(err)
	}
}

func TestCollector_NoUseAfterRetire(t *testing.T) {
	c := NewCollector()
	const threads = 8
	const perThread = 2000

	reaper := &ThreadState{}
	if err := c.RegisterThread(reaper); err != nil {
		t.Fatal(err)
	}

	var freed atomic.Int64
	var wg sync.WaitGroup
	wg.Add(threads)

	for i := 0; i < threads; i++ {
		go func() {
			defer wg.Done()
			ts := &ThreadState{}
			if err := c.RegisterThread(ts); err != nil {
				t.Error(err)
				return
			}
			defer func() {
				if err := c.DeregisterThread(ts); err != nil {
					t.Error(err)
				}
			}()

			for j := 0; j < perThread; j++ {
				c.Retire(func() { freed.Add(1) })
				if j%16 == 0 {
					if err := c.QuiescentState(ts); err != nil {
						t.Error(err)
						return
					}
				}
			}
			if err := c.QuiescentState(ts); err != nil {
				t.Error(err)
			}
		}()
	}

	wg.Wait()

	// reaper has not passed a quiescent point since registering, so its
	// epoch precedes every retirement and nothing may have been released.
	if freed.Load() != 0 {
		t.Fatalf("%d objects released while reaper still pinned their epoch", freed.Load())
	}

	for i := 0; i < 8; i++ {
		if err := c.QuiescentState(reaper); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.DeregisterThread(reaper); err != nil {
		t.Fatal(err)
	}

	if freed.Load() != threads*perThread {
		t.Fatalf("expected %d objects released, got %d", threads*perThread, freed.Load())
	}
}
