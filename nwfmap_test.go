package concur

import (
	"fmt"
	"sync"
	"testing"
)

func newTestNWFMap[V comparable](t *testing.T) *NWFMap[string, V] {
	t.Helper()
	gc := NewCollector()
	return NewNWFMap[string, V](gc, FNV1a64)
}

func TestNWFMap_PutGet(t *testing.T) {
	m := newTestNWFMap[int](t)

	if _, ok := m.Get("a"); ok {
		t.Fatal("expected no value for missing key")
	}

	m.Put("a", 1)
	v, ok := m.Get("a")
	if !ok || v != 1 {
		t.Fatalf("got (%v, %v), want (1, true)", v, ok)
	}

	m.Put("a", 2)
	v, ok = m.Get("a")
	if !ok || v != 2 {
		t.Fatalf("overwrite failed, got (%v, %v)", v, ok)
	}
}

func TestNWFMap_PutIfAbsent(t *testing.T) {
	m := newTestNWFMap[int](t)

	if !m.PutIfAbsent("a", 1) {
		t.Fatal("expected PutIfAbsent to succeed on an absent key")
	}
	if m.PutIfAbsent("a", 2) {
		t.Fatal("expected PutIfAbsent to fail on a present key")
	}
	v, _ := m.Get("a")
	if v != 1 {
		t.Fatalf("PutIfAbsent should not have overwritten the value, got %d", v)
	}
}

func TestNWFMap_CAS(t *testing.T) {
	m := newTestNWFMap[int](t)
	m.Put("a", 1)

	if m.CAS("a", 2, 3) {
		t.Fatal("CAS should fail when the expected value doesn't match")
	}
	if !m.CAS("a", 1, 3) {
		t.Fatal("CAS should succeed when the expected value matches")
	}
	v, _ := m.Get("a")
	if v != 3 {
		t.Fatalf("got %d, want 3", v)
	}
}

func TestNWFMap_DelAndDelIf(t *testing.T) {
	m := newTestNWFMap[int](t)
	m.Put("a", 1)

	if m.DelIf("a", 2) {
		t.Fatal("DelIf should fail on value mismatch")
	}
	if !m.DelIf("a", 1) {
		t.Fatal("DelIf should succeed on matching value")
	}
	if m.Has("a") {
		t.Fatal("key should be gone after DelIf")
	}
	if m.Del("a") {
		t.Fatal("Del on an absent key should report no removal")
	}

	m.Put("b", 2)
	if !m.Del("b") {
		t.Fatal("Del should remove an existing key")
	}
}

func TestNWFMap_SizeTracksPutsAndDeletes(t *testing.T) {
	m := newTestNWFMap[int](t)
	for i := 0; i < 50; i++ {
		m.Put(fmt.Sprintf("k%d", i), i)
	}
	if m.Size() != 50 {
		t.Fatalf("got size %d, want 50", m.Size())
	}
	for i := 0; i < 25; i++ {
		m.Del(fmt.Sprintf("k%d", i))
	}
	if m.Size() != 25 {
		t.Fatalf("got size %d, want 25", m.Size())
	}
}

func TestNWFMap_ResizeKeepsAllEntries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinTableSize = 8
	gc := NewCollector()
	m := NewNWFMapWithConfig[string, int](gc, FNV1a64, cfg)

	const n = 5000
	for i := 0; i < n; i++ {
		m.Put(fmt.Sprintf("key-%d", i), i)
	}

	for i := 0; i < n; i++ {
		v, ok := m.Get(fmt.Sprintf("key-%d", i))
		if !ok || v != i {
			t.Fatalf("key-%d: got (%v, %v), want (%d, true)", i, v, ok, i)
		}
	}
	if m.Size() != n {
		t.Fatalf("got size %d, want %d", m.Size(), n)
	}
}

func TestNWFMap_Iterator(t *testing.T) {
	m := newTestNWFMap[int](t)
	want := map[string]int{}
	for i := 0; i < 200; i++ {
		k := fmt.Sprintf("k%d", i)
		m.Put(k, i)
		want[k] = i
	}

	got := map[string]int{}
	it := m.Iterator()
	for it.Next() {
		got[it.Key()] = it.Value()
	}

	if len(got) != len(want) {
		t.Fatalf("iterator saw %d entries, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("iterator entry %q = %d, want %d", k, got[k], v)
		}
	}
}

func TestNWFMap_ConcurrentStress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinTableSize = 8
	gc := NewCollector()
	m := NewNWFMapWithConfig[int, int](gc, HashInt, cfg)

	const goroutines = 16
	const perGoroutine = 2000

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for g := 0; g < goroutines; g++ {
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				key := base*perGoroutine + i
				m.Put(key, key)
				if v, ok := m.Get(key); !ok || v != key {
					t.Errorf("key %d: got (%v, %v)", key, v, ok)
				}
				m.CAS(key, key, key+1)
			}
		}(g)
	}

	wg.Wait()

	for g := 0; g < goroutines; g++ {
		for i := 0; i < perGoroutine; i++ {
			key := g*perGoroutine + i
			v, ok := m.Get(key)
			if !ok || v != key+1 {
				t.Errorf("key %d: got (%v, %v), want (%d, true)", key, v, ok, key+1)
			}
		}
	}
}
