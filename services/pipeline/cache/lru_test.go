// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestLRU_GetSet(t *testing.T) {
	c := New[string, int](3)

	c.Set("a", 1)
	c.Set("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) should miss")
	}

	c.Set("a", 10)
	if v, _ := c.Get("a"); v != 10 {
		t.Errorf("Set should overwrite: got %d, want 10", v)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a is now most recent
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should have survived eviction")
	}
	if c.Evictions() != 1 {
		t.Errorf("Evictions = %d, want 1", c.Evictions())
	}
}

func TestLRU_Delete(t *testing.T) {
	c := New[string, int](2)
	c.Set("a", 1)

	if !c.Delete("a") {
		t.Error("Delete(a) should report true")
	}
	if c.Delete("a") {
		t.Error("second Delete(a) should report false")
	}
	if _, ok := c.Get("a"); ok {
		t.Error("a should be gone after Delete")
	}
}

func TestLRU_PurgeResetsStats(t *testing.T) {
	c := New[string, int](2)
	c.Set("a", 1)
	c.Get("a")
	c.Get("missing")

	c.Purge()

	if c.Len() != 0 {
		t.Errorf("Len after Purge = %d, want 0", c.Len())
	}
	hits, misses := c.Stats()
	if hits != 0 || misses != 0 {
		t.Errorf("Stats after Purge = %d, %d; want 0, 0", hits, misses)
	}
}

func TestLRU_Stats(t *testing.T) {
	c := New[string, int](4)
	c.Set("a", 1)

	c.Get("a")
	c.Get("a")
	c.Get("missing")

	hits, misses := c.Stats()
	if hits != 2 || misses != 1 {
		t.Errorf("Stats = %d hits, %d misses; want 2, 1", hits, misses)
	}
}

func TestLRU_DefaultCapacity(t *testing.T) {
	c := New[int, int](0)
	for i := 0; i < DefaultCapacity; i++ {
		c.Set(i, i)
	}
	if c.Len() != DefaultCapacity {
		t.Errorf("Len = %d, want %d", c.Len(), DefaultCapacity)
	}
	if c.Evictions() != 0 {
		t.Errorf("Evictions = %d, want 0", c.Evictions())
	}
}

func TestLRU_Concurrent(t *testing.T) {
	c := New[int, int](64)
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := (g*200 + i) % 100
				c.Set(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 64 {
		t.Errorf("Len = %d exceeds capacity 64", c.Len())
	}
}

func TestKey_SeparatorMatters(t *testing.T) {
	if Key("ab", "c") == Key("a", "bc") {
		t.Error("part boundaries must affect the key")
	}
	if Key("a", "b") != Key("a", "b") {
		t.Error("Key must be deterministic")
	}
}

func TestKey_Distribution(t *testing.T) {
	seen := make(map[uint64]bool)
	for i := 0; i < 1000; i++ {
		seen[Key("content", fmt.Sprintf("validator-%d", i))] = true
	}
	if len(seen) != 1000 {
		t.Errorf("got %d distinct keys from 1000 inputs", len(seen))
	}
}
