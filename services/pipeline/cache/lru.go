// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides the bounded LRU used to memoize validation
// results across candidates and correction iterations. Keys are
// content-addressed (see Key) so identical artifacts validated by the
// same configuration never pay for a second run.
package cache

import (
	"container/list"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// LRU is a thread-safe fixed-size cache that evicts the least recently
// used entry at capacity.
//
// Description:
//
//	Backed by container/list plus a map for O(1) Get/Set/Delete.
//	Eviction is size-based only; entries never expire by age, because
//	a validation result for a given (content, validator, config)
//	triple stays correct forever.
//
// Thread Safety: All methods are safe for concurrent use.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List // Front = most recent, Back = least recent

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// DefaultCapacity is used when New gets a non-positive capacity.
const DefaultCapacity = 1024

// New creates an LRU with the given capacity.
//
// Inputs:
//   - capacity: Maximum number of entries. Non-positive means
//     DefaultCapacity.
//
// Outputs:
//   - *LRU[K, V]: The cache. Never nil.
//
// Thread Safety: The returned cache is safe for concurrent use.
func New[K comparable, V any](capacity int) *LRU[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LRU[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get retrieves a value and marks it most recently used.
//
// Outputs:
//   - V: The value (zero value if not found).
//   - bool: True if the key was found.
//
// Thread Safety: Safe for concurrent use.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		c.hits.Add(1)
		return elem.Value.(*entry[K, V]).value, true
	}

	c.misses.Add(1)
	var zero V
	return zero, false
}

// Set adds or updates an entry, evicting the least recently used entry
// when at capacity.
//
// Thread Safety: Safe for concurrent use.
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*entry[K, V]).value = value
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}

	elem := c.order.PushFront(&entry[K, V]{key: key, value: value})
	c.items[key] = elem
}

// Delete removes a key.
//
// Outputs:
//   - bool: True if the key was present.
//
// Thread Safety: Safe for concurrent use.
func (c *LRU[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
		return true
	}
	return false
}

// Purge clears all entries and resets the counters.
//
// Thread Safety: Safe for concurrent use.
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*list.Element, c.capacity)
	c.order.Init()
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}

// Len returns the current entry count.
//
// Thread Safety: Safe for concurrent use.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit/miss counts since creation or last purge.
//
// Thread Safety: Safe for concurrent use (lock-free).
func (c *LRU[K, V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Evictions returns the eviction count since creation or last purge.
// A high count relative to capacity means the cache is undersized for
// the candidate volume.
//
// Thread Safety: Safe for concurrent use (lock-free).
func (c *LRU[K, V]) Evictions() int64 {
	return c.evictions.Load()
}

// evictOldest removes the least recently used entry.
// Caller must hold the lock.
func (c *LRU[K, V]) evictOldest() {
	if elem := c.order.Back(); elem != nil {
		c.removeElement(elem)
		c.evictions.Add(1)
	}
}

// removeElement removes an element from both the list and the map.
// Caller must hold the lock.
func (c *LRU[K, V]) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*entry[K, V]).key)
}

// Key hashes its parts into a 64-bit content-addressed cache key.
// Parts are separated by a NUL byte so ("ab","c") and ("a","bc") hash
// differently.
func Key(parts ...string) uint64 {
	h := fnv.New64a()
	for i, part := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(part))
	}
	return h.Sum64()
}
