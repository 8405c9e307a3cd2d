// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

// Package ratestats maintains concurrency-safe per-sender sliding-window
// traffic counters. The rule engine consumes them through SenderMetadata;
// the pipeline records into them as packets arrive. Window maintenance
// (bucket rollover, eviction of idle senders) lives here, outside the
// decision core.
package ratestats

import (
	"sync"
	"time"
)

// windowCounter is a memory-efficient sliding window counter. Time is
// divided into buckets held in a circular buffer; the window count is the
// sum of all live buckets.
//
// Complexity: Increment O(1), Count O(k) for k buckets, memory O(k).
type windowCounter struct {
	mu         sync.Mutex
	buckets    []int64
	bucketSize time.Duration
	numBuckets int
	current    int
	lastUpdate time.Time
}

func newWindowCounter(windowSize time.Duration, numBuckets int, now time.Time) *windowCounter {
	if numBuckets <= 0 {
		numBuckets = 10
	}
	if windowSize <= 0 {
		windowSize = time.Minute
	}
	return &windowCounter{
		buckets:    make([]int64, numBuckets),
		bucketSize: windowSize / time.Duration(numBuckets),
		numBuckets: numBuckets,
		lastUpdate: now,
	}
}

// add records delta in the bucket covering now.
func (w *windowCounter) add(delta int64, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.advance(now)
	w.buckets[w.current] += delta
}

// count returns the sum of all buckets still inside the window.
func (w *windowCounter) count(now time.Time) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.advance(now)

	var total int64
	for _, c := range w.buckets {
		total += c
	}
	return total
}

// advance rotates the circular buffer forward, clearing expired buckets.
// Must be called with the lock held.
func (w *windowCounter) advance(now time.Time) {
	elapsed := now.Sub(w.lastUpdate)
	bucketsElapsed := int(elapsed / w.bucketSize)
	if bucketsElapsed <= 0 {
		return
	}

	if bucketsElapsed >= w.numBuckets {
		for i := range w.buckets {
			w.buckets[i] = 0
		}
		w.current = 0
	} else {
		for i := 0; i < bucketsElapsed; i++ {
			w.current = (w.current + 1) % w.numBuckets
			w.buckets[w.current] = 0
		}
	}

	w.lastUpdate = now
}

// windowStore manages windowCounters keyed by sender id.
type windowStore struct {
	mu         sync.RWMutex
	counters   map[string]*windowCounter
	windowSize time.Duration
	numBuckets int
	maxKeys    int
}

func newWindowStore(windowSize time.Duration, numBuckets, maxKeys int) *windowStore {
	return &windowStore{
		counters:   make(map[string]*windowCounter),
		windowSize: windowSize,
		numBuckets: numBuckets,
		maxKeys:    maxKeys,
	}
}

func (s *windowStore) add(key string, delta int64, now time.Time) {
	s.mu.Lock()
	counter, ok := s.counters[key]
	if !ok {
		if s.maxKeys > 0 && len(s.counters) >= s.maxKeys {
			s.evictOne()
		}
		counter = newWindowCounter(s.windowSize, s.numBuckets, now)
		s.counters[key] = counter
	}
	s.mu.Unlock()

	counter.add(delta, now)
}

func (s *windowStore) count(key string, now time.Time) int64 {
	s.mu.RLock()
	counter, ok := s.counters[key]
	s.mu.RUnlock()

	if !ok {
		return 0
	}
	return counter.count(now)
}

// cleanupInactive drops counters whose window is empty. Returns the number
// removed.
func (s *windowStore) cleanupInactive(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, counter := range s.counters {
		if counter.count(now) == 0 {
			delete(s.counters, key)
			removed++
		}
	}
	return removed
}

func (s *windowStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.counters)
}

// evictOne removes an arbitrary counter when at capacity. Must be called
// with the write lock held.
func (s *windowStore) evictOne() {
	for key := range s.counters {
		delete(s.counters, key)
		return
	}
}
