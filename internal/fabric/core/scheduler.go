// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import "container/heap"

// EventID identifies a scheduled callback so it can be cancelled later.
type EventID uint64

// Scheduler is the simulator's scheduling primitive (section 9: "express
// all timed actions through the simulator's scheduling primitive; do not
// use wall-clock or thread-based timers"). It is an external collaborator
// in production (the ns-3-style event scheduler owns real simulated time);
// this package only depends on the interface, plus ships a reference
// implementation used by tests to drive scenarios deterministically.
//
// Events scheduled for the same absolute time fire in FIFO order of
// scheduling (spec.md section 5).
type Scheduler interface {
	Now() int64
	At(t int64, fn func()) EventID
	After(d int64, fn func()) EventID
	Cancel(id EventID)
}

// pendingEvent is one entry of the reference scheduler's priority queue.
type pendingEvent struct {
	t       int64
	seq     uint64
	id      EventID
	fn      func()
	cancelled bool
}

type eventHeap []*pendingEvent

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].t != h[j].t {
		return h[i].t < h[j].t
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)   { *h = append(*h, x.(*pendingEvent)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// SimClock is a deterministic, single-threaded reference Scheduler. It
// never touches wall-clock time; Run/RunUntil advance virtual time strictly
// by popping the earliest-scheduled pending event.
type SimClock struct {
	now     int64
	seq     uint64
	nextID  EventID
	heap    eventHeap
	byID    map[EventID]*pendingEvent
}

// NewSimClock returns a SimClock starting at virtual time 0.
func NewSimClock() *SimClock {
	return &SimClock{byID: make(map[EventID]*pendingEvent)}
}

func (c *SimClock) Now() int64 { return c.now }

func (c *SimClock) At(t int64, fn func()) EventID {
	c.nextID++
	id := c.nextID
	c.seq++
	e := &pendingEvent{t: t, seq: c.seq, id: id, fn: fn}
	heap.Push(&c.heap, e)
	c.byID[id] = e
	return id
}

func (c *SimClock) After(d int64, fn func()) EventID {
	return c.At(c.now+d, fn)
}

func (c *SimClock) Cancel(id EventID) {
	if e, ok := c.byID[id]; ok {
		e.cancelled = true
		delete(c.byID, id)
	}
}

// Step pops and fires the single earliest pending event, advancing Now to
// its scheduled time. Returns false if there is nothing pending.
func (c *SimClock) Step() bool {
	for c.heap.Len() > 0 {
		e := heap.Pop(&c.heap).(*pendingEvent)
		if e.cancelled {
			continue
		}
		delete(c.byID, e.id)
		c.now = e.t
		e.fn()
		return true
	}
	return false
}

// RunUntil drains events with scheduled time <= deadline, then advances Now
// to deadline even if nothing fired.
func (c *SimClock) RunUntil(deadline int64) {
	for c.heap.Len() > 0 && c.heap[0].t <= deadline {
		if c.heap[0].cancelled {
			heap.Pop(&c.heap)
			continue
		}
		c.Step()
	}
	if c.now < deadline {
		c.now = deadline
	}
}

// Pending reports how many non-cancelled events remain scheduled.
func (c *SimClock) Pending() int { return len(c.byID) }
