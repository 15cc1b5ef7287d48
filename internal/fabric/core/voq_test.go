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

import "testing"

// Invariant 7: packets dequeued from a VOQ forward in arrival order.
// Invariant 8: at most one flush event is ever pending per VOQ.
func TestVOQOrderingAndSingleFlush(t *testing.T) {
	topo := newTestTopology()
	sched := NewSimClock()
	sw, rec := newTestSwitch(ModeCONWEAVE, 2, topo, sched, &recordingCounters{})

	key := flowKeyFor(dataPacket(1, 1, 2, 1, 4000, 80))
	p0 := dataPacket(1, 1, 2, 1, 4000, 80)
	p1 := dataPacket(1, 1, 2, 1, 4000, 80)
	p1.Seq = 1
	p2 := dataPacket(1, 1, 2, 1, 4000, 80)
	p2.Seq = 2

	baseline := sched.Pending() // the CONWEAVE aging sweep is already armed.

	sw.voq.Enqueue(key, p0)
	sw.voq.ScheduleFlush(key, 1000, false)
	if sched.Pending() != baseline+1 {
		t.Fatalf("want 1 new pending scheduler event, got %d", sched.Pending()-baseline)
	}

	sw.voq.Enqueue(key, p1)
	sw.voq.ScheduleFlush(key, 2000, false) // reschedule, must not stack.
	if sched.Pending() != baseline+1 {
		t.Fatalf("want still 1 new pending scheduler event after reschedule, got %d", sched.Pending()-baseline)
	}
	sw.voq.Enqueue(key, p2)

	sched.RunUntil(2000)

	if len(rec.calls) != 3 {
		t.Fatalf("want 3 forwarded packets, got %d", len(rec.calls))
	}
	for i, want := range []uint64{0, 1, 2} {
		if rec.calls[i].Pkt.Seq != want {
			t.Fatalf("forward %d: want seq %d, got %d", i, want, rec.calls[i].Pkt.Seq)
		}
	}
}

func TestVOQFlushByDeadlineCounter(t *testing.T) {
	topo := newTestTopology()
	sched := NewSimClock()
	counters := &recordingCounters{}
	sw, _ := newTestSwitch(ModeCONWEAVE, 2, topo, sched, counters)

	key := flowKeyFor(dataPacket(1, 1, 2, 1, 4000, 80))
	sw.voq.Enqueue(key, dataPacket(1, 1, 2, 1, 4000, 80))
	sw.voq.ScheduleFlush(key, 1000, false)

	sched.RunUntil(1000)
	if counters.voqFlushByDeadline != 1 || counters.voqFlushByTail != 0 {
		t.Fatalf("want 1 deadline flush, 0 tail flush, got %d/%d", counters.voqFlushByDeadline, counters.voqFlushByTail)
	}
}

// S7: a VOQ scheduled to flush at t=100000 is pulled forward to t+1 by an
// arriving phase-0 TAIL at t=60000, and flushes by TAIL (not by deadline).
func TestVOQFlushByTailScenarioS7(t *testing.T) {
	topo := newTestTopology()
	sched := NewSimClock()
	counters := &recordingCounters{}
	sw, rec := newTestSwitch(ModeCONWEAVE, 2, topo, sched, counters)

	key := flowKeyFor(dataPacket(1, 1, 2, 1, 4000, 80))
	sw.voq.Enqueue(key, dataPacket(1, 1, 2, 1, 4000, 80))
	sw.voq.ScheduleFlush(key, 100000, false)

	sched.At(60000, func() {
		sw.voq.ScheduleFlush(key, 60001, true)
	})
	sched.RunUntil(60001)

	if len(rec.calls) != 1 {
		t.Fatalf("want the VOQ flushed by t=60001, got %d forwards", len(rec.calls))
	}
	if counters.voqFlushByTail != 1 || counters.voqFlushByDeadline != 0 {
		t.Fatalf("want 1 flush-by-TAIL and 0 flush-by-deadline, got %d/%d", counters.voqFlushByTail, counters.voqFlushByDeadline)
	}
	if sched.Now() != 60001 {
		t.Fatalf("want the flush to have fired at t=60001, scheduler now=%d", sched.Now())
	}
}

func TestVOQHasPendingClearsAfterFlush(t *testing.T) {
	topo := newTestTopology()
	sched := NewSimClock()
	sw, _ := newTestSwitch(ModeCONWEAVE, 2, topo, sched, nil)

	key := flowKeyFor(dataPacket(1, 1, 2, 1, 4000, 80))
	sw.voq.Enqueue(key, dataPacket(1, 1, 2, 1, 4000, 80))
	if !sw.voq.HasPending(key) {
		t.Fatal("want pending after enqueue")
	}
	sw.voq.ScheduleFlush(key, 100, false)
	sched.RunUntil(100)
	if sw.voq.HasPending(key) {
		t.Fatal("want no pending after flush")
	}
}
