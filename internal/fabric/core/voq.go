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

import (
	"fabriclb/pkg/flowkey"
	"fabriclb/pkg/packet"
)

// flowVOQ buffers one flow's out-of-order phase-1 packets behind a single
// scheduled flush deadline (spec.md section 4.6.4): a later enqueue or a
// TAIL observation reschedules the same timer rather than arming another.
type flowVOQ struct {
	queued []packet.Packet
	timer  EventID
	armed  bool
}

// VOQ is the reordering-elimination buffer owned by a destination-ToR
// switch's CONWEAVE engine, one flowVOQ per flow.
type VOQ struct {
	sw    *Switch
	flows map[flowkey.Key]*flowVOQ
}

func newVOQ(sw *Switch) *VOQ {
	return &VOQ{sw: sw, flows: make(map[flowkey.Key]*flowVOQ)}
}

func (v *VOQ) get(key flowkey.Key) *flowVOQ {
	f, ok := v.flows[key]
	if !ok {
		f = &flowVOQ{}
		v.flows[key] = f
	}
	return f
}

// Enqueue buffers pkt for this flow instead of forwarding it immediately.
func (v *VOQ) Enqueue(key flowkey.Key, pkt packet.Packet) {
	f := v.get(key)
	f.queued = append(f.queued, pkt)
}

// HasPending reports whether key already has buffered packets awaiting a
// flush, used to decide whether a phase-0 arrival (TAIL or ordinary) should
// reschedule the flush.
func (v *VOQ) HasPending(key flowkey.Key) bool {
	f, ok := v.flows[key]
	return ok && len(f.queued) > 0
}

// ScheduleFlush (re)arms this flow's single flush event for absolute time
// deadline, cancelling whatever was previously armed.
func (v *VOQ) ScheduleFlush(key flowkey.Key, deadline int64, byTail bool) {
	f := v.get(key)
	if f.armed {
		v.sw.Sched.Cancel(f.timer)
	}
	f.armed = true
	wait := deadline - v.sw.Sched.Now()
	if wait < 0 {
		wait = 0
	}
	f.timer = v.sw.Sched.After(wait, func() { v.flush(key, deadline, byTail) })
}

func (v *VOQ) flush(key flowkey.Key, scheduledDeadline int64, byTail bool) {
	f, ok := v.flows[key]
	if !ok {
		return
	}
	f.armed = false
	actual := v.sw.Sched.Now()
	v.sw.Diagnostics.ObserveFlush(uint64(key), scheduledDeadline, actual, byTail)

	queued := f.queued
	f.queued = nil
	for _, pkt := range queued {
		egress := v.sw.flowECMP(pkt)
		v.sw.Send(pkt, egress, pkt.Priority, false)
	}

	if e, ok := v.sw.cwDest.entries[key]; ok {
		e.phase = 1
		e.reordering = false
	}
	if byTail {
		v.sw.Counters.VOQFlushByTail()
	} else {
		v.sw.Counters.VOQFlushByDeadline()
	}
}
