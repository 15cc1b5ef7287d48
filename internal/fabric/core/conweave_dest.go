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

// cwDestEntry is the CONWEAVE destination-ToR per-flow record (spec.md
// section 3), keyed by the symmetric (destination-perspective) flow key.
type cwDestEntry struct {
	key          flowkey.Key
	lastActive   int64
	epoch        uint32
	phase        uint32
	phase0TxTime int64
	phase0RxTime int64
	phase0Cache  bool
	tailTime     int64
	reordering   bool
}

type conweaveDestState struct {
	entries map[flowkey.Key]*cwDestEntry
}

func newConweaveDestState() *conweaveDestState {
	return &conweaveDestState{entries: make(map[flowkey.Key]*cwDestEntry)}
}

func (s *conweaveDestState) ageOut(now, maxAge int64) {
	for k, e := range s.entries {
		if now-e.lastActive > maxAge && !e.reordering {
			delete(s.entries, k)
		}
	}
}

// conweaveDestOnData implements spec.md section 4.6.4.
func (sw *Switch) conweaveDestOnData(pkt packet.Packet, now int64, srcToR uint32) Decision {
	data := pkt.Data
	key := symmetricFlowKeyFor(pkt)
	e, existed := sw.cwDest.entries[key]

	if existed && data.Epoch < e.epoch {
		// Stale packet from a superseded epoch: deliver best-effort,
		// entry state and any armed VOQ are left untouched.
		return Decision{Forwards: []Forward{sw.conweaveHostForward(pkt)}}
	}

	if !existed || data.Epoch > e.epoch {
		if !existed {
			e = &cwDestEntry{key: key}
			sw.cwDest.entries[key] = e
		}
		e.epoch = data.Epoch
		if data.Flag == packet.FlagTail {
			e.phase = 1
		} else {
			e.phase = 0
		}
		e.phase0Cache = false
		e.reordering = false
		e.tailTime = 0
	}

	outOfOrder := data.Phase > e.phase

	// Phase0 bookkeeping is updated before the deadline math below so that
	// a phase-0 arrival reschedules using its OWN tx/tail timestamps, not
	// whatever the previous packet on this flow left behind.
	e.lastActive = now
	if data.Phase == 0 {
		e.phase0TxTime = data.TxTimeNs
		e.phase0RxTime = now
		e.phase0Cache = true
	}
	if data.Phase == 1 || data.Flag == packet.FlagTail {
		e.tailTime = data.TailTimeNs
	}

	switch {
	case outOfOrder:
		sw.voq.Enqueue(key, pkt)
		e.reordering = true
		sw.Counters.OutOfOrderEnqueued()
		sw.Diagnostics.ObserveRouteEvent(uint64(key), data.Epoch, uint32(data.Path), now, "out_of_order")

		var deadline int64
		if e.phase0Cache {
			gap := e.tailTime - e.phase0TxTime
			if gap < 0 {
				gap = 0
			}
			deadline = e.phase0RxTime + gap + sw.Cfg.ExtraVOQFlushTime.Nanoseconds()
		} else {
			deadline = now + sw.Cfg.DefaultVOQWait.Nanoseconds() + sw.Cfg.ExtraVOQFlushTime.Nanoseconds()
		}
		sw.voq.ScheduleFlush(key, deadline, false)

	case data.Phase == 0 && sw.voq.HasPending(key):
		// Any phase-0 arrival while older phase-1 packets are still
		// buffered reschedules the same flush: a TAIL means the old
		// path is fully drained, so pull the flush in immediately; an
		// ordinary phase-0 packet only tightens the out-of-order case's
		// own gap-based estimate with this packet's fresher timestamps.
		if data.Flag == packet.FlagTail {
			sw.voq.ScheduleFlush(key, now+1, true)
		} else {
			gap := e.tailTime - e.phase0TxTime
			if gap < 0 {
				gap = 0
			}
			deadline := now + gap + sw.Cfg.ExtraVOQFlushTime.Nanoseconds()
			sw.voq.ScheduleFlush(key, deadline, false)
		}
	}

	var forwards []Forward
	if !outOfOrder {
		forwards = append(forwards, sw.conweaveHostForward(pkt))
	}
	forwards = append(forwards, sw.conweaveReplyAndNotify(pkt, now, srcToR)...)

	return Decision{Forwards: forwards, Enqueued: outOfOrder}
}

// conweaveHostForward hands the DATA packet onward to its actual
// destination (the host NIC), the same way CONGA's destination ToR strips
// its tag and falls back to plain ECMP for the final hop.
func (sw *Switch) conweaveHostForward(pkt packet.Packet) Forward {
	stripped := pkt
	stripped.Data = nil
	egress := sw.flowECMP(stripped)
	return Forward{Packet: stripped, Egress: egress, Priority: pkt.Priority}
}

// conweaveReplyAndNotify builds the REPLY (answering an INIT/TAIL) and, on
// an ECN-marked packet, the NOTIFY control packets destined back at srcToR
// (spec.md section 4.6.3, 4.6.4).
func (sw *Switch) conweaveReplyAndNotify(pkt packet.Packet, now int64, srcToR uint32) []Forward {
	data := pkt.Data
	var out []Forward

	if data.Flag == packet.FlagInit || data.Flag == packet.FlagTail {
		reply := packet.ReverseFourTuple(pkt, packet.ProtoNACK)
		reply.Reply = &packet.ReplyTag{Flag: data.Flag, Epoch: data.Epoch, Phase: 0}
		egress := sw.flowECMP(reply)
		out = append(out, Forward{Packet: reply, Egress: egress, Priority: reply.Priority, DummyInDev: true})
	}

	if pkt.ECNBits.CongestionExperienced() {
		notify := packet.ReverseFourTuple(pkt, packet.ProtoNACK)
		notify.Notify = &packet.NotifyTag{Path: data.Path}
		egress := sw.flowECMP(notify)
		out = append(out, Forward{Packet: notify, Egress: egress, Priority: notify.Priority, DummyInDev: true})
		sw.Counters.NotifySent()
		sw.Diagnostics.ObserveRouteEvent(uint64(symmetricFlowKeyFor(pkt)), data.Epoch, uint32(notify.Notify.Path), now, "notify")
	}

	return out
}
