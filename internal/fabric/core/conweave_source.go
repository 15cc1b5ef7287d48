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
	"math"

	"fabriclb/pkg/flowkey"
	"fabriclb/pkg/packet"
	"fabriclb/pkg/path"
)

// deadlineInfinite marks a reply-deadline that can never be "passed".
const deadlineInfinite = math.MaxInt64

// cwSourceEntry is the CONWEAVE source-ToR per-flow record (spec.md
// section 3).
type cwSourceEntry struct {
	key           flowkey.Key
	stabilized    bool
	lastActive    int64
	replyDeadline int64
	epoch         uint32
	phase         uint32 // wire phase to stamp on the NEXT ordinary packet
	path          path.ID
	tailTime      int64
}

type conweaveSourceState struct {
	entries map[flowkey.Key]*cwSourceEntry
}

func newConweaveSourceState() *conweaveSourceState {
	return &conweaveSourceState{entries: make(map[flowkey.Key]*cwSourceEntry)}
}

func (s *conweaveSourceState) ageOut(now, maxAge int64) {
	for k, e := range s.entries {
		if now-e.lastActive > maxAge {
			delete(s.entries, k)
		}
	}
}

// routeConweave implements spec.md section 4.6 at the top level: intra-pod
// and non-DATA traffic fall through to ECMP; inter-pod DATA dispatches to
// the source-ToR, intermediate, or destination-ToR handler.
func (sw *Switch) routeConweave(pkt packet.Packet, now int64) Decision {
	if sw.isIntraPod(pkt) {
		return sw.routeECMPOnly(pkt)
	}
	srcToR := sw.Topo.ToRFor(pkt.SrcIP)
	dstToR := sw.Topo.ToRFor(pkt.DstIP)

	switch {
	case pkt.Data == nil && sw.ToRID == srcToR:
		return sw.conweaveSourceOnData(pkt, now, dstToR)
	case pkt.Data != nil && sw.ToRID == dstToR:
		return sw.conweaveDestOnData(pkt, now, srcToR)
	case pkt.Data != nil:
		return sw.conweaveIntermediate(pkt)
	default:
		panic("CONWEAVE tag missing at non-source switch")
	}
}

func (sw *Switch) conweaveIntermediate(pkt packet.Packet) Decision {
	hop := pkt.Data.Hop + 1
	egress := uint32(path.Decode(pkt.Data.Path, int(hop)))
	tagged := pkt
	tag := *pkt.Data
	tag.Hop = hop
	tagged.Data = &tag
	return Decision{Forwards: []Forward{{Packet: tagged, Egress: egress, Priority: pkt.Priority}}}
}

// conweaveSourceOnData implements spec.md section 4.6.1.
func (sw *Switch) conweaveSourceOnData(pkt packet.Packet, now int64, dstToR uint32) Decision {
	key := flowKeyFor(pkt)
	e, existed := sw.cwSource.entries[key]
	newConnection := !existed
	if !existed {
		e = &cwSourceEntry{key: key, replyDeadline: deadlineInfinite}
		sw.cwSource.entries[key] = e
	}

	expired := newConnection || now-e.lastActive > sw.Cfg.TxExpiryTime.Nanoseconds()
	stabilized := !expired && e.stabilized
	replyTimeout := !expired && !stabilized && e.replyDeadline != deadlineInfinite && now > e.replyDeadline

	var flag packet.ConweaveFlag
	var sendPath path.ID
	var sendPhase uint32

	switch {
	case expired || stabilized:
		e.epoch++
		e.phase = 0
		e.stabilized = false
		e.replyDeadline = now + sw.Topo.BaseRTT(dstToR) + sw.Cfg.ExtraReplyDeadline.Nanoseconds()
		e.path = sw.conweavePathChoice(dstToR, newConnection)
		e.tailTime = 0
		if !newConnection {
			sw.Counters.Reroute()
			sw.Diagnostics.ObserveRouteEvent(uint64(key), e.epoch, uint32(e.path), now, "reroute")
		}
		flag = packet.FlagInit
		sendPath = e.path
		sendPhase = 0

	case replyTimeout:
		sw.Counters.ReplyTimeout()
		sw.Counters.Reroute()
		flag = packet.FlagTail
		sendPath = e.path // TAIL rides the CURRENT (old) path.
		sendPhase = 0      // TAIL is the last phase-0 packet of the epoch.
		e.tailTime = now
		e.replyDeadline = deadlineInfinite
		e.path = sw.conweavePathChoice(dstToR, false) // subsequent packets.
		e.phase = 1                                    // subsequent packets.
		sw.Diagnostics.ObserveRouteEvent(uint64(key), e.epoch, uint32(e.path), now, "reroute")

	default:
		flag = packet.FlagData
		sendPath = e.path
		sendPhase = e.phase
	}

	var tailStamp int64
	if flag == packet.FlagTail || sendPhase == 1 {
		tailStamp = e.tailTime
	}

	e.lastActive = now
	egress := outPortOfHop0(sendPath)
	tagged := pkt
	tagged.Data = &packet.DataTag{
		Path: sendPath, Hop: 0, Epoch: e.epoch, Phase: sendPhase,
		TxTimeNs: now, TailTimeNs: tailStamp, Flag: flag,
	}
	return Decision{Forwards: []Forward{{Packet: tagged, Egress: egress, Priority: pkt.Priority}}}
}

// conweavePathChoice implements spec.md section 4.6.1's PATH-CHOICE.
func (sw *Switch) conweavePathChoice(dstToR uint32, newConnection bool) path.ID {
	paths := sw.Topo.RoutingPaths(dstToR)
	if len(paths) == 0 {
		panic("routing miss: no paths toward destination ToR")
	}
	if newConnection || !sw.Cfg.PathAwareRerouting {
		return paths[sw.rng.Intn(len(paths))]
	}
	now := sw.Sched.Now()
	s1 := paths[sw.rng.Intn(len(paths))]
	s2 := paths[sw.rng.Intn(len(paths))]
	if sw.blacklist.IsGood(s1, now) {
		return s1
	}
	if sw.blacklist.IsGood(s2, now) {
		return s2
	}
	return s1
}

// conweaveSourceOnReply implements spec.md section 4.6.2.
func (sw *Switch) conweaveSourceOnReply(reply packet.ReplyTag, key flowkey.Key) {
	e, ok := sw.cwSource.entries[key]
	if !ok || reply.Epoch != e.epoch {
		return // stale/unknown: silently consumed.
	}
	switch reply.Flag {
	case packet.FlagTail:
		// CLEAR: the TAIL's own wire phase is always 0, but by the time
		// its REPLY returns the entry has already moved to phase 1 for
		// subsequent packets, so this case does not re-check phase.
		e.stabilized = true
		e.replyDeadline = deadlineInfinite
	case packet.FlagInit:
		if e.phase != 0 {
			return
		}
		if sw.Sched.Now() <= e.replyDeadline {
			e.stabilized = true
			e.replyDeadline = deadlineInfinite
			sw.Counters.ReplyTimely()
		}
	}
}

// conweaveSourceOnNotify implements spec.md section 4.6.3.
func (sw *Switch) conweaveSourceOnNotify(n packet.NotifyTag, now int64) {
	sw.blacklist.Insert(n.Path, now+sw.Cfg.PathPauseTime.Nanoseconds())
}

// routeConweaveControl handles REPLY/NOTIFY packets: only the addressed
// ToR (the original source ToR) consumes them; any other switch they pass
// through forwards them via plain ECMP (spec.md section 4.6, "Intra-pod
// traffic, pure (N)ACKs, and control at non-ToR switches use ECMP").
func (sw *Switch) routeConweaveControl(pkt packet.Packet, now int64) Decision {
	targetToR := sw.Topo.ToRFor(pkt.DstIP)
	if sw.Role == RoleIntermediate || sw.ToRID != targetToR {
		return sw.routeECMPOnly(pkt)
	}
	key := symmetricFlowKeyFor(pkt) // recover the original source-ToR key.
	if pkt.Reply != nil {
		sw.conweaveSourceOnReply(*pkt.Reply, key)
	}
	if pkt.Notify != nil {
		sw.conweaveSourceOnNotify(*pkt.Notify, now)
	}
	return Decision{}
}
