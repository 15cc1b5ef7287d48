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
	"fabriclb/pkg/packet"
	"fabriclb/pkg/path"
)

// letflowState is per-switch LETFLOW memory: just the flowlet table, no
// congestion tables (spec.md section 4.5, "like CONGA but without tables
// or CE tagging").
type letflowState struct {
	flowlets *FlowletTable
}

func newLetflowState() *letflowState {
	return &letflowState{flowlets: newFlowletTable()}
}

// routeLetflow implements spec.md section 4.5.
func (sw *Switch) routeLetflow(pkt packet.Packet, now int64) Decision {
	if sw.isIntraPod(pkt) {
		return sw.routeECMPOnly(pkt)
	}
	srcToR := sw.Topo.ToRFor(pkt.SrcIP)
	dstToR := sw.Topo.ToRFor(pkt.DstIP)

	switch {
	case sw.ToRID == srcToR:
		return sw.letflowSourceToR(pkt, now, dstToR)
	case sw.ToRID == dstToR:
		return sw.letflowDestToR(pkt)
	default:
		return sw.letflowIntermediate(pkt)
	}
}

func (sw *Switch) letflowSourceToR(pkt packet.Packet, now int64, dstToR uint32) Decision {
	key := flowKeyFor(pkt)
	var chosen path.ID
	if e, ok := sw.letflow.flowlets.Get(key); ok && now-e.LastActive <= sw.Cfg.FlowletTimeout.Nanoseconds() {
		chosen = e.Path
	} else {
		if ok {
			sw.Counters.FlowletTimeout()
			// The gap closed the old flowlet; Touch below opens a fresh one.
			delete(sw.letflow.flowlets.entries, key)
		}
		paths := sw.Topo.RoutingPaths(dstToR)
		chosen = paths[sw.rng.Intn(len(paths))]
	}
	sw.letflow.flowlets.Touch(key, now, chosen)

	tagged := pkt
	tagged.Letflow = &packet.LetflowTag{Path: chosen, Hop: 0}
	egress := outPortOfHop0(chosen)
	return Decision{Forwards: []Forward{{Packet: tagged, Egress: egress, Priority: pkt.Priority}}}
}

func (sw *Switch) letflowIntermediate(pkt packet.Packet) Decision {
	if pkt.Letflow == nil {
		panic("CONWEAVE/LETFLOW tag missing at intermediate switch")
	}
	hop := pkt.Letflow.Hop + 1
	egress := uint32(path.Decode(pkt.Letflow.Path, int(hop)))
	tagged := pkt
	tag := *pkt.Letflow
	tag.Hop = hop
	tagged.Letflow = &tag
	return Decision{Forwards: []Forward{{Packet: tagged, Egress: egress, Priority: pkt.Priority}}}
}

func (sw *Switch) letflowDestToR(pkt packet.Packet) Decision {
	stripped := pkt
	stripped.Letflow = nil
	// final hop toward the end host: egress is a host-facing interface,
	// resolved the same way ECMP would resolve an untagged packet to this
	// destination (single next hop in practice).
	egress := sw.flowECMP(stripped)
	return Decision{Forwards: []Forward{{Packet: stripped, Egress: egress, Priority: pkt.Priority}}}
}
