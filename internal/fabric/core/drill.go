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

import "fabriclb/pkg/packet"

const drillCandidates = 2 // K in spec.md section 4.3

// drillState is per-switch DRILL memory: the last chosen egress per
// destination, consulted (and updated) on every packet.
type drillState struct {
	lastBest map[uint32]uint32 // dstIP -> last best egress
}

func newDrillState() *drillState {
	return &drillState{lastBest: make(map[uint32]uint32)}
}

// routeDRILL implements spec.md section 4.3. DRILL carries no tag and
// keeps no per-flow state; it is stateless over the packet, only
// per-destination "last best" memory survives between packets. Intra-pod
// traffic falls through to ECMP.
func (sw *Switch) routeDRILL(pkt packet.Packet) Decision {
	if sw.isIntraPod(pkt) {
		return sw.routeECMPOnly(pkt)
	}
	hops := sw.Topo.NextHops(pkt.DstIP)
	if len(hops) == 0 {
		panic("routing miss: no next hops")
	}

	candidates := sw.drillSample(hops)
	if prev, ok := sw.drill.lastBest[pkt.DstIP]; ok {
		candidates = appendUnique(candidates, prev)
	}

	best := candidates[0]
	bestOcc := sw.QueueOccupancy(best)
	for _, c := range candidates[1:] {
		occ := sw.QueueOccupancy(c)
		if occ < bestOcc {
			best, bestOcc = c, occ
		}
		// ties keep the earlier (first-seen) candidate.
	}

	sw.drill.lastBest[pkt.DstIP] = best
	return Decision{Forwards: []Forward{{Packet: pkt, Egress: best, Priority: pkt.Priority}}}
}

// drillSample shuffles hops and returns the first drillCandidates entries
// (or all of them if there are fewer).
func (sw *Switch) drillSample(hops []uint32) []uint32 {
	shuffled := make([]uint32, len(hops))
	copy(shuffled, hops)
	sw.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	n := drillCandidates
	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}

func appendUnique(s []uint32, v uint32) []uint32 {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}
