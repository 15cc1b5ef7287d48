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
	"fmt"
	"math/rand"

	rendezvous "github.com/dgryski/go-rendezvous"

	"fabriclb/pkg/flowkey"
	"fabriclb/pkg/packet"
	"fabriclb/pkg/path"
)

// CONWEAVECtrlDummyInDev is the reserved synthetic in-interface index
// self-originated CONWEAVE control packets (REPLY, NOTIFY) carry so a
// downstream MMU knows to skip ingress accounting for them.
const CONWEAVECtrlDummyInDev uint32 = 0xFFFFFFFF

// SwitchRole distinguishes a ToR (ingress/egress to hosts) from a spine or
// other intermediate switch that never originates or terminates a flow.
type SwitchRole int

const (
	RoleToR SwitchRole = iota
	RoleIntermediate
)

// Topology is the set of facts about the fabric a switch needs that this
// module treats as an external collaborator (spec.md section 1): multipath
// routing tables, IP-to-ToR ownership, and per-destination base RTT are all
// populated once during construction of the simulated network and treated
// as read-only thereafter (spec.md section 5).
type Topology interface {
	// NextHops returns the candidate egress interface indices for dstIP,
	// used by Flow-ECMP and DRILL.
	NextHops(dstIP uint32) []uint32
	// ToRFor returns the identity of the ToR switch that owns ip.
	ToRFor(ip uint32) uint32
	// RoutingPaths returns the static set of enumerated paths toward
	// dstToR, used by CONGA/LETFLOW/CONWEAVE. Never empty for a reachable
	// dstToR.
	RoutingPaths(dstToR uint32) []path.ID
	// BaseRTT returns the nominal round trip (ns) between this switch's
	// ToR and dstToR, used to compute a CONWEAVE reply deadline.
	BaseRTT(dstToR uint32) int64
	// LinkBitRate returns the capacity (bits/sec) of the link reached via
	// egress interface idx, used by CONGA's DRE quantization.
	LinkBitRate(idx uint32) float64
}

// SendFunc is the switch-send callback surfaced to an external MMU/egress
// scheduler (spec.md section 5, "Admission control integration"). The core
// never buffers for back-pressure beyond VOQs and never retries a dropped
// send.
type SendFunc func(pkt packet.Packet, egress uint32, priority uint8, dummyInDev bool)

// Switch owns all per-switch load-balancing state. Per spec.md section 5,
// no table here is ever touched by more than one switch; the only shared,
// read-only state is Topo.
type Switch struct {
	ID    uint32
	ToRID uint32
	Role  SwitchRole

	Cfg         Config
	Topo        Topology
	Sched       Scheduler
	Send        SendFunc
	Counters    Counters
	Diagnostics Diagnostics

	rng *rand.Rand

	ecmpCache map[uint32]*rendezvous.Rendezvous

	drill *drillState

	conga *congaState

	letflow *letflowState

	cwSource  *conweaveSourceState
	cwDest    *conweaveDestState
	blacklist *Blacklist
	voq       *VOQ

	// QueueOccupancy reports the current egress queue occupancy in bytes
	// for interface idx. It is an external collaborator (the egress
	// scheduler/MMU owns real buffer accounting); DRILL is the only
	// engine that consults it. Defaults to "always empty" so ties are
	// broken purely by first-seen when unset.
	QueueOccupancy func(idx uint32) uint64
}

// NewSwitch constructs a switch and arms its periodic maintenance events
// (DRE decay, table aging) on sched. Topo and sched must outlive the
// switch; both are owned elsewhere (the simulator/topology builder).
func NewSwitch(id, torID uint32, role SwitchRole, cfg Config, topo Topology, sched Scheduler, send SendFunc, counters Counters) *Switch {
	if counters == nil {
		counters = noopCounters{}
	}
	sw := &Switch{
		ID:          id,
		ToRID:       torID,
		Role:        role,
		Cfg:         cfg,
		Topo:        topo,
		Sched:       sched,
		Send:        send,
		Counters:    counters,
		Diagnostics: noopDiagnostics{},
		rng:         rand.New(rand.NewSource(int64(cfg.Seed) ^ int64(id)<<32)),
		ecmpCache:   make(map[uint32]*rendezvous.Rendezvous),
	}
	sw.QueueOccupancy = func(uint32) uint64 { return 0 }
	switch cfg.Mode {
	case ModeDRILL:
		sw.drill = newDrillState()
	case ModeCONGA:
		sw.conga = newCongaState()
		sw.armCongaTimers()
	case ModeLETFLOW:
		sw.letflow = newLetflowState()
		sw.armAgingTimer(sw.letflow.flowlets)
	case ModeCONWEAVE:
		sw.cwSource = newConweaveSourceState()
		sw.cwDest = newConweaveDestState()
		sw.blacklist = NewBlacklist(cfg.BlacklistSize, cfg.Seed)
		sw.voq = newVOQ(sw)
		sw.armConweaveAgingTimer()
	}
	return sw
}

// Forward is one (packet, egress, priority) the caller must hand to the
// switch-send callback.
type Forward struct {
	Packet     packet.Packet
	Egress     uint32
	Priority   uint8
	DummyInDev bool
}

// Decision is the result of routing a single arriving packet. Forwards may
// contain zero entries (the packet was enqueued into a VOQ instead), one
// (the ordinary case), or more than one (a forwarded DATA packet plus a
// REPLY/NOTIFY control packet the engine emits toward the sender).
type Decision struct {
	Forwards []Forward
	Enqueued bool
}

// Route selects an egress (and possibly emits control traffic or enqueues
// into a VOQ) for an arriving packet. now is the current simulated time in
// nanoseconds.
func (sw *Switch) Route(pkt packet.Packet, now int64) Decision {
	if pkt.Proto != packet.ProtoUDPData {
		// ACK/NACK/PFC/CNP: CONWEAVE REPLY/NOTIFY ride on NACK-shaped
		// packets and are handed to the CONWEAVE control handler here;
		// anything else is plain ECMP (spec.md 4.2, 4.6).
		if sw.Cfg.Mode == ModeCONWEAVE && (pkt.Reply != nil || pkt.Notify != nil) {
			return sw.routeConweaveControl(pkt, now)
		}
		return sw.routeECMPOnly(pkt)
	}

	switch sw.Cfg.Mode {
	case ModeDRILL:
		return sw.routeDRILL(pkt)
	case ModeCONGA:
		return sw.routeConga(pkt, now)
	case ModeLETFLOW:
		return sw.routeLetflow(pkt, now)
	case ModeCONWEAVE:
		return sw.routeConweave(pkt, now)
	default:
		return sw.routeECMPOnly(pkt)
	}
}

func (sw *Switch) routeECMPOnly(pkt packet.Packet) Decision {
	egress := sw.flowECMP(pkt)
	return Decision{Forwards: []Forward{{Packet: pkt, Egress: egress, Priority: pkt.Priority}}}
}

func (sw *Switch) isIntraPod(pkt packet.Packet) bool {
	return sw.Topo.ToRFor(pkt.SrcIP) == sw.Topo.ToRFor(pkt.DstIP)
}

// tupleString renders the 5-tuple into the string key Flow-ECMP's
// rendezvous ring hashes on.
func tupleString(srcIP, dstIP uint32, srcPort, dstPort uint16, priority uint8) string {
	return fmt.Sprintf("%d:%d:%d:%d:%d", srcIP, dstIP, srcPort, dstPort, priority)
}

// flowECMP implements spec.md section 4.2: deterministic, stateless
// selection over the candidate next hops for pkt's destination.
func (sw *Switch) flowECMP(pkt packet.Packet) uint32 {
	hops := sw.Topo.NextHops(pkt.DstIP)
	if len(hops) == 0 {
		panic(fmt.Sprintf("routing miss: no next hops for dst %d", pkt.DstIP))
	}
	if len(hops) == 1 {
		return hops[0]
	}
	r, ok := sw.ecmpCache[pkt.DstIP]
	if !ok {
		labels := make([]string, len(hops))
		for i, h := range hops {
			labels[i] = fmt.Sprintf("%d", h)
		}
		r = newRendezvous(sw.Cfg.Seed, labels)
		sw.ecmpCache[pkt.DstIP] = r
	}
	key := tupleString(pkt.SrcIP, pkt.DstIP, pkt.SrcPort, pkt.DstPort, pkt.Priority)
	chosen := r.Lookup(key)
	var idx uint32
	fmt.Sscanf(chosen, "%d", &idx)
	return idx
}

// outPortOfHop0 returns the egress interface a path p would use at this
// (source ToR) switch: the byte stored at hop 0.
func outPortOfHop0(p path.ID) uint32 {
	return uint32(path.FirstHop(p))
}

// flowKeyFor composes the source-ToR perspective flow key for pkt.
func flowKeyFor(pkt packet.Packet) flowkey.Key {
	return flowkey.Make(flowkey.Tuple{
		SrcIP: pkt.SrcIP, DstIP: pkt.DstIP,
		SrcPort: pkt.SrcPort, DstPort: pkt.DstPort,
		Priority: pkt.Priority,
	})
}

// symmetricFlowKeyFor composes the destination-ToR perspective flow key.
func symmetricFlowKeyFor(pkt packet.Packet) flowkey.Key {
	return flowkey.Symmetric(flowkey.Tuple{
		SrcIP: pkt.SrcIP, DstIP: pkt.DstIP,
		SrcPort: pkt.SrcPort, DstPort: pkt.DstPort,
		Priority: pkt.Priority,
	})
}
