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

// testTopology is a small fixed two-pod fabric: ToR 1 and ToR 2, each owning
// a /16 of IP space, joined by 3 spine paths. Good enough to exercise every
// engine's inter-pod branch without modeling a real Clos fabric.
type testTopology struct {
	nextHops map[uint32][]uint32 // dstIP -> hops (only used intra-pod / ECMP / DRILL)
	paths    []path.ID
	baseRTT  int64
	bitRate  float64
}

func newTestTopology() *testTopology {
	var p1, p2, p3 path.ID
	p1 = path.Encode(p1, 0, 1)
	p1 = path.Encode(p1, 1, 9)
	p2 = path.Encode(p2, 0, 2)
	p2 = path.Encode(p2, 1, 9)
	p3 = path.Encode(p3, 0, 3)
	p3 = path.Encode(p3, 1, 9)
	return &testTopology{
		nextHops: map[uint32][]uint32{},
		paths:    []path.ID{p1, p2, p3},
		baseRTT:  800,
		bitRate:  100e9,
	}
}

func (t *testTopology) NextHops(dstIP uint32) []uint32 {
	if hops, ok := t.nextHops[dstIP]; ok {
		return hops
	}
	return []uint32{1, 2, 3}
}

func (t *testTopology) ToRFor(ip uint32) uint32 { return ip >> 16 }

func (t *testTopology) RoutingPaths(dstToR uint32) []path.ID { return t.paths }

func (t *testTopology) BaseRTT(dstToR uint32) int64 { return t.baseRTT }

func (t *testTopology) LinkBitRate(idx uint32) float64 { return t.bitRate }

// recordingCounters captures every Counters call for assertions.
type recordingCounters struct {
	flowletTimeouts, reroutes, oooEnqueued             int
	voqFlushByDeadline, voqFlushByTail                  int
	replyTimely, replyTimeout, notifySent               int
}

func (c *recordingCounters) FlowletTimeout()     { c.flowletTimeouts++ }
func (c *recordingCounters) Reroute()            { c.reroutes++ }
func (c *recordingCounters) OutOfOrderEnqueued() { c.oooEnqueued++ }
func (c *recordingCounters) VOQFlushByDeadline()  { c.voqFlushByDeadline++ }
func (c *recordingCounters) VOQFlushByTail()      { c.voqFlushByTail++ }
func (c *recordingCounters) ReplyTimely()         { c.replyTimely++ }
func (c *recordingCounters) ReplyTimeout()        { c.replyTimeout++ }
func (c *recordingCounters) NotifySent()          { c.notifySent++ }

// hostIP builds a /16-scoped address: high 16 bits identify the owning ToR.
func hostIP(tor, host uint32) uint32 { return tor<<16 | host }

func dataPacket(srcTor, srcHost, dstTor, dstHost uint32, sport, dport uint16) packet.Packet {
	return packet.Packet{
		SrcIP: hostIP(srcTor, srcHost), DstIP: hostIP(dstTor, dstHost),
		SrcPort: sport, DstPort: dport, Proto: packet.ProtoUDPData, SizeBytes: 1500,
	}
}

// recordingSend captures every (packet, egress, priority, dummyInDev) tuple
// handed to the switch-send callback, in arrival order.
type recordingSend struct {
	calls []sendCall
}

type sendCall struct {
	Pkt        packet.Packet
	Egress     uint32
	Priority   uint8
	DummyInDev bool
}

func (r *recordingSend) fn() SendFunc {
	return func(pkt packet.Packet, egress uint32, priority uint8, dummyInDev bool) {
		r.calls = append(r.calls, sendCall{pkt, egress, priority, dummyInDev})
	}
}

// routeAndSend routes pkt and hands every resulting Forward to the switch's
// send callback, as a caller of Route is expected to do.
func routeAndSend(sw *Switch, pkt packet.Packet, now int64) Decision {
	d := sw.Route(pkt, now)
	for _, f := range d.Forwards {
		sw.Send(f.Packet, f.Egress, f.Priority, f.DummyInDev)
	}
	return d
}

func newTestSwitch(mode Mode, torID uint32, topo Topology, sched Scheduler, counters Counters) (*Switch, *recordingSend) {
	cfg := DefaultConfig()
	cfg.Mode = mode
	rec := &recordingSend{}
	sw := NewSwitch(torID, torID, RoleToR, cfg, topo, sched, rec.fn(), counters)
	return sw, rec
}
