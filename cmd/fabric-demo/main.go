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

// Command fabric-demo wires three switches (two ToRs and one spine) into a
// tiny simulated pod pair, drives a handful of packets across them under the
// CONWEAVE engine, and prints the resulting counters and exported totals.
// It is a wiring demonstration, not a CLI: there is no flag parsing or
// config file (SPEC_FULL.md's non-goals exclude that surface), only the
// programmatic construction a topology builder external to the core
// package is expected to do.
package main

import (
	"context"
	"fmt"
	"os"

	"fabriclb/internal/fabric/core"
	"fabriclb/internal/fabric/export"
	"fabriclb/internal/fabric/sinks"
	"fabriclb/internal/fabric/telemetry/stats"
	"fabriclb/pkg/packet"
	"fabriclb/pkg/path"
)

const (
	torA  = 1
	torB  = 2
	spine = 9

	hostSentinel = ^uint32(0)
)

// podTopology is a per-switch view of a fixed two-pod, one-spine fabric: ToR
// 1 and ToR 2 each own a /16 of host address space, joined by three uplinks
// through spine 9. Egress interface indices are scoped to the switch that
// owns the view, not globally unique (mirroring how Switch.Topo is a
// per-switch collaborator, never shared fabric-wide state).
type podTopology struct {
	self uint32
}

func (t podTopology) ToRFor(ip uint32) uint32 { return ip >> 16 }

func (t podTopology) NextHops(dstIP uint32) []uint32 {
	dstToR := t.ToRFor(dstIP)
	switch t.self {
	case torA:
		if dstToR == torA {
			return []uint32{0}
		}
		return []uint32{11, 12, 13}
	case torB:
		if dstToR == torB {
			return []uint32{0}
		}
		return []uint32{21, 22, 23}
	case spine:
		if dstToR == torA {
			return []uint32{1}
		}
		return []uint32{2}
	}
	return nil
}

func (t podTopology) RoutingPaths(dstToR uint32) []path.ID {
	mk := func(hop0, hop1 byte) path.ID {
		var p path.ID
		p = path.Encode(p, 0, hop0)
		p = path.Encode(p, 1, hop1)
		return p
	}
	switch t.self {
	case torA:
		if dstToR == torB {
			return []path.ID{mk(11, 2), mk(12, 2), mk(13, 2)}
		}
	case torB:
		if dstToR == torA {
			return []path.ID{mk(21, 1), mk(22, 1), mk(23, 1)}
		}
	}
	return nil
}

func (t podTopology) BaseRTT(dstToR uint32) int64    { return 800 }
func (t podTopology) LinkBitRate(idx uint32) float64 { return 100e9 }

// link resolves where switch from's egress lands: the ID of the next switch,
// or (hostSentinel, true) when the egress delivers directly to a host.
func link(from, egress uint32) (uint32, bool) {
	switch from {
	case torA, torB:
		if egress == 0 {
			return hostSentinel, true
		}
		return spine, false
	case spine:
		if egress == 1 {
			return torA, false
		}
		return torB, false
	}
	panic(fmt.Sprintf("no link from switch %d egress %d", from, egress))
}

// network drives Decisions between switches, standing in for the external
// MMU/egress scheduler every switch's SendFunc is surfaced to.
type network struct {
	sched    *core.SimClock
	switches map[uint32]*core.Switch
}

func (n *network) sendFrom(id uint32) core.SendFunc {
	return func(pkt packet.Packet, egress uint32, priority uint8, dummyInDev bool) {
		next, delivered := link(id, egress)
		if delivered {
			fmt.Printf("  [t=%7d] switch %d -> host delivery: seq=%d proto=%#x\n", n.sched.Now(), id, pkt.Seq, pkt.Proto)
			return
		}
		sw := n.switches[next]
		decision := sw.Route(pkt, n.sched.Now())
		for _, fwd := range decision.Forwards {
			sw.Send(fwd.Packet, fwd.Egress, fwd.Priority, fwd.DummyInDev)
		}
	}
}

// inject feeds a packet into a switch as if freshly arrived from a host,
// then drains whatever Forwards come back through the same send path used
// for everything else (VOQ flushes included).
func (n *network) inject(swID uint32, pkt packet.Packet) {
	sw := n.switches[swID]
	decision := sw.Route(pkt, n.sched.Now())
	for _, fwd := range decision.Forwards {
		sw.Send(fwd.Packet, fwd.Egress, fwd.Priority, fwd.DummyInDev)
	}
}

func hostIP(tor, host uint32) uint32 { return tor<<16 | host }

// diagnosticsLog adapts a switch's flush and route-event sinks to
// core.Diagnostics, so the core never imports internal/fabric/sinks
// directly.
type diagnosticsLog struct {
	switchID uint32
	flushes  *sinks.FlushDiagnosticSink
	events   *sinks.RouteEventSink
}

func (d *diagnosticsLog) ObserveFlush(flowKey uint64, scheduledNs, actualNs int64, byTail bool) {
	d.flushes.OnFlushRecords([]sinks.FlushRecord{{
		SwitchID:    d.switchID,
		FlowKey:     flowKey,
		ScheduledNs: scheduledNs,
		ActualNs:    actualNs,
		ErrorNs:     actualNs - scheduledNs,
		ByTail:      byTail,
	}})
}

func (d *diagnosticsLog) ObserveRouteEvent(flowKey uint64, epoch uint32, p uint32, nowNs int64, kind string) {
	d.events.Append(sinks.RouteEvent{
		SwitchID: d.switchID,
		FlowKey:  flowKey,
		Epoch:    epoch,
		Path:     p,
		NowNs:    nowNs,
		Kind:     kind,
	})
}

func main() {
	sched := core.NewSimClock()
	n := &network{sched: sched, switches: make(map[uint32]*core.Switch)}

	cfg := core.DefaultConfig() // ModeCONWEAVE

	flushLogPath := fmt.Sprintf("%s/fabric-demo-flushes.jsonl", os.TempDir())
	routeLogPath := fmt.Sprintf("%s/fabric-demo-routes.jsonl", os.TempDir())
	os.Remove(flushLogPath)
	os.Remove(routeLogPath)
	flushSink, err := sinks.NewFlushDiagnosticSink(flushLogPath)
	if err != nil {
		panic(err)
	}
	defer flushSink.Close()
	routeSink, err := sinks.NewRouteEventSink(routeLogPath)
	if err != nil {
		panic(err)
	}
	defer routeSink.Close()

	for _, id := range []uint32{torA, torB, spine} {
		role := core.RoleIntermediate
		torID := uint32(0)
		if id == torA || id == torB {
			role = core.RoleToR
			torID = id
		}
		counters := stats.NewSwitchCounters(id)
		sw := core.NewSwitch(id, torID, role, cfg, podTopology{self: id}, sched, n.sendFrom(id), counters)
		sw.Diagnostics = &diagnosticsLog{switchID: id, flushes: flushSink, events: routeSink}
		n.switches[id] = sw
	}

	src := hostIP(torA, 1)
	dst := hostIP(torB, 1)

	fmt.Println("injecting a burst of DATA packets from ToR1 host 1 to ToR2 host 1:")
	for i := 0; i < 5; i++ {
		t := int64(i) * 2000
		sched.At(t, func(seq uint64) func() {
			return func() {
				pkt := packet.Packet{
					SrcIP:     src,
					DstIP:     dst,
					SrcPort:   4000,
					DstPort:   80,
					Priority:  3,
					Proto:     packet.ProtoUDPData,
					Seq:       seq,
					SizeBytes: 1500,
				}
				n.inject(torA, pkt)
			}
		}(uint64(i)))
	}

	sched.RunUntil(200000)

	fmt.Println("\ncounters:")
	for _, id := range []uint32{torA, torB, spine} {
		snap := n.switches[id].Counters.(*stats.SwitchCounters).Snapshot()
		fmt.Printf("  switch %d: %+v\n", id, snap)
	}

	sink, err := export.BuildSink("mock", export.Options{})
	if err != nil {
		panic(err)
	}
	var entries []export.Entry
	for _, id := range []uint32{torA, torB, spine} {
		snap := n.switches[id].Counters.(*stats.SwitchCounters).Snapshot()
		entries = append(entries,
			export.Entry{SwitchID: id, Metric: "reroutes_total", Delta: int64(snap.Reroutes), CommitID: fmt.Sprintf("%d-reroutes-1", id)},
			export.Entry{SwitchID: id, Metric: "out_of_order_enqueued_total", Delta: int64(snap.OutOfOrderEnqueued), CommitID: fmt.Sprintf("%d-ooo-1", id)},
		)
	}
	if err := sink.CommitBatch(context.Background(), entries); err != nil {
		panic(err)
	}

	fmt.Println("\nexported totals:")
	for id, totals := range sink.(*export.MockSink).Totals() {
		fmt.Printf("  switch %d: %v\n", id, totals)
	}

	flushSink.Flush()
	routeSink.Flush()
	flushRecords, err := sinks.ReadAllFlushRecords(flushLogPath)
	if err != nil {
		panic(err)
	}
	routeEvents, err := sinks.ReadAllRouteEvents(routeLogPath)
	if err != nil {
		panic(err)
	}
	fmt.Printf("\ndiagnostics: %d flush records, %d route events logged to %s and %s\n",
		len(flushRecords), len(routeEvents), flushLogPath, routeLogPath)
}
