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
	"testing"

	"fabriclb/pkg/packet"
	"fabriclb/pkg/path"
)

// S1: paths {A,B,C}, DRE all 0, to-leaf[dstToR] = {A:4, B:0, C:2}.
// GET-BEST-PATH with nSample=3 must return B (the least congested).
func TestCongaGetBestPathScenarioS1(t *testing.T) {
	topo := newTestTopology()
	sched := NewSimClock()
	sw, _ := newTestSwitch(ModeCONGA, 1, topo, sched, nil)

	dstToR := uint32(2)
	a, b, c := topo.paths[0], topo.paths[1], topo.paths[2]
	sw.conga.toLeaf[dstToR] = map[path.ID]ceRecord{
		a: {metric: 4, lastUpdate: 0},
		b: {metric: 0, lastUpdate: 0},
		c: {metric: 2, lastUpdate: 0},
	}

	got := sw.congaGetBestPath(dstToR, 3)
	if got != b {
		t.Fatalf("want path B (%v), got %v", b, got)
	}
}

// Invariant 4: flowlet continuity within flowlet_timeout.
func TestCongaFlowletContinuity(t *testing.T) {
	topo := newTestTopology()
	sched := NewSimClock()
	counters := &recordingCounters{}
	sw, rec := newTestSwitch(ModeCONGA, 1, topo, sched, counters)

	pkt := dataPacket(1, 1, 2, 1, 4000, 80)
	routeAndSend(sw, pkt, 0)
	routeAndSend(sw, pkt, sw.Cfg.FlowletTimeout.Nanoseconds()-1)

	if len(rec.calls) != 2 {
		t.Fatalf("want 2 forwards, got %d", len(rec.calls))
	}
	if rec.calls[0].Egress != rec.calls[1].Egress {
		t.Fatalf("want same egress within flowlet timeout, got %d then %d", rec.calls[0].Egress, rec.calls[1].Egress)
	}
	if counters.flowletTimeouts != 0 {
		t.Fatalf("want 0 flowlet timeouts, got %d", counters.flowletTimeouts)
	}

	// A gap past the timeout (measured from the previous packet) reopens
	// path selection and bumps the counter.
	routeAndSend(sw, pkt, 2*sw.Cfg.FlowletTimeout.Nanoseconds())
	if counters.flowletTimeouts != 1 {
		t.Fatalf("want 1 flowlet timeout after the gap, got %d", counters.flowletTimeouts)
	}
}

// Invariant 5: CE tagged along a path equals the max of all per-hop local
// CEs. An intermediate switch with a deliberately congested hop-1 egress
// must raise, never lower, the tag carried from the source ToR.
func TestCongaCEMonotonicAlongPath(t *testing.T) {
	topo := newTestTopology()
	sched := NewSimClock()
	sourceSw, sourceRec := newTestSwitch(ModeCONGA, 1, topo, sched, nil)

	pkt := dataPacket(1, 1, 2, 1, 4000, 80)
	routeAndSend(sourceSw, pkt, 0)
	if len(sourceRec.calls) != 1 {
		t.Fatalf("want 1 forward from source, got %d", len(sourceRec.calls))
	}
	tagged := sourceRec.calls[0].Pkt
	ceAtSource := tagged.Conga.CE

	interCfg := DefaultConfig()
	interCfg.Mode = ModeCONGA
	interSw := NewSwitch(99, 99, RoleIntermediate, interCfg, topo, sched, func(packet.Packet, uint32, uint8, bool) {}, nil)
	interSw.conga.dre[9] = 1e9 // force hop-1 local CE to saturate

	decision := interSw.congaIntermediate(tagged)
	got := decision.Forwards[0].Packet.Conga.CE

	if got < ceAtSource {
		t.Fatalf("CE decreased along path: source=%d, after hop1=%d", ceAtSource, got)
	}
	maxQ := uint32(1)<<interCfg.QuantizeBits - 1
	if got != maxQ {
		t.Fatalf("want saturated CE %d after a heavily congested hop, got %d", maxQ, got)
	}
}

func TestCongaQuantizeBounds(t *testing.T) {
	topo := newTestTopology()
	sched := NewSimClock()
	sw, _ := newTestSwitch(ModeCONGA, 1, topo, sched, nil)

	sw.conga.dre[1] = 0
	if q := sw.congaQuantize(1); q != 0 {
		t.Fatalf("want 0 at zero DRE, got %d", q)
	}

	sw.conga.dre[1] = 1e18
	maxQ := uint32(1)<<sw.Cfg.QuantizeBits - 1
	if q := sw.congaQuantize(1); q != maxQ {
		t.Fatalf("want saturated quantize %d, got %d", maxQ, q)
	}
}

func TestCongaDREDecay(t *testing.T) {
	topo := newTestTopology()
	sched := NewSimClock()
	sw, _ := newTestSwitch(ModeCONGA, 1, topo, sched, nil)

	sw.conga.dre[1] = 1000
	sw.conga.decayDRE(0.2)
	if sw.conga.dre[1] != 800 {
		t.Fatalf("want 800 after 20%% decay of 1000, got %v", sw.conga.dre[1])
	}
}
