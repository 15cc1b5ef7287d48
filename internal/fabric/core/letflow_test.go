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

// S2: flow F sends at t=0 and t=150000 (>flowlet_timeout=100000). Both
// packets must independently draw a path, and the aging counter (flowlet
// Count reset via a fresh Touch) reflects two distinct flowlets.
func TestLetflowTimeoutScenarioS2(t *testing.T) {
	topo := newTestTopology()
	sched := NewSimClock()
	counters := &recordingCounters{}
	sw, _ := newTestSwitch(ModeLETFLOW, 1, topo, sched, counters)

	pkt := dataPacket(1, 1, 2, 1, 4000, 80)
	key := flowKeyFor(pkt)

	sw.Route(pkt, 0)
	first, ok := sw.letflow.flowlets.Get(key)
	if !ok {
		t.Fatal("want flowlet entry after first packet")
	}
	firstPath := first.Path

	sw.Route(pkt, 150000)
	if counters.flowletTimeouts != 1 {
		t.Fatalf("want 1 flowlet timeout, got %d", counters.flowletTimeouts)
	}
	second, _ := sw.letflow.flowlets.Get(key)
	if second.FirstActive != 150000 {
		t.Fatalf("want the flowlet re-opened at t=150000, got FirstActive=%d", second.FirstActive)
	}
	_ = firstPath // the redraw may coincidentally repeat the same path; what
	// matters per S2 is that selection happened independently (a fresh
	// flowlet, not a continuation), verified above via FirstActive reset.
}

func TestLetflowNoCongestionTables(t *testing.T) {
	topo := newTestTopology()
	sched := NewSimClock()
	sw, _ := newTestSwitch(ModeLETFLOW, 1, topo, sched, nil)
	if sw.letflow.flowlets == nil {
		t.Fatal("want a flowlet table")
	}
}

func TestLetflowIntermediatePropagatesHop(t *testing.T) {
	topo := newTestTopology()
	sched := NewSimClock()
	sourceSw, rec := newTestSwitch(ModeLETFLOW, 1, topo, sched, nil)
	routeAndSend(sourceSw, dataPacket(1, 1, 2, 1, 4000, 80), 0)
	tagged := rec.calls[0].Pkt
	if tagged.Letflow == nil || tagged.Letflow.Hop != 0 {
		t.Fatalf("want source ToR to tag hop 0, got %+v", tagged.Letflow)
	}

	interCfg := DefaultConfig()
	interCfg.Mode = ModeLETFLOW
	interSw := NewSwitch(99, 99, RoleIntermediate, interCfg, topo, sched,
		func(packet.Packet, uint32, uint8, bool) {}, nil)

	decision := interSw.Route(tagged, 0)
	if len(decision.Forwards) != 1 {
		t.Fatalf("want 1 forward from intermediate, got %d", len(decision.Forwards))
	}
	fwd := decision.Forwards[0]
	if fwd.Packet.Letflow.Hop != 1 {
		t.Fatalf("want hop advanced to 1, got %d", fwd.Packet.Letflow.Hop)
	}
	if fwd.Egress != uint32(path.Decode(tagged.Letflow.Path, 1)) {
		t.Fatalf("want egress to match hop-1 path byte")
	}
}
