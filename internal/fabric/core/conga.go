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

	"fabriclb/pkg/packet"
	"fabriclb/pkg/path"
)

// ceRecord is one {congestion-metric, last-update-time} table cell.
type ceRecord struct {
	metric     uint32
	lastUpdate int64
}

// congaState is per-switch CONGA memory (spec.md section 3). fromLeaf and
// toLeaf are both keyed by "the other ToR" regardless of which role this
// switch is playing for a given packet: fromLeaf is written when this
// switch acts as a destination ToR receiving from that leaf, and read when
// this same switch later acts as a source ToR sending to that leaf
// (leaf-to-leaf feedback rides on return traffic, per the CONGA design).
type congaState struct {
	fromLeaf map[uint32]map[path.ID]ceRecord
	toLeaf   map[uint32]map[path.ID]ceRecord
	dre      map[uint32]float64
	flowlets *FlowletTable
}

func newCongaState() *congaState {
	return &congaState{
		fromLeaf: make(map[uint32]map[path.ID]ceRecord),
		toLeaf:   make(map[uint32]map[path.ID]ceRecord),
		dre:      make(map[uint32]float64),
		flowlets: newFlowletTable(),
	}
}

func (c *congaState) decayDRE(alpha float64) {
	for port, bytes := range c.dre {
		c.dre[port] = math.Floor(bytes * (1 - alpha))
	}
}

func (c *congaState) age(now, maxAge int64) {
	for _, m := range c.toLeaf {
		for p, rec := range m {
			if now-rec.lastUpdate > maxAge {
				rec.metric = 0
				m[p] = rec
			}
		}
	}
	for leaf, m := range c.fromLeaf {
		for p, rec := range m {
			if now-rec.lastUpdate > maxAge {
				delete(m, p)
			}
		}
		if len(m) == 0 {
			delete(c.fromLeaf, leaf)
		}
	}
	c.flowlets.AgeOut(now, maxAge)
}

// routeConga implements spec.md section 4.4. Scope: inter-pod DATA only;
// intra-pod and non-DATA traffic fall through to ECMP.
func (sw *Switch) routeConga(pkt packet.Packet, now int64) Decision {
	if sw.isIntraPod(pkt) {
		return sw.routeECMPOnly(pkt)
	}
	srcToR := sw.Topo.ToRFor(pkt.SrcIP)
	dstToR := sw.Topo.ToRFor(pkt.DstIP)

	switch {
	case pkt.Conga == nil && sw.ToRID == srcToR:
		return sw.congaSourceToR(pkt, now, dstToR)
	case pkt.Conga != nil && sw.ToRID == dstToR:
		return sw.congaDestToR(pkt, now, srcToR)
	case pkt.Conga != nil:
		return sw.congaIntermediate(pkt)
	default:
		panic("CONGA tag missing at non-source switch")
	}
}

func (sw *Switch) congaSourceToR(pkt packet.Packet, now int64, dstToR uint32) Decision {
	// Step 1: piggyback feedback from what we've observed arriving FROM
	// dstToR.
	feedbackPath := uint32(packet.CongaFeedbackSentinel)
	feedbackMetric := uint32(packet.CongaFeedbackSentinel)
	if table := sw.conga.fromLeaf[dstToR]; len(table) > 0 {
		keys := make([]path.ID, 0, len(table))
		for p := range table {
			keys = append(keys, p)
		}
		chosen := keys[sw.rng.Intn(len(keys))]
		feedbackPath = uint32(chosen)
		feedbackMetric = table[chosen].metric
	}

	// Step 2/3: flowlet continuity or new path selection.
	key := flowKeyFor(pkt)
	var chosen path.ID
	if e, ok := sw.conga.flowlets.Get(key); ok && now-e.LastActive <= sw.Cfg.FlowletTimeout.Nanoseconds() {
		chosen = e.Path
	} else {
		if ok {
			sw.Counters.FlowletTimeout()
		}
		chosen = sw.congaGetBestPath(dstToR, 4)
	}
	sw.conga.flowlets.Touch(key, now, chosen)

	// Step 4/5: DRE update + quantize at the chosen egress.
	egress := outPortOfHop0(chosen)
	sw.conga.dre[egress] += float64(pkt.SizeBytes)
	localCE := sw.congaQuantize(egress)

	tagged := pkt
	tagged.Conga = &packet.CongaTag{
		Path: chosen, CE: localCE, Hop: 0,
		FeedbackPath: feedbackPath, FeedbackMetric: feedbackMetric,
	}
	return Decision{Forwards: []Forward{{Packet: tagged, Egress: egress, Priority: pkt.Priority}}}
}

func (sw *Switch) congaIntermediate(pkt packet.Packet) Decision {
	hop := pkt.Conga.Hop + 1
	egress := uint32(path.Decode(pkt.Conga.Path, int(hop)))
	sw.conga.dre[egress] += float64(pkt.SizeBytes)
	localCE := sw.congaQuantize(egress)

	tagged := pkt
	tag := *pkt.Conga
	tag.Hop = hop
	if localCE > tag.CE {
		tag.CE = localCE
	}
	tagged.Conga = &tag
	return Decision{Forwards: []Forward{{Packet: tagged, Egress: egress, Priority: pkt.Priority}}}
}

func (sw *Switch) congaDestToR(pkt packet.Packet, now int64, srcToR uint32) Decision {
	tag := pkt.Conga
	if tag.HasFeedback() {
		m := sw.conga.toLeaf[srcToR]
		if m == nil {
			m = make(map[path.ID]ceRecord)
			sw.conga.toLeaf[srcToR] = m
		}
		m[path.ID(tag.FeedbackPath)] = ceRecord{metric: tag.FeedbackMetric, lastUpdate: now}
	}
	fl := sw.conga.fromLeaf[srcToR]
	if fl == nil {
		fl = make(map[path.ID]ceRecord)
		sw.conga.fromLeaf[srcToR] = fl
	}
	fl[tag.Path] = ceRecord{metric: tag.CE, lastUpdate: now}

	stripped := pkt
	stripped.Conga = nil
	egress := sw.flowECMP(stripped)
	return Decision{Forwards: []Forward{{Packet: stripped, Egress: egress, Priority: pkt.Priority}}}
}

// congaGetBestPath implements spec.md section 4.4's GET-BEST-PATH.
func (sw *Switch) congaGetBestPath(dstToR uint32, nSample int) path.ID {
	paths := sw.Topo.RoutingPaths(dstToR)
	if len(paths) == 0 {
		panic("routing miss: no paths toward destination ToR")
	}
	sampled := sw.sampleDistinct(paths, nSample)

	best := sampled[0]
	bestCong := sw.congaCongestion(dstToR, best)
	tied := []path.ID{best}
	for _, p := range sampled[1:] {
		c := sw.congaCongestion(dstToR, p)
		switch {
		case c < bestCong:
			bestCong = c
			tied = []path.ID{p}
		case c == bestCong:
			tied = append(tied, p)
		}
	}
	return tied[sw.rng.Intn(len(tied))]
}

func (sw *Switch) congaCongestion(dstToR uint32, p path.ID) uint32 {
	port := outPortOfHop0(p)
	local := sw.congaQuantize(port)
	var toLeafMetric uint32
	if rec, ok := sw.conga.toLeaf[dstToR][p]; ok {
		toLeafMetric = rec.metric
	}
	if local > toLeafMetric {
		return local
	}
	return toLeafMetric
}

// congaQuantize implements spec.md section 4.4's quantization formula:
// floor((bytes*8) / (bitRate * dreTime * alpha^-1) * 2^Q).
func (sw *Switch) congaQuantize(port uint32) uint32 {
	bytes := sw.conga.dre[port]
	bitRate := sw.Topo.LinkBitRate(port)
	alpha := sw.Cfg.Alpha
	if bitRate <= 0 || alpha <= 0 {
		return 0
	}
	denom := bitRate * sw.Cfg.DRETime.Seconds() * (1 / alpha)
	if denom <= 0 {
		return 0
	}
	maxVal := int64(1)<<sw.Cfg.QuantizeBits - 1
	q := int64(math.Floor((bytes * 8 / denom) * float64(int64(1)<<sw.Cfg.QuantizeBits)))
	if q < 0 {
		q = 0
	}
	if q > maxVal {
		q = maxVal
	}
	return uint32(q)
}

// sampleDistinct draws up to n distinct paths uniformly at random without
// replacement, or all of them if fewer than n exist.
func (sw *Switch) sampleDistinct(paths []path.ID, n int) []path.ID {
	if n > len(paths) {
		n = len(paths)
	}
	perm := sw.rng.Perm(len(paths))
	out := make([]path.ID, n)
	for i := 0; i < n; i++ {
		out[i] = paths[perm[i]]
	}
	return out
}
