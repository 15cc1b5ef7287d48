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

// Package flowkey composes the 64-bit flow identity used to index flowlet
// tables, CONGA/CONWEAVE per-flow entries, and VOQs.
package flowkey

// Key is a 64-bit hash of {source IP, destination IP, source port,
// destination port, priority class}. Two Keys are equal iff they identify the same flow
// from the same perspective (source-ToR or destination-ToR; see Symmetric).
type Key uint64

// Tuple is the minimal decodable 4-tuple plus priority carried by a packet.
type Tuple struct {
	SrcIP    uint32
	DstIP    uint32
	SrcPort  uint16
	DstPort  uint16
	Priority uint8
}

// Make composes a source-ToR perspective flow key over the full 5-tuple.
// All five fields are folded in via an FNV-1a-style mix rather than packed
// into fixed bit ranges, since {SrcIP, DstIP, SrcPort, DstPort, Priority}
// does not fit 64 bits without collisions (two hosts behind the same
// source ToR can share a SrcPort/DstPort/Priority toward the same DstIP).
func Make(t Tuple) Key {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	mix := func(v uint64) {
		h ^= v
		h *= prime64
	}
	mix(uint64(t.SrcIP))
	mix(uint64(t.DstIP))
	mix(uint64(t.SrcPort))
	mix(uint64(t.DstPort))
	mix(uint64(t.Priority))
	return Key(h)
}

// Symmetric returns the destination-ToR perspective of the same flow: the
// source/destination port roles are flipped, and DstIP becomes SrcIP's
// slot so a destination ToR can key its per-flow state the same way the
// source ToR does, without needing to share the source ToR's table.
func Symmetric(t Tuple) Key {
	flipped := Tuple{
		SrcIP:    t.DstIP,
		DstIP:    t.SrcIP,
		SrcPort:  t.DstPort,
		DstPort:  t.SrcPort,
		Priority: t.Priority,
	}
	return Make(flipped)
}
