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

// Package packet defines the minimal decodable packet shape the core
// consumes from the endpoint stack or an upstream switch, and the binary
// tag layouts each engine rides on it. Each engine gets its own well-typed
// tag struct (section 9, "packet tags as heterogeneous optional fields");
// they are never co-mingled on the wire struct itself.
package packet

import "fabriclb/pkg/path"

// Proto is the L3 protocol discriminator carried in the IP header.
type Proto uint8

const (
	ProtoUDPData Proto = 0x11
	ProtoACK     Proto = 0xFC
	ProtoNACK    Proto = 0xFD // also carries CONWEAVE REPLY
	ProtoPFC     Proto = 0xFE
	ProtoCNP     Proto = 0xFF
)

// ECN holds the 2-bit IPv4 ECN field. CE (congestion experienced) is the
// value 0b11 per RFC 3168; spec.md section 4.6.4 calls this "ECN bits set".
type ECN uint8

const (
	ECNNotCapable ECN = 0b00
	ECNCapable0   ECN = 0b10
	ECNCapable1   ECN = 0b01
	ECNCongested  ECN = 0b11
)

// CongestionExperienced reports whether both ECN bits are set.
func (e ECN) CongestionExperienced() bool { return e == ECNCongested }

// ConweaveFlag enumerates the DATA/REPLY flag values of CONWEAVE section 4.6.
type ConweaveFlag uint32

const (
	FlagData ConweaveFlag = iota
	FlagInit
	FlagTail
)

// DataTag rides on DATA (and CONWEAVE-bearing) packets. Binary layout per
// spec.md section 6: 7x32-bit + 2x64-bit fields, {path, hop, epoch, phase,
// tx-time-ns, tail-time-ns, flag}; here expressed as typed Go fields rather
// than a raw byte layout, since encoding/decoding onto the wire is owned by
// the (external) endpoint/transport stack, not this module.
type DataTag struct {
	Path         path.ID
	Hop          uint32
	Epoch        uint32
	Phase        uint32
	TxTimeNs     int64
	TailTimeNs   int64
	Flag         ConweaveFlag
}

// ReplyTag rides on ACK-shaped packets answering a CONWEAVE INIT or TAIL.
type ReplyTag struct {
	Flag  ConweaveFlag
	Epoch uint32
	Phase uint32
}

// NotifyTag signals a path observed congested at the destination ToR.
type NotifyTag struct {
	Path path.ID
}

// CongaFeedbackSentinel marks "no feedback" in a CongaTag, per spec.md
// section 6: 0xFFFFFFFF in either feedback field means absence.
const CongaFeedbackSentinel uint32 = 0xFFFFFFFF

// CongaTag rides on DATA packets under the CONGA engine.
type CongaTag struct {
	Path            path.ID
	CE              uint32
	Hop             uint32
	FeedbackPath    uint32 // CongaFeedbackSentinel if absent
	FeedbackMetric  uint32 // CongaFeedbackSentinel if absent
}

// HasFeedback reports whether the tag carries real piggybacked feedback.
func (t CongaTag) HasFeedback() bool {
	return t.FeedbackPath != CongaFeedbackSentinel && t.FeedbackMetric != CongaFeedbackSentinel
}

// LetflowTag rides on DATA packets under the LETFLOW engine.
type LetflowTag struct {
	Path path.ID
	Hop  uint32
}

// Packet is the minimal decodable unit the core routes. Only one of the
// tag pointers is non-nil at a time, matching whichever engine is active
// for this switch; ECMP and DRILL leave all tags nil.
type Packet struct {
	SrcIP, DstIP     uint32
	SrcPort, DstPort uint16
	Priority         uint8
	Proto            Proto
	Seq              uint64
	ECNBits          ECN

	Conga    *CongaTag
	Letflow  *LetflowTag
	Data     *DataTag
	Reply    *ReplyTag
	Notify   *NotifyTag

	// SizeBytes is the wire size used by DRE accounting and queue-occupancy
	// estimates; egress scheduling itself is an external collaborator.
	SizeBytes uint32
}

// ReverseFourTuple returns a packet shell carrying the reversed 4-tuple and
// highest-priority class, used to build CONWEAVE REPLY/NOTIFY control
// packets (spec.md section 4.6.4, "REPLY generation").
func ReverseFourTuple(p Packet, proto Proto) Packet {
	return Packet{
		SrcIP:    p.DstIP,
		DstIP:    p.SrcIP,
		SrcPort:  p.DstPort,
		DstPort:  p.SrcPort,
		Priority: 0, // highest-priority class
		Proto:    proto,
	}
}
