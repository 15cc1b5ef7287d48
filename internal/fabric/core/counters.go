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

// Counters receives the per-switch event counts spec.md section 7 says
// must be exposed for post-run analysis. The core depends only on this
// interface (section 9: "reshape as per-switch counters exposed via a
// snapshot method; the core must not depend on process-wide singletons");
// internal/fabric/telemetry/stats supplies a prometheus-backed
// implementation with a Snapshot method.
type Counters interface {
	FlowletTimeout()
	Reroute()
	OutOfOrderEnqueued()
	VOQFlushByDeadline()
	VOQFlushByTail()
	ReplyTimely()
	ReplyTimeout()
	NotifySent()
}

// noopCounters discards every event. Used when a Switch is built without an
// explicit Counters implementation.
type noopCounters struct{}

func (noopCounters) FlowletTimeout()      {}
func (noopCounters) Reroute()             {}
func (noopCounters) OutOfOrderEnqueued()  {}
func (noopCounters) VOQFlushByDeadline()  {}
func (noopCounters) VOQFlushByTail()      {}
func (noopCounters) ReplyTimely()         {}
func (noopCounters) ReplyTimeout()        {}
func (noopCounters) NotifySent()          {}
