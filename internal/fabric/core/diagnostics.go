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

// Diagnostics receives verbose, per-event routing records that are too
// fine-grained for Counters: a VOQ flush observation (scheduled vs. actual
// fire time, spec.md section 9's open question on ExtraVOQFlushTime
// sizing) and notable routing events (reroute, out-of-order enqueue,
// NOTIFY) kept for offline replay/audit. The core depends only on this
// interface, the same way it depends only on Counters; concrete JSONL
// persistence lives in internal/fabric/sinks and is wired in by whatever
// constructs the Switch.
type Diagnostics interface {
	ObserveFlush(flowKey uint64, scheduledNs, actualNs int64, byTail bool)
	ObserveRouteEvent(flowKey uint64, epoch uint32, p uint32, nowNs int64, kind string)
}

// noopDiagnostics discards every record. Used when a Switch is built
// without an explicit Diagnostics implementation.
type noopDiagnostics struct{}

func (noopDiagnostics) ObserveFlush(uint64, int64, int64, bool)           {}
func (noopDiagnostics) ObserveRouteEvent(uint64, uint32, uint32, int64, string) {}
