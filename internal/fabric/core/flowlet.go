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
	"fabriclb/pkg/flowkey"
	"fabriclb/pkg/path"
)

// FlowletEntry is the CONGA/LETFLOW per-flow record (spec.md section 3).
// Invariant: LastActive >= FirstActive, enforced by Touch.
type FlowletEntry struct {
	Path        path.ID
	FirstActive int64
	LastActive  int64
	Count       uint64
}

// FlowletTable maps a flow key to its current flowlet. Owned by a single
// switch; never shared across switches.
type FlowletTable struct {
	entries map[flowkey.Key]*FlowletEntry
}

func newFlowletTable() *FlowletTable {
	return &FlowletTable{entries: make(map[flowkey.Key]*FlowletEntry)}
}

// Get returns the current entry for key, if any.
func (t *FlowletTable) Get(key flowkey.Key) (*FlowletEntry, bool) {
	e, ok := t.entries[key]
	return e, ok
}

// Touch records a packet of key arriving at now on p: creates the entry on
// first sight, otherwise updates path/last-active/count in place.
func (t *FlowletTable) Touch(key flowkey.Key, now int64, p path.ID) *FlowletEntry {
	e, ok := t.entries[key]
	if !ok {
		e = &FlowletEntry{Path: p, FirstActive: now, LastActive: now, Count: 1}
		t.entries[key] = e
		return e
	}
	e.Path = p
	e.LastActive = now
	e.Count++
	return e
}

// AgeOut deletes every entry whose LastActive predates now-maxAge.
func (t *FlowletTable) AgeOut(now, maxAge int64) {
	for k, e := range t.entries {
		if now-e.LastActive > maxAge {
			delete(t.entries, k)
		}
	}
}

// Len reports the number of live flowlets (test/diagnostic use).
func (t *FlowletTable) Len() int { return len(t.entries) }
