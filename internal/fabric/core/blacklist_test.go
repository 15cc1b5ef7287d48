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

	"fabriclb/pkg/path"
)

func TestBlacklistInsertAndExpiry(t *testing.T) {
	bl := NewBlacklist(64, 1)
	var p path.ID = 0x010203

	if !bl.IsGood(p, 0) {
		t.Fatal("want an untouched path to be good")
	}
	bl.Insert(p, 1000)
	if bl.IsGood(p, 500) {
		t.Fatal("want path bad before invalid-until")
	}
	if !bl.IsGood(p, 1000) {
		t.Fatal("want path good once invalid-until has elapsed")
	}
}

func TestBlacklistLossyOverwrite(t *testing.T) {
	bl := NewBlacklist(1, 1) // a single slot: any two distinct paths collide.
	var p, q path.ID = 1, 2

	bl.Insert(p, 1000)
	bl.Insert(q, 2000)

	if bl.IsGood(p, 0) != true {
		t.Fatal("want p's entry silently overwritten by q, so p reads as good")
	}
	if bl.IsGood(q, 500) {
		t.Fatal("want q to occupy the single slot as bad before its own invalid-until")
	}
}

func TestBlacklistDirectMappedNeverChains(t *testing.T) {
	bl := NewBlacklist(4, 1)
	if len(bl.slots) != 4 {
		t.Fatalf("want fixed 4 slots at construction, got %d", len(bl.slots))
	}
}
