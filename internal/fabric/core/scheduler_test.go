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

import "testing"

func TestSimClockFIFOAtSameTimestamp(t *testing.T) {
	c := NewSimClock()
	var order []int
	c.At(100, func() { order = append(order, 1) })
	c.At(100, func() { order = append(order, 2) })
	c.At(100, func() { order = append(order, 3) })

	c.RunUntil(100)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("want FIFO order [1 2 3], got %v", order)
	}
}

func TestSimClockOrdersByTimeFirst(t *testing.T) {
	c := NewSimClock()
	var order []int64
	c.At(300, func() { order = append(order, 300) })
	c.At(100, func() { order = append(order, 100) })
	c.At(200, func() { order = append(order, 200) })

	c.RunUntil(300)

	want := []int64{100, 200, 300}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("index %d: want %d, got %d", i, w, order[i])
		}
	}
}

func TestSimClockCancel(t *testing.T) {
	c := NewSimClock()
	fired := false
	id := c.At(100, func() { fired = true })
	c.Cancel(id)

	c.RunUntil(100)
	if fired {
		t.Fatal("want cancelled event to never fire")
	}
	if c.Pending() != 0 {
		t.Fatalf("want 0 pending after cancel, got %d", c.Pending())
	}
}

func TestSimClockAfterIsRelativeToNow(t *testing.T) {
	c := NewSimClock()
	c.RunUntil(50)
	var fireTime int64
	c.After(25, func() { fireTime = c.Now() })
	c.RunUntil(75)
	if fireTime != 75 {
		t.Fatalf("want After(25) at now=50 to fire at t=75, got %d", fireTime)
	}
}

func TestSimClockRunUntilAdvancesEvenWithNoEvents(t *testing.T) {
	c := NewSimClock()
	c.RunUntil(1000)
	if c.Now() != 1000 {
		t.Fatalf("want now=1000 with no pending events, got %d", c.Now())
	}
}
