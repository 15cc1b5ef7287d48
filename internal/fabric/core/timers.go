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

// armAgingTimer schedules a self-rearming sweep over table every
// AgingTime, per spec.md section 4.4 ("Aging") and 4.6.5. The event
// targets only the table, not any specific entry, so it is always safe to
// let it fire even after the switch has gone idle.
func (sw *Switch) armAgingTimer(table *FlowletTable) {
	var tick func()
	tick = func() {
		table.AgeOut(sw.Sched.Now(), sw.Cfg.AgingTime.Nanoseconds())
		sw.Sched.After(sw.Cfg.AgingTime.Nanoseconds(), tick)
	}
	sw.Sched.After(sw.Cfg.AgingTime.Nanoseconds(), tick)
}

// armCongaTimers schedules the DRE decay tick and the CONGA table aging
// sweep (from-leaf/to-leaf/flowlets), per spec.md section 4.4.
func (sw *Switch) armCongaTimers() {
	var decay func()
	decay = func() {
		sw.conga.decayDRE(sw.Cfg.Alpha)
		sw.Sched.After(sw.Cfg.DRETime.Nanoseconds(), decay)
	}
	sw.Sched.After(sw.Cfg.DRETime.Nanoseconds(), decay)

	var age func()
	age = func() {
		now := sw.Sched.Now()
		aging := sw.Cfg.AgingTime.Nanoseconds()
		sw.conga.age(now, aging)
		sw.Sched.After(aging, age)
	}
	sw.Sched.After(sw.Cfg.AgingTime.Nanoseconds(), age)
}

// armConweaveAgingTimer removes source- and destination-ToR flow entries
// untouched for AgingTime, per spec.md section 4.6.5.
func (sw *Switch) armConweaveAgingTimer() {
	var tick func()
	tick = func() {
		now := sw.Sched.Now()
		aging := sw.Cfg.AgingTime.Nanoseconds()
		sw.cwSource.ageOut(now, aging)
		sw.cwDest.ageOut(now, aging)
		sw.Sched.After(aging, tick)
	}
	sw.Sched.After(sw.Cfg.AgingTime.Nanoseconds(), tick)
}
