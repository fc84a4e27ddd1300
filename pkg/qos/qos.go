// Copyright 2019 Intel Corporation. All Rights Reserved.
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

// Package qos implements the per-CPU frequency QoS aggregation the
// coordinator clamps user-requested limits against: any number of callers
// may each hold a floor (minimum acceptable frequency) and/or a ceiling
// (maximum acceptable frequency) request for a CPU; the effective
// constraint handed to the transition engine is always the tightest one
// outstanding (max of floors, min of ceilings). A request value of zero
// means "no constraint" and is never aggregated.
package qos

import (
	"sync"

	"github.com/intel/cpufreq-coordinator/pkg/idset"
)

// Bounds is the effective aggregated constraint for one CPU. A zero Floor
// or Ceiling means unconstrained on that side.
type Bounds struct {
	Floor   uint64
	Ceiling uint64
}

// Aggregator tracks outstanding floor/ceiling requests per CPU and
// recomputes the effective Bounds whenever one changes.
type Aggregator struct {
	mu       sync.RWMutex
	floors   map[idset.ID]map[string]uint64
	ceils    map[idset.ID]map[string]uint64
	watchers []func(idset.ID)
}

// NewAggregator creates an empty QoS aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		floors: map[idset.ID]map[string]uint64{},
		ceils:  map[idset.ID]map[string]uint64{},
	}
}

// Watch registers fn to be called, with the affected CPU, whenever a floor
// or ceiling request for that CPU is set or cleared, whether or not the
// effective Bounds changed as a result.
func (a *Aggregator) Watch(fn func(idset.ID)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.watchers = append(a.watchers, fn)
}

// SetFloor records requester's floor request for cpu. A khz of zero clears
// any previous request from requester.
func (a *Aggregator) SetFloor(cpu idset.ID, requester string, khz uint64) {
	a.set(cpu, requester, khz, true)
}

// SetCeiling records requester's ceiling request for cpu. A khz of zero
// clears any previous request from requester.
func (a *Aggregator) SetCeiling(cpu idset.ID, requester string, khz uint64) {
	a.set(cpu, requester, khz, false)
}

func (a *Aggregator) set(cpu idset.ID, requester string, khz uint64, floor bool) {
	a.mu.Lock()
	m := a.floors
	if !floor {
		m = a.ceils
	}
	per, ok := m[cpu]
	if !ok {
		per = map[string]uint64{}
		m[cpu] = per
	}
	if khz == 0 {
		delete(per, requester)
	} else {
		per[requester] = khz
	}
	watchers := append([]func(idset.ID){}, a.watchers...)
	a.mu.Unlock()

	for _, fn := range watchers {
		fn(cpu)
	}
}

// Bounds returns the currently effective constraint for cpu.
func (a *Aggregator) Bounds(cpu idset.ID) Bounds {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var b Bounds
	for _, khz := range a.floors[cpu] {
		if khz > b.Floor {
			b.Floor = khz
		}
	}
	for _, khz := range a.ceils[cpu] {
		if b.Ceiling == 0 || khz < b.Ceiling {
			b.Ceiling = khz
		}
	}
	return b
}

// Clamp applies b to the [min, max] range a caller proposed, returning the
// clamped range. If the aggregated floor exceeds the aggregated ceiling,
// the ceiling wins, matching how a newer, stricter request always takes
// precedence over a looser one left outstanding by another caller.
func (b Bounds) Clamp(min, max uint64) (uint64, uint64) {
	if b.Floor > 0 && min < b.Floor {
		min = b.Floor
	}
	if b.Ceiling > 0 && max > b.Ceiling {
		max = b.Ceiling
	}
	if min > max {
		min = max
	}
	return min, max
}
