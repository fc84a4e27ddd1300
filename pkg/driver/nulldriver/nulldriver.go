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

// Package nulldriver implements an in-memory Targeter driver with no
// hardware backing, used by unit tests and by cpufreqd when started with
// -null-driver.
package nulldriver

import (
	"sync"

	"github.com/intel/cpufreq-coordinator/pkg/driver"
	"github.com/intel/cpufreq-coordinator/pkg/idset"
)

// Driver is a fake Targeter that just remembers the last frequency it was
// asked to set, per CPU.
type Driver struct {
	mu       sync.Mutex
	hwMin    uint64
	hwMax    uint64
	latency  uint64
	current  map[idset.ID]uint64
	failInit map[idset.ID]bool
}

// New creates a null driver reporting the given hardware range.
func New(hwMinKHz, hwMaxKHz uint64) *Driver {
	return &Driver{
		hwMin:   hwMinKHz,
		hwMax:   hwMaxKHz,
		latency: 10_000_000, // 10ms, a plausible ACPI-class latency
		current: map[idset.ID]uint64{},
	}
}

// SetLatency overrides the transition latency Init reports, for exercising
// governors that reject a driver whose hardware is too slow to switch to.
func (d *Driver) SetLatency(ns uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latency = ns
}

// FailInitFor makes Init return an error for the given CPU, simulating a
// CPU the driver cannot program (e.g. unsupported silicon stepping).
func (d *Driver) FailInitFor(cpu idset.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failInit == nil {
		d.failInit = map[idset.ID]bool{}
	}
	d.failInit[cpu] = true
}

// Name implements driver.Driver.
func (d *Driver) Name() string { return "null" }

// Flags implements driver.Driver.
func (d *Driver) Flags() driver.Flag { return 0 }

// Init implements driver.Driver.
func (d *Driver) Init(p driver.PolicyHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failInit[p.CPU()] {
		return &InitError{CPU: p.CPU()}
	}
	p.SetInfo(driver.Info{HWMin: d.hwMin, HWMax: d.hwMax, TransitionLatencyNS: d.latency})
	d.current[p.CPU()] = d.hwMax
	return nil
}

// Verify implements driver.Driver. The null driver accepts any range
// within the hardware bounds it reported.
func (d *Driver) Verify(p driver.PolicyHandle) error {
	min, max := p.Limits()
	if min > max || min < d.hwMin || max > d.hwMax {
		return &InvalidLimitsError{Min: min, Max: max}
	}
	return nil
}

// Exit implements driver.Driver.
func (d *Driver) Exit(p driver.PolicyHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.current, p.CPU())
	return nil
}

// Target implements driver.Targeter.
func (d *Driver) Target(p driver.PolicyHandle, freqKHz uint64, rel driver.Relation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current[p.CPU()] = freqKHz
	for _, cpu := range p.Affinity().Members() {
		d.current[cpu] = freqKHz
	}
	return nil
}

// Get implements driver.Getter.
func (d *Driver) Get(cpu idset.ID) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	khz, ok := d.current[cpu]
	return khz, ok
}

// InitError is returned by Init for a CPU marked via FailInitFor.
type InitError struct {
	CPU idset.ID
}

func (e *InitError) Error() string {
	return "nulldriver: init refused for this CPU"
}

// InvalidLimitsError is returned by Verify when min > max or the range
// falls outside the hardware bounds.
type InvalidLimitsError struct {
	Min, Max uint64
}

func (e *InvalidLimitsError) Error() string {
	return "nulldriver: invalid limits"
}
