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

// Package driver defines the hardware driver contract and the single-active
// driver registry the coordinator programs frequency scaling through.
//
// Exactly zero or one Driver can be registered at a time: the registry
// refuses a second Register() call until the first one is removed. Every
// outstanding Policy reference pins the active driver, so Unregister fails
// with a "busy" error while any caller still holds one.
package driver

import (
	"fmt"
	"sync"

	"github.com/intel/cpufreq-coordinator/pkg/idset"
)

// Flag describes optional driver behavior.
type Flag uint

const (
	// FlagConstLoops marks a driver whose loop calibration does not track
	// the current frequency; the coordinator's PollCPU skips out-of-sync
	// detection for it.
	FlagConstLoops Flag = 1 << iota
	// FlagSticky marks a driver that may remain registered even if no CPU
	// could be initialized. Register never initializes CPUs, so every
	// driver stays registered either way; the registry does not read it.
	FlagSticky
)

// Relation biases Target toward the nearest available frequency.
type Relation int

const (
	// RelationLow selects the nearest frequency at or below the target.
	RelationLow Relation = iota
	// RelationHigh selects the nearest frequency at or above the target.
	RelationHigh
)

// Info is hardware-reported capability data a driver fills in during Init.
type Info struct {
	HWMin               uint64
	HWMax               uint64
	TransitionLatencyNS uint64
}

// PolicyHandle is the minimal view of a coordinator Policy a Driver needs.
// It exists so this package never imports the coordinator's core package.
type PolicyHandle interface {
	CPU() idset.ID
	Affinity() idset.IDSet
	Limits() (min, max uint64)
	Governor() string
	SetInfo(Info)
	SetAffinity(idset.IDSet)
	SetCurrentKHz(khz uint64)
	// SetLimits lets Verify clamp a proposed window to a lawful one.
	SetLimits(min, max uint64)
}

// Driver is the contract every hardware backend implements. A driver
// supports exactly one of the PolicySetter or Targeter capabilities below;
// the rest are optional side-interfaces a driver may additionally satisfy.
type Driver interface {
	// Name identifies the driver, e.g. "acpi-cpufreq".
	Name() string
	// Flags reports this driver's optional behavior bits.
	Flags() Flag
	// Init is called once per CPU the first time it is added to a Policy.
	// It must fill in p's Info via SetInfo.
	Init(p PolicyHandle) error
	// Verify clamps/validates a proposed set of limits against hardware
	// capability before they are committed to the Policy.
	Verify(p PolicyHandle) error
	// Exit tears down whatever Init set up for p.
	Exit(p PolicyHandle) error
}

// PolicySetter is implemented by drivers that program an entire policy
// (min, max, governor string) atomically in hardware or firmware.
type PolicySetter interface {
	SetPolicy(p PolicyHandle) error
}

// Targeter is implemented by drivers that only accept a single target
// frequency, relying on a Governor to pick it.
type Targeter interface {
	Target(p PolicyHandle, freqKHz uint64, rel Relation) error
}

// Getter reports the last known running frequency of a single CPU.
type Getter interface {
	Get(cpu idset.ID) (uint64, bool)
}

// AvgGetter reports a hardware-measured average frequency, distinct from
// the last requested set-point Get returns.
type AvgGetter interface {
	GetAvg(p PolicyHandle, cpu idset.ID) (uint64, bool)
}

// Suspender is implemented by drivers that need to quiesce hardware state
// across a system suspend.
type Suspender interface {
	Suspend(p PolicyHandle) error
}

// Resumer is the Suspend counterpart, run on resume.
type Resumer interface {
	Resume(p PolicyHandle) error
}

// BiosLimiter reports a firmware-imposed frequency ceiling, independent of
// any user or QoS limit.
type BiosLimiter interface {
	BiosLimit(cpu idset.ID) (uint64, bool)
}

var (
	mu     sync.Mutex
	active Driver
	pins   int
)

// Register installs d as the active driver. It fails if a driver is
// already registered.
func Register(d Driver) error {
	mu.Lock()
	defer mu.Unlock()

	if active != nil {
		return fmt.Errorf("driver: %q already registered", active.Name())
	}
	active = d
	return nil
}

// Unregister removes the active driver. It fails with a "busy" error while
// any Policy reference still pins it.
func Unregister() error {
	mu.Lock()
	defer mu.Unlock()

	if active == nil {
		return nil
	}
	if pins > 0 {
		return fmt.Errorf("driver: %q busy: %d pinned reference(s)", active.Name(), pins)
	}
	active = nil
	return nil
}

// Active returns the currently registered driver, or nil if none is.
func Active() Driver {
	mu.Lock()
	defer mu.Unlock()
	return active
}

// Pin increments the active driver's reference count, preventing
// Unregister from succeeding until a matching Unpin is issued. It fails if
// no driver is registered.
func Pin() (Driver, error) {
	mu.Lock()
	defer mu.Unlock()
	if active == nil {
		return nil, fmt.Errorf("driver: no driver registered")
	}
	pins++
	return active, nil
}

// Unpin reverses a prior successful Pin.
func Unpin() {
	mu.Lock()
	defer mu.Unlock()
	if pins > 0 {
		pins--
	}
}
