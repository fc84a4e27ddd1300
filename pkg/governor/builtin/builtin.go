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

// Package builtin implements the three governors the coordinator always
// registers itself, regardless of which (if any) elaborate pluggable
// governors a deployment adds: "performance", which pins a Policy to its
// max limit, "powersave", which pins it to its min limit, and "userspace",
// which holds a caller-chosen setpoint. The first two are also
// the fallback target for a Targeter-capable driver that is asked for
// mode Performance/Powersave directly, without going through a named
// governor at all.
package builtin

import (
	"fmt"
	"sync"

	"github.com/intel/cpufreq-coordinator/pkg/governor"
	"github.com/intel/cpufreq-coordinator/pkg/idset"
)

// Performance pins a Policy to its current maximum limit.
type Performance struct{}

// Name implements governor.Governor.
func (Performance) Name() string { return "performance" }

// Event implements governor.Governor.
func (Performance) Event(p governor.PolicyHandle, ev governor.Event) error {
	switch ev {
	case governor.EventStart, governor.EventLimitsChanged:
		_, max := p.Limits()
		return p.SetTargetKHz(max, true)
	case governor.EventStop, governor.EventUpdatePoll:
		return nil
	}
	return nil
}

// Powersave pins a Policy to its current minimum limit.
type Powersave struct{}

// Name implements governor.Governor.
func (Powersave) Name() string { return "powersave" }

// Event implements governor.Governor.
func (Powersave) Event(p governor.PolicyHandle, ev governor.Event) error {
	switch ev {
	case governor.EventStart, governor.EventLimitsChanged:
		min, _ := p.Limits()
		return p.SetTargetKHz(min, false)
	case governor.EventStop, governor.EventUpdatePoll:
		return nil
	}
	return nil
}

// Userspace exposes a single caller-chosen target frequency through
// scaling_setspeed and otherwise holds it steady, reclamping into range
// whenever limits change underneath it.
type Userspace struct {
	mu        sync.Mutex
	setpoints map[idset.ID]uint64
}

// NewUserspace creates an empty userspace governor.
func NewUserspace() *Userspace {
	return &Userspace{setpoints: map[idset.ID]uint64{}}
}

// Name implements governor.Governor.
func (u *Userspace) Name() string { return "userspace" }

func clamp(khz, min, max uint64) uint64 {
	if khz < min {
		return min
	}
	if khz > max {
		return max
	}
	return khz
}

// Event implements governor.Governor.
func (u *Userspace) Event(p governor.PolicyHandle, ev governor.Event) error {
	switch ev {
	case governor.EventStart, governor.EventLimitsChanged:
		min, max := p.Limits()
		u.mu.Lock()
		khz, ok := u.setpoints[p.CPU()]
		u.mu.Unlock()
		if !ok {
			khz = min
		}
		return p.SetTargetKHz(clamp(khz, min, max), false)
	}
	return nil
}

// SetSetSpeed implements governor.SpeedSetter.
func (u *Userspace) SetSetSpeed(p governor.PolicyHandle, khz uint64) error {
	min, max := p.Limits()
	khz = clamp(khz, min, max)
	u.mu.Lock()
	u.setpoints[p.CPU()] = khz
	u.mu.Unlock()
	return p.SetTargetKHz(khz, false)
}

// ShowSetSpeed implements governor.SpeedShower.
func (u *Userspace) ShowSetSpeed(p governor.PolicyHandle) (uint64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	khz, ok := u.setpoints[p.CPU()]
	if !ok {
		return 0, fmt.Errorf("userspace: no setpoint recorded for cpu%d yet", p.CPU())
	}
	return khz, nil
}

// Register installs the built-in governors into the package-level
// governor registry. Call it once during coordinator startup.
func Register() {
	governor.Register(Performance{})
	governor.Register(Powersave{})
	governor.Register(NewUserspace())
}
