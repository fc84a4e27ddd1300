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

// Package sysfsdriver implements driver.Driver against the kernel's own
// cpufreq sysfs tree, for hosts where an in-kernel scaling driver (such as
// acpi-cpufreq or intel_pstate's passive mode) is already bound and this
// coordinator only needs to steer it rather than replace it.
package sysfsdriver

import (
	"fmt"

	"github.com/intel/cpufreq-coordinator/pkg/driver"
	"github.com/intel/cpufreq-coordinator/pkg/idset"
	logger "github.com/intel/cpufreq-coordinator/pkg/log"
	"github.com/intel/cpufreq-coordinator/pkg/sysfs"
)

const (
	entryScalingMinFreq     = "cpufreq/scaling_min_freq"
	entryScalingMaxFreq     = "cpufreq/scaling_max_freq"
	entryScalingCurFreq     = "cpufreq/scaling_cur_freq"
	entryCpuinfoMinFreq     = "cpufreq/cpuinfo_min_freq"
	entryCpuinfoMaxFreq     = "cpufreq/cpuinfo_max_freq"
	entryCpuinfoTransLat    = "cpufreq/cpuinfo_transition_latency"
	entryRelatedCPUs        = "cpufreq/related_cpus"
	entryScalingGovernor = "cpufreq/scaling_governor"
	entryBiosLimit       = "cpufreq/bios_limit"
)

var log logger.Logger = logger.NewLogger("sysfsdriver")

// Driver drives CPU frequency scaling through sysfs.
type Driver struct {
	root string
}

// New creates a sysfs driver rooted at root, normally "/sys".
func New(root string) *Driver {
	return &Driver{root: root}
}

// Name implements driver.Driver.
func (d *Driver) Name() string { return "sysfs" }

// Flags implements driver.Driver.
func (d *Driver) Flags() driver.Flag { return driver.FlagSticky }

func (d *Driver) path(cpu idset.ID) string {
	return sysfs.CPUPath(d.root, cpu)
}

// Init implements driver.Driver.
func (d *Driver) Init(p driver.PolicyHandle) error {
	base := d.path(p.CPU())

	min, err := sysfs.ReadUint64(base, entryCpuinfoMinFreq)
	if err != nil {
		return fmt.Errorf("sysfsdriver: init cpu%d: %w", p.CPU(), err)
	}
	max, err := sysfs.ReadUint64(base, entryCpuinfoMaxFreq)
	if err != nil {
		return fmt.Errorf("sysfsdriver: init cpu%d: %w", p.CPU(), err)
	}
	latency, err := sysfs.ReadUint64(base, entryCpuinfoTransLat)
	if err != nil {
		log.Warn("cpu%d: no transition latency reported, assuming 0", p.CPU())
		latency = 0
	}

	p.SetInfo(driver.Info{HWMin: min, HWMax: max, TransitionLatencyNS: latency})

	if related, err := sysfs.ReadIDSet(base, entryRelatedCPUs); err == nil {
		p.SetAffinity(related)
	}

	return nil
}

// Verify implements driver.Driver.
func (d *Driver) Verify(p driver.PolicyHandle) error {
	min, max := p.Limits()
	if min > max {
		return fmt.Errorf("sysfsdriver: invalid limits %d > %d", min, max)
	}
	return nil
}

// Exit implements driver.Driver.
func (d *Driver) Exit(p driver.PolicyHandle) error {
	return nil
}

// SetPolicy implements driver.PolicySetter: the kernel's own governor
// already applies min/max once we write them and select a governor name.
func (d *Driver) SetPolicy(p driver.PolicyHandle) error {
	base := d.path(p.CPU())
	min, max := p.Limits()

	if err := sysfs.WriteUint64(base, entryScalingMinFreq, min); err != nil {
		return err
	}
	if err := sysfs.WriteUint64(base, entryScalingMaxFreq, max); err != nil {
		return err
	}
	if gov := p.Governor(); gov != "" {
		if err := sysfs.WriteString(base, entryScalingGovernor, gov); err != nil {
			return err
		}
	}
	return nil
}

// Get implements driver.Getter.
func (d *Driver) Get(cpu idset.ID) (uint64, bool) {
	khz, err := sysfs.ReadUint64(d.path(cpu), entryScalingCurFreq)
	if err != nil {
		return 0, false
	}
	return khz, true
}

// BiosLimit implements driver.BiosLimiter.
func (d *Driver) BiosLimit(cpu idset.ID) (uint64, bool) {
	if !sysfs.Exists(d.path(cpu), entryBiosLimit) {
		return 0, false
	}
	khz, err := sysfs.ReadUint64(d.path(cpu), entryBiosLimit)
	if err != nil {
		return 0, false
	}
	return khz, true
}
