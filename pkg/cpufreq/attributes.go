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

// Package cpufreq's attribute surface exposes a Policy as a set of named,
// typed attributes; the filesystem (or any other) publication layer that
// maps these onto files/symlinks lives outside this package.
package cpufreq

import (
	"strconv"
	"strings"

	"github.com/intel/cpufreq-coordinator/pkg/driver"
	"github.com/intel/cpufreq-coordinator/pkg/governor"
	"github.com/intel/cpufreq-coordinator/pkg/idset"
)

// Attribute names defined on a Policy's surface.
const (
	AttrCpuinfoMinFreq          = "cpuinfo_min_freq"
	AttrCpuinfoMaxFreq          = "cpuinfo_max_freq"
	AttrCpuinfoTransitionLat    = "cpuinfo_transition_latency"
	AttrCpuinfoCurFreq          = "cpuinfo_cur_freq"
	AttrScalingMinFreq          = "scaling_min_freq"
	AttrScalingMaxFreq          = "scaling_max_freq"
	AttrScalingCurFreq          = "scaling_cur_freq"
	AttrScalingGovernor         = "scaling_governor"
	AttrScalingDriver           = "scaling_driver"
	AttrScalingAvailGovernors   = "scaling_available_governors"
	AttrScalingSetSpeed         = "scaling_setspeed"
	AttrAffectedCPUs            = "affected_cpus"
	AttrRelatedCPUs             = "related_cpus"
	AttrBiosLimit               = "bios_limit"
	AttrPolicyMinFreq           = "policy_min_freq"
	AttrPolicyMaxFreq           = "policy_max_freq"
	maxAttributeNameValueLength = 15
)

// ReadAttribute returns the text representation of one of cpu's Policy
// attributes.
func (t *PolicyTable) ReadAttribute(cpu idset.ID, name string) (string, error) {
	var out string
	err := t.WithPolicyReadLocked(cpu, func(p *Policy) error {
		switch name {
		case AttrCpuinfoMinFreq:
			out = strconv.FormatUint(p.info.HWMin, 10)
		case AttrCpuinfoMaxFreq:
			out = strconv.FormatUint(p.info.HWMax, 10)
		case AttrCpuinfoTransitionLat:
			out = strconv.FormatUint(p.info.TransitionLatencyNS, 10)
		case AttrCpuinfoCurFreq:
			drv := driver.Active()
			getter, ok := drv.(driver.Getter)
			if !ok {
				return ErrNoSuchDevice
			}
			khz, ok := getter.Get(cpu)
			if !ok {
				return ErrIoError
			}
			out = strconv.FormatUint(khz, 10)
		case AttrScalingMinFreq, AttrPolicyMinFreq:
			out = strconv.FormatUint(p.limits.Min, 10)
		case AttrScalingMaxFreq, AttrPolicyMaxFreq:
			out = strconv.FormatUint(p.limits.Max, 10)
		case AttrScalingCurFreq:
			out = strconv.FormatUint(p.currentKHz, 10)
		case AttrScalingGovernor:
			if p.mode != ModeGoverned {
				out = string(p.mode)
			} else {
				out = p.govName
			}
		case AttrScalingDriver:
			if drv := driver.Active(); drv != nil {
				out = drv.Name()
			}
		case AttrScalingAvailGovernors:
			out = strings.Join(governor.Names(), " ")
		case AttrScalingSetSpeed:
			if p.gov == nil {
				return ErrNoSuchDevice
			}
			shower, ok := p.gov.(governor.SpeedShower)
			if !ok {
				return ErrNoSuchDevice
			}
			khz, err := shower.ShowSetSpeed(p)
			if err != nil {
				return err
			}
			out = strconv.FormatUint(khz, 10)
		case AttrAffectedCPUs:
			out = p.affinity.String()
		case AttrRelatedCPUs:
			out = p.related.Clone().StringWithSeparator(",")
		case AttrBiosLimit:
			drv := driver.Active()
			limiter, ok := drv.(driver.BiosLimiter)
			if !ok {
				return ErrNoSuchDevice
			}
			khz, ok := limiter.BiosLimit(cpu)
			if !ok {
				return ErrNoSuchDevice
			}
			out = strconv.FormatUint(khz, 10)
		default:
			return ErrInvalidArgument
		}
		return nil
	})
	return out, err
}

// WriteAttribute parses value and applies it to one of cpu's writable
// Policy attributes, running the transition engine where the attribute
// implies a policy mutation.
func (t *PolicyTable) WriteAttribute(cpu idset.ID, name, value string) error {
	switch name {
	case AttrScalingMinFreq:
		khz, err := parseKHz(value)
		if err != nil {
			return err
		}
		req, err := t.currentRequest(cpu)
		if err != nil {
			return err
		}
		req.Min = khz
		return t.SetPolicy(cpu, req)

	case AttrScalingMaxFreq:
		khz, err := parseKHz(value)
		if err != nil {
			return err
		}
		req, err := t.currentRequest(cpu)
		if err != nil {
			return err
		}
		req.Max = khz
		return t.SetPolicy(cpu, req)

	case AttrScalingGovernor:
		name := strings.TrimSpace(value)
		if name == "" || len(name) > maxAttributeNameValueLength {
			return ErrInvalidArgument
		}
		req, err := t.currentRequest(cpu)
		if err != nil {
			return err
		}
		switch Mode(name) {
		case ModePerformance, ModePowersave:
			req.Mode = Mode(name)
			req.Governor = ""
		default:
			req.Mode = ModeGoverned
			req.Governor = name
		}
		return t.SetPolicy(cpu, req)

	case AttrScalingSetSpeed:
		khz, err := parseKHz(value)
		if err != nil {
			return err
		}
		// SetSetSpeed drives the hardware through SetTargetKHz, which takes
		// the policy's write lock, so it runs after the read lock is dropped.
		var setter governor.SpeedSetter
		var policy *Policy
		err = t.WithPolicyReadLocked(cpu, func(p *Policy) error {
			if p.gov == nil {
				return ErrNoSuchDevice
			}
			s, ok := p.gov.(governor.SpeedSetter)
			if !ok {
				return ErrInvalidArgument
			}
			setter, policy = s, p
			return nil
		})
		if err != nil {
			return err
		}
		return setter.SetSetSpeed(policy, khz)

	default:
		return ErrInvalidArgument
	}
}

func (t *PolicyTable) currentRequest(cpu idset.ID) (Request, error) {
	var req Request
	err := t.WithPolicyReadLocked(cpu, func(p *Policy) error {
		req = Request{Min: p.userLimits.Min, Max: p.userLimits.Max, Mode: p.userLimits.Mode, Governor: p.userLimits.Governor}
		return nil
	})
	return req, err
}

func parseKHz(value string) (uint64, error) {
	khz, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, ErrInvalidArgument
	}
	return khz, nil
}
