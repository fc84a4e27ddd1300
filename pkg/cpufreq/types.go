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

package cpufreq

import (
	"github.com/intel/cpufreq-coordinator/pkg/driver"
	"github.com/intel/cpufreq-coordinator/pkg/idset"
)

// Mode selects how a Policy's limits get turned into a hardware frequency.
type Mode string

const (
	// ModePerformance pins a Policy to its maximum limit, either directly
	// through a set_policy driver or through the built-in "performance"
	// governor on a target driver.
	ModePerformance Mode = "performance"
	// ModePowersave pins a Policy to its minimum limit.
	ModePowersave Mode = "powersave"
	// ModeGoverned hands target selection to a named Governor.
	ModeGoverned Mode = "governed"
)

// Limits is a committed [min,max] window, in kHz.
type Limits struct {
	Min uint64
	Max uint64
}

// Info is the immutable hardware-reported capability data collected by
// driver.Init.
type Info struct {
	HWMin               uint64
	HWMax               uint64
	TransitionLatencyNS uint64
	// Flags mirrors the owning driver's capability flags, e.g.
	// driver.FlagConstLoops, cached here so the transition engine does
	// not need to hold a driver reference to test them.
	Flags driver.Flag
}

// UserLimits is the last user-requested window, the reference used to
// re-derive Limits whenever the QoS window changes.
type UserLimits struct {
	Min      uint64
	Max      uint64
	Mode     Mode
	Governor string
}

// Request is a caller's desired window, mode and governor: either a fresh
// user write (attribute surface) or a rebuild from stored UserLimits
// (QoS recompute, suspend/resume re-convergence).
type Request struct {
	Min      uint64
	Max      uint64
	Mode     Mode
	Governor string
}

// proposal is the mutable scratch copy the transition engine threads
// through a policy write before anything commits to the real Policy.
type proposal struct {
	min      uint64
	max      uint64
	mode     Mode
	governor string
	info     Info
}

// proposalHandle adapts a proposal to driver.PolicyHandle so driver.Verify
// can read and clamp it without ever seeing the committed Policy.
type proposalHandle struct {
	p  *Policy
	pr *proposal
}

func (h *proposalHandle) CPU() idset.ID                   { return h.p.ownerCPU }
func (h *proposalHandle) Affinity() idset.IDSet           { return h.p.affinity }
func (h *proposalHandle) Limits() (uint64, uint64)        { return h.pr.min, h.pr.max }
func (h *proposalHandle) Governor() string                { return h.pr.governor }
func (h *proposalHandle) SetInfo(i driver.Info)           { h.pr.info = fromDriverInfo(i) }
func (h *proposalHandle) SetAffinity(s idset.IDSet)       {}
func (h *proposalHandle) SetCurrentKHz(khz uint64)        {}
func (h *proposalHandle) SetLimits(min, max uint64)       { h.pr.min, h.pr.max = min, max }

// asDriverInfo converts an Info into the driver package's Info, which is
// structurally identical but kept as a separate type so this package is
// the only one that knows the coordinator's internal field layout.
func asDriverInfo(i Info) driver.Info {
	return driver.Info{HWMin: i.HWMin, HWMax: i.HWMax, TransitionLatencyNS: i.TransitionLatencyNS}
}

func fromDriverInfo(i driver.Info) Info {
	return Info{HWMin: i.HWMin, HWMax: i.HWMax, TransitionLatencyNS: i.TransitionLatencyNS}
}
