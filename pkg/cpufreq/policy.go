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
	"sync"
	"sync/atomic"

	"github.com/intel/cpufreq-coordinator/pkg/driver"
	"github.com/intel/cpufreq-coordinator/pkg/governor"
	"github.com/intel/cpufreq-coordinator/pkg/idset"
)

// Policy is the coordinator's state for one affinity set of CPUs that must
// share a frequency. Field access is never synchronized by Policy itself:
// mutation paths take the PolicyTable's per-lock-index reader-writer lock,
// while the exported accessors and some hot paths (SetTargetKHz, PollCPU)
// read fields without it.
type Policy struct {
	ownerCPU idset.ID
	affinity idset.IDSet
	related  idset.IDSet

	info       Info
	limits     Limits
	userLimits UserLimits
	mode       Mode

	gov     governor.Governor
	govName string

	currentKHz uint64

	refs     int32
	dying    int32
	teardown chan struct{}
	once     sync.Once

	table *PolicyTable
}

func newPolicy(owner idset.ID) *Policy {
	return &Policy{
		ownerCPU: owner,
		affinity: idset.New(owner),
		related:  idset.New(owner),
		teardown: make(chan struct{}),
	}
}

// OwnerCPU returns the CPU whose attribute surface is authoritative for
// this Policy.
func (p *Policy) OwnerCPU() idset.ID { return p.ownerCPU }

// AffinitySet returns a copy of the set of currently-online CPUs this
// Policy controls.
func (p *Policy) AffinitySet() idset.IDSet { return p.affinity.Clone() }

// Related returns the set of CPUs that may eventually be controlled by
// this Policy, including currently-offline siblings.
func (p *Policy) Related() idset.IDSet { return p.related.Clone() }

// CommittedLimits returns the currently active, QoS-clamped [min,max].
func (p *Policy) CommittedLimits() Limits { return p.limits }

// RequestedLimits returns the last user-requested window.
func (p *Policy) RequestedLimits() UserLimits { return p.userLimits }

// HardwareInfo returns the immutable hardware-reported bounds.
func (p *Policy) HardwareInfo() Info { return p.info }

// CurrentMode returns the Policy's current mode.
func (p *Policy) CurrentMode() Mode { return p.mode }

// GovernorName returns the name of the active governor, including the
// built-in "performance" or "powersave" governor that serves those modes
// on a Targeter driver, or "" if no governor is attached.
func (p *Policy) GovernorName() string { return p.govName }

// CurrentFrequency returns the most recently observed frequency in kHz.
func (p *Policy) CurrentFrequency() uint64 { return p.currentKHz }

func (p *Policy) refCount() int32 { return atomic.LoadInt32(&p.refs) }

func (p *Policy) get() {
	atomic.AddInt32(&p.refs, 1)
}

func (p *Policy) put() {
	if atomic.AddInt32(&p.refs, -1) == 0 && atomic.LoadInt32(&p.dying) == 1 {
		p.once.Do(func() { close(p.teardown) })
	}
}

// markDying arms the teardown signal; it fires once the last outstanding
// reference is put.
func (p *Policy) markDying() {
	atomic.StoreInt32(&p.dying, 1)
	if p.refCount() == 0 {
		p.once.Do(func() { close(p.teardown) })
	}
}

// --- driver.PolicyHandle ---

// CPU implements driver.PolicyHandle and governor.PolicyHandle.
func (p *Policy) CPU() idset.ID { return p.ownerCPU }

// Affinity implements driver.PolicyHandle and governor.PolicyHandle.
func (p *Policy) Affinity() idset.IDSet { return p.affinity }

// Limits implements driver.PolicyHandle and governor.PolicyHandle.
func (p *Policy) Limits() (uint64, uint64) { return p.limits.Min, p.limits.Max }

// Governor implements driver.PolicyHandle.
func (p *Policy) Governor() string { return p.govName }

// SetInfo implements driver.PolicyHandle.
func (p *Policy) SetInfo(i driver.Info) { p.info = fromDriverInfo(i) }

// SetAffinity implements driver.PolicyHandle.
func (p *Policy) SetAffinity(set idset.IDSet) {
	p.related = set.Clone()
	p.related.Add(p.affinity.Members()...)
}

// SetCurrentKHz implements driver.PolicyHandle.
func (p *Policy) SetCurrentKHz(khz uint64) { p.currentKHz = khz }

// SetLimits implements driver.PolicyHandle.
func (p *Policy) SetLimits(min, max uint64) { p.limits = Limits{Min: min, Max: max} }

// --- governor.PolicyHandle ---

// CurrentKHz implements governor.PolicyHandle.
func (p *Policy) CurrentKHz() uint64 { return p.currentKHz }
