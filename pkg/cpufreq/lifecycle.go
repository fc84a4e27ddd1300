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
	"fmt"

	"github.com/intel/cpufreq-coordinator/pkg/driver"
	"github.com/intel/cpufreq-coordinator/pkg/governor"
	"github.com/intel/cpufreq-coordinator/pkg/idset"
	"github.com/intel/cpufreq-coordinator/pkg/notifier"
)

// AddCPU attaches cpu, allocating a Policy for it (or joining an existing
// hardware-managed one) and running the driver's init sequence. It is
// idempotent: calling it twice for the same already-attached CPU is a
// no-op success.
func (t *PolicyTable) AddCPU(cpu idset.ID) error {
	t.mu.Lock()
	if _, ok := t.byCPU[cpu]; ok {
		t.online.Add(cpu)
		t.mu.Unlock()
		return nil
	}
	drv := driver.Active()
	if drv == nil {
		t.mu.Unlock()
		return ErrNoSuchDevice
	}
	t.mu.Unlock()

	p := newPolicy(cpu)
	p.table = t

	t.mu.Lock()
	t.lockIndex[cpu] = cpu
	t.locks[cpu] = &policyLock{}
	t.byCPU[cpu] = p
	t.online.Add(cpu)
	t.mu.Unlock()

	return t.runTransition(cpu, func(c *transitionCtx) error {
		// Inherit a sibling's governor if one already claims cpu in its
		// Related set; otherwise fall back to the default.
		govName := t.inheritedGovernor(cpu)

		if _, lerr := c.lockExclusive(); lerr != nil {
			return lerr
		}
		p.govName = govName
		c.unlock()

		// driver.Init runs outside any lock: it may block or suspend.
		if err := drv.Init(p); err != nil {
			t.discardPolicy(cpu)
			return fmt.Errorf("%w: %v", ErrNoMemory, err)
		}

		if _, lerr := c.lockExclusive(); lerr != nil {
			return lerr
		}
		p.info.Flags = drv.Flags()
		p.limits = Limits{Min: p.info.HWMin, Max: p.info.HWMax}
		p.userLimits = UserLimits{Min: p.limits.Min, Max: p.limits.Max, Mode: ModeGoverned, Governor: govName}
		widened := p.related.Clone()
		c.unlock()

		t.Policies.Notify(notifier.PolicyEvent{Type: notifier.Start, CPU: cpu, Policy: p})

		// Fold in siblings the driver widened affinity to cover.
		redirected, err := t.foldSiblings(cpu, p, widened)
		if err != nil {
			return err
		}
		if redirected {
			return nil
		}

		// Resolve the inherited/default governor reference now that info
		// (and thus latency) is known.
		if g, gerr := governor.Get(govName); gerr == nil {
			if _, lerr := c.lockExclusive(); lerr == nil {
				p.gov = g
				c.unlock()
			}
		}

		return t.deliverGovernorEvent(p, governor.EventStart)
	})
}

// inheritedGovernor looks for an online sibling Policy whose Related set
// already claims cpu, so a newly attached CPU joins that governor instead
// of starting one of its own.
func (t *PolicyTable) inheritedGovernor(cpu idset.ID) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	for other, sibling := range t.byCPU {
		if other == cpu {
			continue
		}
		if sibling.related.Has(cpu) {
			return sibling.govName
		}
	}
	if name, ok := t.shadowGov[cpu]; ok {
		return name
	}
	return t.defaultGovernor
}

// foldSiblings folds in every online CPU the driver's reported related set
// says shares this Policy, either redirecting into an existing
// hardware-managed Policy or claiming the CPU for this one.
func (t *PolicyTable) foldSiblings(cpu idset.ID, p *Policy, widened idset.IDSet) (redirected bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, c := range widened.Members() {
		if c == cpu || !t.online.Has(c) {
			continue
		}
		if existing, ok := t.byCPU[c]; ok && existing != p {
			// Redirect: retire the local Policy, point cpu at the
			// existing hardware-managed one instead.
			t.lockIndex[cpu] = existing.ownerCPU
			delete(t.locks, cpu)
			t.byCPU[cpu] = existing
			existing.affinity.Add(cpu)
			return true, nil
		}
		t.byCPU[c] = p
		t.lockIndex[c] = cpu
		p.affinity.Add(c)
	}
	return false, nil
}

func (t *PolicyTable) discardPolicy(cpu idset.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byCPU, cpu)
	delete(t.lockIndex, cpu)
	delete(t.locks, cpu)
}

// RemoveCPU detaches cpu, migrating ownership to a surviving sibling if
// any, and tearing the Policy down once the last reference to it is
// dropped.
func (t *PolicyTable) RemoveCPU(cpu idset.ID) error {
	return t.runTransition(cpu, func(c *transitionCtx) error {
		p, err := c.lockExclusive()
		if err != nil {
			// Already offline/detached: nothing to do.
			return nil
		}
		t.mu.Lock()
		t.online.Del(cpu)
		t.mu.Unlock()

		if p.ownerCPU != cpu {
			// Not the owner: just drop this CPU from affinity.
			p.affinity.Del(cpu)
			c.unlock()
			t.mu.Lock()
			delete(t.byCPU, cpu)
			delete(t.lockIndex, cpu)
			t.mu.Unlock()
			return nil
		}

		p.affinity.Del(cpu)
		survivors := p.affinity.SortedMembers()
		govName := p.govName
		c.unlock()

		t.mu.Lock()
		t.shadowGov[cpu] = govName
		for _, s := range survivors {
			delete(t.byCPU, s)
		}
		delete(t.byCPU, cpu)
		delete(t.lockIndex, cpu)
		t.mu.Unlock()

		// Stop the governor outside the policy lock: Event may re-enter
		// the notifier bus.
		if err := t.deliverGovernorEvent(p, governor.EventStop); err != nil {
			log.Warn("cpu%d: governor stop returned %v during teardown", cpu, err)
		}

		// Arm the teardown signal and wait for every outstanding Get
		// reference to be released before tearing down the driver side.
		p.markDying()
		<-p.teardown

		if drv := driver.Active(); drv != nil {
			if err := drv.Exit(p); err != nil {
				log.Warn("cpu%d: driver exit returned %v", cpu, err)
			}
		}

		delete(t.locks, cpu)

		if len(survivors) > 0 {
			return t.AddCPU(survivors[0])
		}
		return nil
	})
}
