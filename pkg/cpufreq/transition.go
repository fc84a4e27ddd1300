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

// SetPolicy is the transition engine's canonical mutation path. It
// validates req against the active driver and QoS window, fans the result
// out on the policy notifier bus, and on success commits new limits (and,
// for a Targeter driver, performs any governor switch the request implies)
// to cpu's Policy.
func (t *PolicyTable) SetPolicy(cpu idset.ID, req Request) error {
	return t.runTransition(cpu, func(c *transitionCtx) error {
		p, err := c.lockExclusive()
		if err != nil {
			return err
		}

		drv := driver.Active()
		if drv == nil {
			c.unlock()
			return ErrNoSuchDevice
		}

		bounds := t.QoS.Bounds(cpu)
		qmin, qmax := bounds.Floor, bounds.Ceiling
		// Clamp each QoS bound against the opposite user-requested bound
		// so a fresh floor cannot silently raise the ceiling or vice versa.
		if qmin > req.Max {
			qmin = req.Max
		}
		if qmax != 0 && qmax < req.Min {
			qmax = req.Min
		}

		pr := proposal{min: req.Min, max: req.Max, mode: req.Mode, governor: req.Governor, info: p.info}
		if qmin > pr.min {
			pr.min = qmin
		}
		if qmax != 0 && pr.max > qmax {
			pr.max = qmax
		}

		if pr.min > req.Max || pr.max < req.Min {
			c.unlock()
			return ErrInvalidRange
		}

		ph := &proposalHandle{p: p, pr: &pr}

		if err := drv.Verify(ph); err != nil {
			c.unlock()
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}

		if err := t.Policies.Notify(notifier.PolicyEvent{Type: notifier.Adjust, CPU: cpu, Policy: p}); err != nil {
			t.Policies.Notify(notifier.PolicyEvent{Type: notifier.Incompatible, CPU: cpu, Policy: p})
			c.unlock()
			return err
		}

		// Subscribers may have widened the window past hardware limits.
		if err := drv.Verify(ph); err != nil {
			c.unlock()
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}

		if err := t.Policies.Notify(notifier.PolicyEvent{Type: notifier.Notify, CPU: cpu, Policy: p}); err != nil {
			c.unlock()
			return err
		}

		p.limits = Limits{Min: pr.min, Max: pr.max}
		p.userLimits = UserLimits{Min: req.Min, Max: req.Max, Mode: req.Mode, Governor: req.Governor}

		effective := req.Governor
		if req.Mode != ModeGoverned {
			effective = string(req.Mode)
		}
		needsSwitch := effective != p.govName

		_, isSetter := drv.(driver.PolicySetter)
		if isSetter {
			p.mode = req.Mode
		}

		c.unlock()

		if isSetter {
			setter := drv.(driver.PolicySetter)
			if err := setter.SetPolicy(p); err != nil {
				return fmt.Errorf("%w: %v", ErrIoError, err)
			}
			return nil
		}

		if needsSwitch {
			if err := t.switchGovernor(c, cpu, p, req.Mode, effective); err != nil {
				return err
			}
		}

		return t.deliverGovernorEvent(p, governor.EventLimitsChanged)
	})
}

// switchGovernor moves a Policy from its current governor to a newly
// requested one. It must never be called with the Policy's rw lock held:
// Stop, and possibly Start, may themselves re-enter the notifier bus.
func (t *PolicyTable) switchGovernor(c *transitionCtx, cpu idset.ID, p *Policy, mode Mode, requested string) error {
	newGov, err := governor.Get(requested)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGovernor, err)
	}

	if lim, ok := newGov.(governor.LatencyLimiter); ok && p.info.TransitionLatencyNS > lim.MaxLatencyNS() {
		log.Warn("cpu%d: governor %q cannot tolerate %dns transition latency, falling back to performance",
			cpu, requested, p.info.TransitionLatencyNS)
		fallback, ferr := governor.Get(string(ModePerformance))
		if ferr != nil {
			return fmt.Errorf("%w: %v", ErrInvalidGovernor, ferr)
		}
		newGov, requested, mode = fallback, fallback.Name(), ModePerformance
	}

	old, oldName := p.gov, p.govName

	if old != nil {
		if err := old.Event(p, governor.EventStop); err != nil {
			log.Warn("cpu%d: governor %q stop returned %v, proceeding with switch", cpu, oldName, err)
		}
	}

	if err := newGov.Event(p, governor.EventStart); err != nil {
		if old == nil {
			return fmt.Errorf("%w: %v", ErrInvalidGovernor, err)
		}
		if rerr := old.Event(p, governor.EventStart); rerr != nil {
			if _, lerr := c.lockExclusive(); lerr == nil {
				p.gov, p.govName = nil, ""
				c.unlock()
			}
			return fmt.Errorf("%w: rollback to %q failed: %v (original: %v)", ErrUngoverned, oldName, rerr, err)
		}
		return fmt.Errorf("%w: %v", ErrInvalidGovernor, err)
	}

	if _, lerr := c.lockExclusive(); lerr == nil {
		p.gov, p.govName, p.mode = newGov, requested, mode
		c.unlock()
	}
	return nil
}

func (t *PolicyTable) deliverGovernorEvent(p *Policy, ev governor.Event) error {
	if p.gov == nil {
		return nil
	}
	return p.gov.Event(p, ev)
}

// SetTargetKHz implements governor.PolicyHandle: a governor asks the
// coordinator to drive the active Targeter driver to khz, bracketed by a
// PreChange/PostChange pair on the transition bus like every other
// driver-initiated frequency change.
func (p *Policy) SetTargetKHz(khz uint64, preferHigh bool) error {
	drv := driver.Active()
	targeter, ok := drv.(driver.Targeter)
	if !ok {
		return ErrIoError
	}

	rel := driver.RelationLow
	if preferHigh {
		rel = driver.RelationHigh
	}

	old := p.currentKHz
	p.table.Transitions.Notify(notifier.TransitionEvent{CPU: p.ownerCPU, Old: old, New: khz, Phase: notifier.PreChange})

	if err := targeter.Target(p, khz, rel); err != nil {
		return fmt.Errorf("%w: %v", ErrIoError, err)
	}

	p.table.WithPolicyWriteLocked(p.ownerCPU, func(pp *Policy) error {
		pp.currentKHz = khz
		return nil
	})

	p.table.Transitions.Notify(notifier.TransitionEvent{CPU: p.ownerCPU, Old: old, New: khz, Phase: notifier.PostChange})
	return nil
}

// PollCPU detects a Policy whose recorded frequency has drifted from what
// the driver actually measures: it asks the driver for cpu's observed
// frequency and, if it disagrees with the Policy's current frequency and
// the driver does not set FlagConstLoops, synthesizes a PreChange/
// PostChange pair and re-applies the Policy's stored limits so any active
// governor re-converges.
func (t *PolicyTable) PollCPU(cpu idset.ID) error {
	p, release, err := t.Get(cpu)
	if err != nil {
		return err
	}
	defer release()

	drv := driver.Active()
	getter, ok := drv.(driver.Getter)
	if !ok {
		return nil
	}

	observed, ok := getter.Get(cpu)
	if !ok {
		return nil
	}

	if p.info.Flags&driver.FlagConstLoops != 0 {
		return nil
	}

	old := p.currentKHz
	if observed == old {
		return nil
	}

	repairLog.Debug("cpu%d: out of sync, current_khz=%d observed=%d, repairing", cpu, old, observed)

	t.Transitions.Notify(notifier.TransitionEvent{CPU: cpu, Old: old, New: observed, Phase: notifier.PreChange})
	t.WithPolicyWriteLocked(cpu, func(pp *Policy) error {
		pp.currentKHz = observed
		return nil
	})
	t.Transitions.Notify(notifier.TransitionEvent{CPU: cpu, Old: old, New: observed, Phase: notifier.PostChange})

	return t.UpdatePolicy(cpu)
}

// UpdatePolicy rebuilds a Request from a Policy's stored UserLimits and
// re-applies it through SetPolicy, so a change in the QoS window or a
// repaired out-of-sync reading is reflected in committed Limits.
func (t *PolicyTable) UpdatePolicy(cpu idset.ID) error {
	var req Request
	err := t.WithPolicyReadLocked(cpu, func(p *Policy) error {
		req = Request{
			Min:      p.userLimits.Min,
			Max:      p.userLimits.Max,
			Mode:     p.userLimits.Mode,
			Governor: p.userLimits.Governor,
		}
		return nil
	})
	if err != nil {
		return err
	}
	return t.SetPolicy(cpu, req)
}

func (t *PolicyTable) handleQoSChange(cpu idset.ID) {
	if !t.isOnline(cpu) {
		return
	}
	if err := t.UpdatePolicy(cpu); err != nil {
		log.Warn("cpu%d: QoS-triggered update_policy failed: %v", cpu, err)
	}
}
