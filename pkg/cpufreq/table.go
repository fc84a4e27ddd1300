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
	"time"

	"github.com/intel/cpufreq-coordinator/pkg/driver"
	"github.com/intel/cpufreq-coordinator/pkg/idset"
	logger "github.com/intel/cpufreq-coordinator/pkg/log"
	"github.com/intel/cpufreq-coordinator/pkg/notifier"
	"github.com/intel/cpufreq-coordinator/pkg/qos"
)

var log logger.Logger = logger.NewLogger("cpufreq")

// repairLog throttles the out-of-sync repair message PollCPU emits: a
// CPU stuck oscillating against its driver would otherwise flood the
// log once per poll interval per CPU.
var repairLog = logger.RateLimit(log, logger.Interval(10*time.Second))

// policyLock guards one lock index. rw protects plain field access and is
// held only briefly; trans single-flights the multi-step mutation paths
// (policy writes, hotplug add/remove) for this index without ever being
// visible to a plain reader, so holding it across a governor Stop can
// never deadlock against an attribute read taking rw.
type policyLock struct {
	rw    sync.RWMutex
	trans sync.Mutex
}

// PolicyTable is the coordinator: the CPU->Policy mapping, the per-index
// locks guarding it, and the notifier/QoS plumbing every Policy shares.
type PolicyTable struct {
	mu sync.Mutex // driver_lock equivalent: guards the maps below only

	byCPU      map[idset.ID]*Policy
	lockIndex  map[idset.ID]idset.ID
	locks      map[idset.ID]*policyLock
	online     idset.IDSet
	shadowGov  map[idset.ID]string // governor name remembered across a remove_dev, for re-attach

	defaultGovernor string

	Transitions *notifier.TransitionBus
	Policies    *notifier.PolicyBus
	QoS         *qos.Aggregator
}

// NewPolicyTable creates an empty coordinator. defaultGovernor names the
// governor a freshly attached CPU gets when no sibling policy's Related
// set already claims it.
func NewPolicyTable(defaultGovernor string) *PolicyTable {
	t := &PolicyTable{
		byCPU:           map[idset.ID]*Policy{},
		lockIndex:       map[idset.ID]idset.ID{},
		locks:           map[idset.ID]*policyLock{},
		online:          idset.New(),
		shadowGov:       map[idset.ID]string{},
		defaultGovernor: defaultGovernor,
		Transitions:     notifier.NewTransitionBus(),
		Policies:        notifier.NewPolicyBus(),
		QoS:             qos.NewAggregator(),
	}
	t.QoS.Watch(func(cpu idset.ID) {
		t.handleQoSChange(cpu)
	})
	return t
}

func (t *PolicyTable) isOnline(cpu idset.ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online.Has(cpu)
}

func (t *PolicyTable) lockFor(cpu idset.ID) (*policyLock, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.lockIndex[cpu]
	if !ok {
		return nil, false
	}
	return t.locks[idx], true
}

func (t *PolicyTable) policyFor(cpu idset.ID) *Policy {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byCPU[cpu]
}

// Get returns a counted reference to cpu's Policy, pinning the active
// driver. The caller must invoke the returned release func exactly once.
// It fails with ErrNoSuchDevice if no driver is registered, cpu is out of
// range, or no Policy is attached.
func (t *PolicyTable) Get(cpu idset.ID) (*Policy, func(), error) {
	t.mu.Lock()
	p, ok := t.byCPU[cpu]
	t.mu.Unlock()
	if !ok {
		return nil, nil, ErrNoSuchDevice
	}

	if _, err := driver.Pin(); err != nil {
		return nil, nil, ErrNoSuchDevice
	}
	p.get()

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		p.put()
		driver.Unpin()
	}
	return p, release, nil
}

// WithPolicyReadLocked runs fn with cpu's lock held shared, after
// verifying cpu is still online.
func (t *PolicyTable) WithPolicyReadLocked(cpu idset.ID, fn func(p *Policy) error) error {
	lock, ok := t.lockFor(cpu)
	if !ok {
		return ErrNoSuchDevice
	}
	lock.rw.RLock()
	defer lock.rw.RUnlock()

	if !t.isOnline(cpu) {
		return ErrNoSuchDevice
	}
	p := t.policyFor(cpu)
	if p == nil {
		return ErrNoSuchDevice
	}
	return fn(p)
}

// WithPolicyWriteLocked runs fn with cpu's lock held exclusive, after
// verifying cpu is still online. Used for mutations that touch only
// Policy fields and never call out to the driver or governor.
func (t *PolicyTable) WithPolicyWriteLocked(cpu idset.ID, fn func(p *Policy) error) error {
	lock, ok := t.lockFor(cpu)
	if !ok {
		return ErrNoSuchDevice
	}
	lock.rw.Lock()
	defer lock.rw.Unlock()

	if !t.isOnline(cpu) {
		return ErrNoSuchDevice
	}
	p := t.policyFor(cpu)
	if p == nil {
		return ErrNoSuchDevice
	}
	return fn(p)
}

// transitionCtx is handed to the body of a runTransition call. It exposes
// the explicit lock/unlock pairs a governor switch needs around a call
// that may re-enter the notifier bus.
type transitionCtx struct {
	table *PolicyTable
	cpu   idset.ID
	lock  *policyLock
	held  bool
}

func (c *transitionCtx) lockExclusive() (*Policy, error) {
	c.lock.rw.Lock()
	c.held = true
	if !c.table.isOnline(c.cpu) {
		c.lock.rw.Unlock()
		c.held = false
		return nil, ErrNoSuchDevice
	}
	p := c.table.policyFor(c.cpu)
	if p == nil {
		c.lock.rw.Unlock()
		c.held = false
		return nil, ErrNoSuchDevice
	}
	return p, nil
}

func (c *transitionCtx) unlock() {
	if c.held {
		c.lock.rw.Unlock()
		c.held = false
	}
}

// runTransition single-flights a policy-write or hotplug mutation path for
// cpu's lock index: only one such call proceeds at a time, without ever
// exposing that serialization to a plain attribute reader. fn is
// responsible for calling lockExclusive/unlock around the sections of its
// own work that touch Policy fields, releasing before any call that may
// re-enter the notifier bus (in particular Governor.Event(EventStop)).
func (t *PolicyTable) runTransition(cpu idset.ID, fn func(c *transitionCtx) error) error {
	lock, ok := t.lockFor(cpu)
	if !ok {
		return ErrNoSuchDevice
	}
	lock.trans.Lock()
	defer lock.trans.Unlock()

	c := &transitionCtx{table: t, cpu: cpu, lock: lock}
	err := fn(c)
	c.unlock()
	return err
}
