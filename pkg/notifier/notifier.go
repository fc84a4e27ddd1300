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

// Package notifier implements the two event buses transitions and policy
// changes are announced on, modeled after the fan-out-over-a-map-of-
// subscribers pattern used elsewhere in this tree for distributing events
// to an a priori unknown set of listeners.
//
// The Transition bus is non-blocking: Notify only ever takes the bus's
// read lock, so concurrent transitions on different CPUs fan out to
// subscribers without contending each other, and subscribers must return
// quickly without calling back into the coordinator.
//
// The Policy bus may block: subscribers run sequentially under Notify and
// may themselves perform I/O or return an error, which aborts the
// remaining chain and is propagated to the caller.
package notifier

import (
	"sort"
	"sync"

	"github.com/intel/cpufreq-coordinator/pkg/idset"
)

// Phase marks which side of a frequency change a Transition event reports.
type Phase int

const (
	// PreChange is delivered before the driver programs the new frequency.
	PreChange Phase = iota
	// PostChange is delivered after the driver has programmed it.
	PostChange
)

// TransitionEvent reports a single CPU's frequency change.
type TransitionEvent struct {
	CPU   idset.ID
	Old   uint64
	New   uint64
	Phase Phase
}

// TransitionFunc receives Transition bus events. It must not block.
type TransitionFunc func(TransitionEvent)

// TransitionBus fans a TransitionEvent out to every subscriber.
type TransitionBus struct {
	mu   sync.RWMutex
	subs map[int]TransitionFunc
	next int
}

// NewTransitionBus creates an empty transition bus.
func NewTransitionBus() *TransitionBus {
	return &TransitionBus{subs: map[int]TransitionFunc{}}
}

// Subscribe registers fn and returns a handle usable with Unsubscribe.
func (b *TransitionBus) Subscribe(fn TransitionFunc) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = fn
	return id
}

// Unsubscribe removes a previously registered subscriber.
func (b *TransitionBus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Notify delivers ev to every subscriber. Multiple goroutines may call
// Notify concurrently; only Subscribe/Unsubscribe exclude each other.
func (b *TransitionBus) Notify(ev TransitionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.subs {
		fn(ev)
	}
}

// EventType names a kind of Policy bus event.
type EventType string

const (
	// Start is sent when a governor takes over a Policy.
	Start EventType = "start"
	// Stop is sent when a governor relinquishes a Policy.
	Stop EventType = "stop"
	// Adjust is sent once new limits have been computed but not yet
	// committed, giving subscribers a chance to object.
	Adjust EventType = "adjust"
	// Incompatible is sent when an Adjust subscriber objects to a
	// proposed policy, just before the proposal is abandoned.
	Incompatible EventType = "incompatible"
	// Notify is sent once new limits are committed.
	Notify EventType = "notify"
	// LimitsChanged is sent to the active governor after limits commit.
	LimitsChanged EventType = "limits-changed"
)

// PolicyEvent reports a Policy lifecycle event. Policy is carried as an
// opaque interface{} (normally *cpufreq.Policy) so this package never
// imports the core package.
type PolicyEvent struct {
	Type   EventType
	CPU    idset.ID
	Policy interface{}
}

// PolicyFunc receives Policy bus events. Returning an error aborts
// delivery to any remaining subscriber and is returned from Notify.
type PolicyFunc func(PolicyEvent) error

// PolicyBus delivers PolicyEvents to subscribers sequentially, in
// registration order, stopping at the first error.
type PolicyBus struct {
	mu   sync.Mutex
	subs map[int]PolicyFunc
	next int
}

// NewPolicyBus creates an empty policy bus.
func NewPolicyBus() *PolicyBus {
	return &PolicyBus{subs: map[int]PolicyFunc{}}
}

// Subscribe registers fn and returns a handle usable with Unsubscribe.
func (b *PolicyBus) Subscribe(fn PolicyFunc) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = fn
	return id
}

// Unsubscribe removes a previously registered subscriber.
func (b *PolicyBus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Notify delivers ev to every subscriber in registration order, stopping
// and returning the first error encountered. Notify takes a snapshot of
// the subscriber list before calling any of them, so a subscriber that
// calls Subscribe/Unsubscribe from within its callback cannot deadlock on
// this bus.
func (b *PolicyBus) Notify(ev PolicyEvent) error {
	b.mu.Lock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]PolicyFunc, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.subs[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}
