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

// Package governor defines the pluggable governor contract and a registry
// of governors known by name, the same two-level lookup ("mode, then named
// governor if mode is governed") the coordinator's transition engine uses
// to resolve a Policy's scaling_governor attribute.
package governor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/intel/cpufreq-coordinator/pkg/idset"
)

// Event names a lifecycle event delivered to a Governor.
type Event int

const (
	// EventStart is delivered when a governor takes over a Policy. The
	// governor should pick and apply an initial target frequency.
	EventStart Event = iota
	// EventStop is delivered when a governor is about to be replaced.
	// The governor should leave hardware in a safe, neutral state.
	EventStop
	// EventLimitsChanged is delivered after a Policy's min/max changes
	// while this governor remains in control.
	EventLimitsChanged
	// EventUpdatePoll is delivered periodically to governors that poll
	// (registered with FlagConstLoops semantics upstream).
	EventUpdatePoll
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventLimitsChanged:
		return "limits-changed"
	case EventUpdatePoll:
		return "update-poll"
	default:
		return "unknown"
	}
}

// PolicyHandle is the minimal view of a coordinator Policy a Governor
// needs. It exists so this package never imports the core package.
type PolicyHandle interface {
	CPU() idset.ID
	Affinity() idset.IDSet
	Limits() (min, max uint64)
	CurrentKHz() uint64
	// SetTargetKHz asks the coordinator to drive the underlying driver
	// (via Target, with the given relation) toward khz.
	SetTargetKHz(khz uint64, preferHigh bool) error
}

// Governor reacts to Policy lifecycle events by choosing target
// frequencies. Implementations must not block inside Event for longer than
// it takes to call PolicyHandle.SetTargetKHz.
type Governor interface {
	Name() string
	Event(p PolicyHandle, ev Event) error
}

// SpeedSetter is an optional capability for governors that expose a single
// writable target frequency (scaling_setspeed).
type SpeedSetter interface {
	SetSetSpeed(p PolicyHandle, khz uint64) error
}

// SpeedShower is SpeedSetter's read-side counterpart.
type SpeedShower interface {
	ShowSetSpeed(p PolicyHandle) (uint64, error)
}

// LatencyLimiter declares the slowest driver transition latency a governor
// tolerates; a governor switch onto a governor whose limit the Policy's
// hardware-reported latency exceeds is expected to fail or be substituted.
type LatencyLimiter interface {
	MaxLatencyNS() uint64
}

var (
	mu       sync.Mutex
	registry = map[string]Governor{}
)

// Register adds g to the registry under g.Name(). Registering a second
// governor under the same name replaces the first, matching how a module
// reload re-registers its governor.
func Register(g Governor) {
	mu.Lock()
	defer mu.Unlock()
	registry[g.Name()] = g
}

// Get looks up a governor by name.
func Get(name string) (Governor, error) {
	mu.Lock()
	defer mu.Unlock()
	g, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("governor: no such governor %q", name)
	}
	return g, nil
}

// Names returns the names of every registered governor, sorted.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
