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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intel/cpufreq-coordinator/pkg/driver"
	"github.com/intel/cpufreq-coordinator/pkg/driver/nulldriver"
	"github.com/intel/cpufreq-coordinator/pkg/governor"
	"github.com/intel/cpufreq-coordinator/pkg/governor/builtin"
	"github.com/intel/cpufreq-coordinator/pkg/idset"
	"github.com/intel/cpufreq-coordinator/pkg/notifier"
	"github.com/intel/cpufreq-coordinator/pkg/testutils"
)

// slowLatencyGovernor only accepts drivers whose transition latency is at
// or below a configured ceiling, exercising the scenario-C fallback path.
type slowLatencyGovernor struct{ max uint64 }

func (g *slowLatencyGovernor) Name() string               { return "slow-latency" }
func (g *slowLatencyGovernor) MaxLatencyNS() uint64        { return g.max }
func (g *slowLatencyGovernor) Event(p governor.PolicyHandle, ev governor.Event) error {
	if ev == governor.EventStart || ev == governor.EventLimitsChanged {
		_, max := p.Limits()
		return p.SetTargetKHz(max, true)
	}
	return nil
}

func newTestTable(t *testing.T, hwMin, hwMax uint64) (*PolicyTable, *nulldriver.Driver) {
	t.Helper()
	builtin.Register()
	governor.Register(&slowLatencyGovernor{max: 1})

	d := nulldriver.New(hwMin, hwMax)
	require.NoError(t, driver.Register(d))
	t.Cleanup(func() {
		for driver.Active() != nil {
			_ = driver.Unregister()
		}
	})

	return NewPolicyTable("performance"), d
}

func TestAddCPUBasicLimitWrite(t *testing.T) {
	table, _ := newTestTable(t, 800000, 3600000)
	require.NoError(t, table.AddCPU(0))

	require.NoError(t, table.SetPolicy(0, Request{Min: 1000000, Max: 2000000, Mode: ModePerformance}))

	limits, err := table.ReadAttribute(0, AttrScalingMaxFreq)
	require.NoError(t, err)
	require.Equal(t, "2000000", limits)

	cur, err := table.ReadAttribute(0, AttrScalingCurFreq)
	require.NoError(t, err)
	require.Equal(t, "2000000", cur)
}

func TestQoSCeilingClampsWriteRequest(t *testing.T) {
	table, _ := newTestTable(t, 800000, 3600000)
	require.NoError(t, table.AddCPU(0))

	table.QoS.SetCeiling(0, "thermal", 1800000)

	require.NoError(t, table.WriteAttribute(0, AttrScalingMaxFreq, "3000000"))

	got, err := table.ReadAttribute(0, AttrScalingMaxFreq)
	require.NoError(t, err)
	testutils.VerifyDeepEqual(t, "clamped max", "1800000", got)
}

func TestQoSFloorPushesMinUpOnAggregatorChange(t *testing.T) {
	table, _ := newTestTable(t, 800000, 3600000)
	require.NoError(t, table.AddCPU(0))
	require.NoError(t, table.SetPolicy(0, Request{Min: 800000, Max: 3600000, Mode: ModePerformance}))

	table.QoS.SetFloor(0, "latency-sensitive", 2000000)

	got, err := table.ReadAttribute(0, AttrScalingMinFreq)
	require.NoError(t, err)
	require.Equal(t, "2000000", got)
}

func TestGovernorSwitchFallsBackOnLatencyMismatch(t *testing.T) {
	table, d := newTestTable(t, 800000, 3600000)
	d.SetLatency(5_000_000) // exceeds slowLatencyGovernor's 1ns ceiling
	require.NoError(t, table.AddCPU(0))

	req := Request{Min: 800000, Max: 3600000, Mode: ModeGoverned, Governor: "slow-latency"}
	require.NoError(t, table.SetPolicy(0, req))

	p := table.policyFor(0)
	require.Equal(t, "performance", p.GovernorName())
}

func TestGovernorSwitchToUnknownNameFails(t *testing.T) {
	table, _ := newTestTable(t, 800000, 3600000)
	require.NoError(t, table.AddCPU(0))

	err := table.SetPolicy(0, Request{Min: 800000, Max: 3600000, Mode: ModeGoverned, Governor: "does-not-exist"})
	require.ErrorIs(t, err, ErrInvalidGovernor)
}

func TestHotplugSiblingMigratesOwnershipOnRemove(t *testing.T) {
	table, d := newTestTable(t, 800000, 3600000)
	require.NoError(t, table.AddCPU(0))

	// Fold cpu1 into cpu0's Policy the way foldSiblings would once the
	// driver reports cpu1 as a hardware-shared sibling of cpu0.
	p := table.policyFor(0)
	p.related.Add(1)
	p.affinity.Add(1)
	table.mu.Lock()
	table.byCPU[1] = p
	table.lockIndex[1] = 0
	table.online.Add(1)
	table.mu.Unlock()

	require.True(t, table.policyFor(1) == p, "cpu1 should share cpu0's policy")

	require.NoError(t, table.RemoveCPU(0))

	migrated := table.policyFor(1)
	require.NotNil(t, migrated)
	require.Equal(t, idset.ID(1), migrated.OwnerCPU())

	_, ok := d.Get(0)
	require.False(t, ok, "driver state for the removed CPU should be gone")
}

func TestRemoveLastOwnerTearsDownDriver(t *testing.T) {
	table, d := newTestTable(t, 800000, 3600000)
	require.NoError(t, table.AddCPU(0))

	require.NoError(t, table.RemoveCPU(0))

	_, ok := d.Get(0)
	require.False(t, ok)
	require.Nil(t, table.policyFor(0))
}

func TestPollCPURepairsOutOfSyncFrequency(t *testing.T) {
	table, d := newTestTable(t, 800000, 3600000)
	require.NoError(t, table.AddCPU(0))
	require.NoError(t, table.SetPolicy(0, Request{Min: 800000, Max: 3600000, Mode: ModePerformance}))

	var events []notifier.TransitionEvent
	table.Transitions.Subscribe(func(ev notifier.TransitionEvent) { events = append(events, ev) })

	// Simulate firmware changing the frequency out from under the
	// coordinator, then ask PollCPU to reconcile.
	require.NoError(t, d.Target(table.policyFor(0), 1200000, driver.RelationLow))

	require.NoError(t, table.PollCPU(0))
	require.NotEmpty(t, events, "PollCPU should have announced the out-of-sync repair")

	got, err := table.ReadAttribute(0, AttrScalingCurFreq)
	require.NoError(t, err)
	require.Equal(t, "3600000", got, "performance mode should re-pin to max after reconciling")
}

func TestSuspendResumeReappliesLimits(t *testing.T) {
	table, _ := newTestTable(t, 800000, 3600000)
	require.NoError(t, table.AddCPU(0))
	require.NoError(t, table.SetPolicy(0, Request{Min: 1000000, Max: 1500000, Mode: ModePerformance}))

	require.NoError(t, table.Suspend(0))
	require.NoError(t, table.Resume(0))

	got, err := table.ReadAttribute(0, AttrScalingCurFreq)
	require.NoError(t, err)
	require.Equal(t, "1500000", got)
}

func TestConcurrentWritersAllEventuallyComplete(t *testing.T) {
	table, _ := newTestTable(t, 800000, 3600000)
	require.NoError(t, table.AddCPU(0))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			max := uint64(1000000 + i*10000)
			errs <- table.SetPolicy(0, Request{Min: 800000, Max: max, Mode: ModePerformance})
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("writers did not all complete: possible starvation or deadlock")
	}
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
}

func TestWriteAttributeRejectsUnknownName(t *testing.T) {
	table, _ := newTestTable(t, 800000, 3600000)
	require.NoError(t, table.AddCPU(0))

	err := table.WriteAttribute(0, "not_a_real_attribute", "1")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestReadAttributeOnDetachedCPUFails(t *testing.T) {
	table, _ := newTestTable(t, 800000, 3600000)
	_, err := table.ReadAttribute(5, AttrScalingMaxFreq)
	require.ErrorIs(t, err, ErrNoSuchDevice)
}

func TestUserspaceSetSpeedRoundTripsThroughAttributes(t *testing.T) {
	table, _ := newTestTable(t, 800000, 3600000)
	require.NoError(t, table.AddCPU(0))
	require.NoError(t, table.SetPolicy(0, Request{Min: 800000, Max: 3600000, Mode: ModeGoverned, Governor: "userspace"}))

	require.NoError(t, table.WriteAttribute(0, AttrScalingSetSpeed, "2200000"))

	got, err := table.ReadAttribute(0, AttrScalingSetSpeed)
	require.NoError(t, err)
	require.Equal(t, "2200000", got)
}

func TestAddCPUIdempotent(t *testing.T) {
	table, _ := newTestTable(t, 800000, 3600000)
	require.NoError(t, table.AddCPU(0))
	require.NoError(t, table.AddCPU(0))
}

func TestInitFailureDiscardsPolicy(t *testing.T) {
	d := nulldriver.New(800000, 3600000)
	d.FailInitFor(0)
	require.NoError(t, driver.Register(d))
	t.Cleanup(func() {
		for driver.Active() != nil {
			_ = driver.Unregister()
		}
	})

	table := NewPolicyTable("performance")
	err := table.AddCPU(0)
	require.ErrorIs(t, err, ErrNoMemory)
	require.Nil(t, table.policyFor(0))
}

func TestSetCPUFrequencyLimitsAccumulatesPerCPUErrors(t *testing.T) {
	table, _ := newTestTable(t, 800000, 3600000)
	require.NoError(t, table.AddCPU(0))
	require.NoError(t, table.AddCPU(1))

	req := Request{Min: 1000000, Max: 2000000, Mode: ModePerformance}
	err := table.SetCPUFrequencyLimits([]idset.ID{0, 1, 2, 3}, req)

	testutils.VerifyError(t, err, 2, []string{"cpu2", "cpu3"})

	limits, readErr := table.ReadAttribute(0, AttrScalingMaxFreq)
	require.NoError(t, readErr)
	require.Equal(t, "2000000", limits)
}
