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

package qos_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intel/cpufreq-coordinator/pkg/idset"
	"github.com/intel/cpufreq-coordinator/pkg/qos"
)

func TestBoundsClampNarrowsRange(t *testing.T) {
	b := qos.Bounds{Floor: 1000000, Ceiling: 2500000}
	min, max := b.Clamp(800000, 3600000)
	require.Equal(t, uint64(1000000), min)
	require.Equal(t, uint64(2500000), max)
}

func TestBoundsClampZeroMeansUnconstrained(t *testing.T) {
	b := qos.Bounds{}
	min, max := b.Clamp(800000, 3600000)
	require.Equal(t, uint64(800000), min)
	require.Equal(t, uint64(3600000), max)
}

func TestBoundsClampCeilingWinsWhenInverted(t *testing.T) {
	b := qos.Bounds{Floor: 3000000, Ceiling: 2000000}
	min, max := b.Clamp(800000, 3600000)
	require.Equal(t, uint64(2000000), max)
	require.Equal(t, max, min)
}

func TestAggregatorTightestOfManyRequesters(t *testing.T) {
	a := qos.NewAggregator()
	cpu := idset.ID(0)

	a.SetFloor(cpu, "req-a", 1000000)
	a.SetFloor(cpu, "req-b", 1500000)
	a.SetCeiling(cpu, "req-c", 3000000)
	a.SetCeiling(cpu, "req-d", 2800000)

	b := a.Bounds(cpu)
	require.Equal(t, uint64(1500000), b.Floor)
	require.Equal(t, uint64(2800000), b.Ceiling)
}

func TestAggregatorClearingAFloorRestoresLooserOne(t *testing.T) {
	a := qos.NewAggregator()
	cpu := idset.ID(1)

	a.SetFloor(cpu, "req-a", 1000000)
	a.SetFloor(cpu, "req-b", 1500000)
	a.SetFloor(cpu, "req-b", 0)

	require.Equal(t, uint64(1000000), a.Bounds(cpu).Floor)
}

func TestAggregatorWatchNotifiedOnChange(t *testing.T) {
	a := qos.NewAggregator()
	cpu := idset.ID(2)

	var notified []idset.ID
	a.Watch(func(c idset.ID) { notified = append(notified, c) })

	a.SetFloor(cpu, "req-a", 1000000)
	a.SetCeiling(cpu, "req-a", 2000000)

	require.Equal(t, []idset.ID{cpu, cpu}, notified)
}

func TestAggregatorPerCPUIndependence(t *testing.T) {
	a := qos.NewAggregator()
	a.SetFloor(idset.ID(0), "req-a", 1000000)

	require.Equal(t, uint64(0), a.Bounds(idset.ID(1)).Floor)
}
