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

package nulldriver_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intel/cpufreq-coordinator/pkg/driver"
	"github.com/intel/cpufreq-coordinator/pkg/driver/nulldriver"
	"github.com/intel/cpufreq-coordinator/pkg/idset"
)

type fakeHandle struct {
	cpu      idset.ID
	affinity idset.IDSet
	min, max uint64
	info     driver.Info
}

func (h *fakeHandle) CPU() idset.ID             { return h.cpu }
func (h *fakeHandle) Affinity() idset.IDSet     { return h.affinity }
func (h *fakeHandle) Limits() (uint64, uint64)  { return h.min, h.max }
func (h *fakeHandle) Governor() string          { return "" }
func (h *fakeHandle) SetInfo(i driver.Info)     { h.info = i }
func (h *fakeHandle) SetAffinity(idset.IDSet)   {}
func (h *fakeHandle) SetCurrentKHz(uint64)      {}
func (h *fakeHandle) SetLimits(min, max uint64) { h.min, h.max = min, max }

func TestInitReportsHardwareBounds(t *testing.T) {
	d := nulldriver.New(800000, 3600000)
	h := &fakeHandle{cpu: 0, affinity: idset.New(0)}

	require.NoError(t, d.Init(h))
	require.Equal(t, uint64(800000), h.info.HWMin)
	require.Equal(t, uint64(3600000), h.info.HWMax)

	khz, ok := d.Get(0)
	require.True(t, ok)
	require.Equal(t, uint64(3600000), khz)
}

func TestInitCanBeMadeToFail(t *testing.T) {
	d := nulldriver.New(800000, 3600000)
	d.FailInitFor(1)

	require.NoError(t, d.Init(&fakeHandle{cpu: 0, affinity: idset.New(0)}))
	require.Error(t, d.Init(&fakeHandle{cpu: 1, affinity: idset.New(1)}))
}

func TestTargetAppliesToWholeAffinitySet(t *testing.T) {
	d := nulldriver.New(800000, 3600000)
	h := &fakeHandle{cpu: 0, affinity: idset.New(0, 1, 2)}
	require.NoError(t, d.Init(h))

	require.NoError(t, d.Target(h, 2000000, driver.RelationHigh))

	for _, cpu := range []idset.ID{0, 1, 2} {
		khz, ok := d.Get(cpu)
		require.True(t, ok)
		require.Equal(t, uint64(2000000), khz)
	}
}

func TestExitForgetsCurrentFrequency(t *testing.T) {
	d := nulldriver.New(800000, 3600000)
	h := &fakeHandle{cpu: 0, affinity: idset.New(0)}
	require.NoError(t, d.Init(h))

	require.NoError(t, d.Exit(h))
	_, ok := d.Get(0)
	require.False(t, ok)
}

func TestVerifyRejectsInvertedRange(t *testing.T) {
	d := nulldriver.New(800000, 3600000)
	h := &fakeHandle{cpu: 0, affinity: idset.New(0), min: 2000000, max: 1000000}
	require.Error(t, d.Verify(h))
}
