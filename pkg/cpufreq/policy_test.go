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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intel/cpufreq-coordinator/pkg/idset"
)

func TestNewPolicyStartsWithOwnerOnlyAffinity(t *testing.T) {
	p := newPolicy(idset.ID(4))
	require.Equal(t, idset.ID(4), p.OwnerCPU())
	require.True(t, p.AffinitySet().Has(4))
	require.Equal(t, 1, p.AffinitySet().Size())
}

func TestRefCountGatesTeardown(t *testing.T) {
	p := newPolicy(idset.ID(0))

	p.get()
	p.get()
	p.markDying()

	select {
	case <-p.teardown:
		t.Fatal("teardown fired while references remained outstanding")
	case <-time.After(10 * time.Millisecond):
	}

	p.put()
	select {
	case <-p.teardown:
		t.Fatal("teardown fired before the last reference was released")
	case <-time.After(10 * time.Millisecond):
	}

	p.put()
	select {
	case <-p.teardown:
	case <-time.After(10 * time.Millisecond):
		t.Fatal("teardown did not fire once the last reference was released")
	}
}

func TestMarkDyingFiresImmediatelyWithNoReferences(t *testing.T) {
	p := newPolicy(idset.ID(0))
	p.markDying()

	select {
	case <-p.teardown:
	case <-time.After(10 * time.Millisecond):
		t.Fatal("teardown did not fire for a policy with no outstanding references")
	}
}

func TestSetAffinityPopulatesRelatedNotAffinity(t *testing.T) {
	p := newPolicy(idset.ID(0))
	p.SetAffinity(idset.New(0, 1, 2))

	require.True(t, p.Related().Has(0, 1, 2))
	require.Equal(t, 1, p.AffinitySet().Size())
}
