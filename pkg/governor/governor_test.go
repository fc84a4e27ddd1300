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

package governor_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intel/cpufreq-coordinator/pkg/governor"
)

type fakeGovernor struct{ name string }

func (g *fakeGovernor) Name() string { return g.name }
func (g *fakeGovernor) Event(p governor.PolicyHandle, ev governor.Event) error { return nil }

func TestRegisterGetNames(t *testing.T) {
	governor.Register(&fakeGovernor{name: "test-gov-a"})
	governor.Register(&fakeGovernor{name: "test-gov-b"})

	names := governor.Names()
	require.Contains(t, names, "test-gov-a")
	require.Contains(t, names, "test-gov-b")

	g, err := governor.Get("test-gov-a")
	require.NoError(t, err)
	require.Equal(t, "test-gov-a", g.Name())
}

func TestGetUnknownFails(t *testing.T) {
	_, err := governor.Get("no-such-governor")
	require.Error(t, err)
}

func TestRegisterReplacesSameName(t *testing.T) {
	governor.Register(&fakeGovernor{name: "test-gov-replace"})
	second := &fakeGovernor{name: "test-gov-replace"}
	governor.Register(second)

	g, err := governor.Get("test-gov-replace")
	require.NoError(t, err)
	require.Same(t, second, g)
}

func TestEventString(t *testing.T) {
	require.Equal(t, "start", governor.EventStart.String())
	require.Equal(t, "stop", governor.EventStop.String())
	require.Equal(t, "limits-changed", governor.EventLimitsChanged.String())
	require.Equal(t, "update-poll", governor.EventUpdatePoll.String())
}
