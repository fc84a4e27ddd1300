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

package driver_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intel/cpufreq-coordinator/pkg/driver"
)

type fakeDriver struct{ name string }

func (f *fakeDriver) Name() string                    { return f.name }
func (f *fakeDriver) Flags() driver.Flag              { return 0 }
func (f *fakeDriver) Init(p driver.PolicyHandle) error { return nil }
func (f *fakeDriver) Verify(p driver.PolicyHandle) error { return nil }
func (f *fakeDriver) Exit(p driver.PolicyHandle) error   { return nil }

func resetRegistry(t *testing.T) {
	t.Helper()
	for driver.Active() != nil {
		if err := driver.Unregister(); err != nil {
			t.Fatalf("could not reset driver registry: %v", err)
		}
	}
}

func TestRegisterRefusesSecond(t *testing.T) {
	resetRegistry(t)
	defer resetRegistry(t)

	require.NoError(t, driver.Register(&fakeDriver{name: "first"}))
	require.Error(t, driver.Register(&fakeDriver{name: "second"}))
	require.Equal(t, "first", driver.Active().Name())
}

func TestUnregisterBusyWhilePinned(t *testing.T) {
	resetRegistry(t)
	defer resetRegistry(t)

	require.NoError(t, driver.Register(&fakeDriver{name: "pinned"}))

	_, err := driver.Pin()
	require.NoError(t, err)

	require.Error(t, driver.Unregister())
	require.NotNil(t, driver.Active())

	driver.Unpin()
	require.NoError(t, driver.Unregister())
	require.Nil(t, driver.Active())
}

func TestPinFailsWithNoDriver(t *testing.T) {
	resetRegistry(t)
	defer resetRegistry(t)

	_, err := driver.Pin()
	require.Error(t, err)
}

func TestUnpinWithoutPinIsNoop(t *testing.T) {
	resetRegistry(t)
	defer resetRegistry(t)

	require.NoError(t, driver.Register(&fakeDriver{name: "x"}))
	driver.Unpin()
	require.NoError(t, driver.Unregister())
}
