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

package config_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intel/cpufreq-coordinator/pkg/config"
)

type testOptions struct {
	Floor int `json:"floor"`
	Name  string
}

func TestRegisterAndSet(t *testing.T) {
	opt := &testOptions{Floor: 1, Name: "default"}
	m := config.Register(fmt.Sprintf("test-%p", opt), "unit test module", opt, func() interface{} {
		return &testOptions{Floor: 1, Name: "default"}
	})

	updates := 0
	m.WatchUpdates(func(config.Event) error {
		updates++
		if opt.Floor < 0 {
			return fmt.Errorf("floor must be non-negative")
		}
		return nil
	})

	require.NoError(t, config.Set(m.Name(), []byte(`{"floor": 5, "name": "five"}`)))
	require.Equal(t, 5, opt.Floor)
	require.Equal(t, 1, updates)

	require.Error(t, config.Set(m.Name(), []byte(`{"floor": -1}`)))
	require.Equal(t, 2, updates)
}
