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
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/intel/cpufreq-coordinator/pkg/idset"
)

// SetCPUFrequencyLimits applies req to every CPU in cpus independently,
// the way a caller reconfiguring a whole affinity group (or reacting to
// a QoS change across several CPUs at once) would. A failure on one CPU
// does not stop the others from being attempted; every per-CPU failure
// is accumulated and returned together.
func (t *PolicyTable) SetCPUFrequencyLimits(cpus []idset.ID, req Request) error {
	var result *multierror.Error
	for _, cpu := range cpus {
		if err := t.SetPolicy(cpu, req); err != nil {
			result = multierror.Append(result, fmt.Errorf("cpu%d: %w", cpu, err))
		}
	}
	return result.ErrorOrNil()
}
