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

	"github.com/intel/cpufreq-coordinator/pkg/driver"
	"github.com/intel/cpufreq-coordinator/pkg/idset"
)

// Suspend quiesces driver state ahead of a system suspend. Only the boot
// CPU's Policy participates; the rest resume from whatever state the
// driver left them in.
func (t *PolicyTable) Suspend(bootCPU idset.ID) error {
	p, release, err := t.Get(bootCPU)
	if err != nil {
		return err
	}
	defer release()

	drv := driver.Active()
	suspender, ok := drv.(driver.Suspender)
	if !ok {
		return nil
	}
	if err := suspender.Suspend(p); err != nil {
		return fmt.Errorf("%w: %v", ErrIoError, err)
	}
	return nil
}

// Resume runs driver.Resume and then re-applies the boot CPU's stored
// limits so any state that diverged during sleep re-converges.
func (t *PolicyTable) Resume(bootCPU idset.ID) error {
	p, release, err := t.Get(bootCPU)
	if err != nil {
		return err
	}

	drv := driver.Active()
	resumer, ok := drv.(driver.Resumer)
	if ok {
		if err := resumer.Resume(p); err != nil {
			release()
			return fmt.Errorf("%w: %v", ErrIoError, err)
		}
	}
	release()

	return t.UpdatePolicy(bootCPU)
}
