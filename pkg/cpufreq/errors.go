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

import "errors"

// Boundary error codes, returned verbatim from exported operations and the
// attribute surface.
var (
	// ErrNoSuchDevice is returned when a CPU has no attached Policy, is
	// out of range, went offline between lock release and acquisition,
	// or no driver is registered.
	ErrNoSuchDevice = errors.New("cpufreq: no such device")
	// ErrInvalidArgument is returned for a malformed attribute write or a
	// proposed range that is not internally consistent.
	ErrInvalidArgument = errors.New("cpufreq: invalid argument")
	// ErrInvalidRange is returned when a proposed [min,max] has no
	// overlap with the user-requested window.
	ErrInvalidRange = errors.New("cpufreq: invalid range")
	// ErrInvalidGovernor is returned when a requested governor is
	// unknown, or a governor switch's rollback itself had to run.
	ErrInvalidGovernor = errors.New("cpufreq: invalid governor")
	// ErrBusy is returned when an operation cannot proceed because a
	// resource (driver, Policy) is pinned by an outstanding reference.
	ErrBusy = errors.New("cpufreq: busy")
	// ErrNoMemory is returned when a new Policy could not be set up,
	// including when the driver's Init for it fails.
	ErrNoMemory = errors.New("cpufreq: no memory")
	// ErrIoError wraps a driver operation failure whose cause is opaque.
	ErrIoError = errors.New("cpufreq: io error")
	// ErrUngoverned is returned by the governor switch whose rollback
	// itself failed; the Policy is left with no governor attached. Only
	// that one call returns it: later writes to the Policy are not
	// refused on this account.
	ErrUngoverned = errors.New("cpufreq: policy is ungoverned")
)
