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

// Package sysfs implements the low-level read/write plumbing shared by
// hardware drivers that program CPU frequency scaling through the kernel's
// cpufreq sysfs tree (/sys/devices/system/cpu/cpuN/cpufreq/*).
package sysfs

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/intel/cpufreq-coordinator/pkg/idset"
)

// CPUPath returns the sysfs directory for the given CPU under root.
func CPUPath(root string, cpu idset.ID) string {
	return filepath.Join(root, "devices/system/cpu", fmt.Sprintf("cpu%d", cpu))
}

// ReadString reads a single-line sysfs entry as a trimmed string.
func ReadString(base, entry string) (string, error) {
	path := filepath.Join(base, entry)
	blob, err := ioutil.ReadFile(path)
	if err != nil {
		return "", sysfsError(path, "failed to read: %v", err)
	}
	return strings.TrimSpace(string(blob)), nil
}

// ReadUint64 reads a sysfs entry and parses it as an unsigned integer.
func ReadUint64(base, entry string) (uint64, error) {
	str, err := ReadString(base, entry)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, sysfsError(filepath.Join(base, entry), "failed to parse %q: %v", str, err)
	}
	return v, nil
}

// ReadIDSet reads a sysfs list entry ("0-2,4") as an idset.IDSet.
func ReadIDSet(base, entry string) (idset.IDSet, error) {
	str, err := ReadString(base, entry)
	if err != nil {
		return nil, err
	}
	set, err := idset.Parse(str)
	if err != nil {
		return nil, sysfsError(filepath.Join(base, entry), "failed to parse %q: %v", str, err)
	}
	return set, nil
}

// WriteUint64 writes an unsigned integer into a sysfs entry.
func WriteUint64(base, entry string, value uint64) error {
	path := filepath.Join(base, entry)
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return sysfsError(path, "cannot open for writing: %v", err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.FormatUint(value, 10) + "\n"); err != nil {
		return sysfsError(path, "cannot write: %v", err)
	}
	return nil
}

// WriteString writes a string into a sysfs entry.
func WriteString(base, entry, value string) error {
	path := filepath.Join(base, entry)
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return sysfsError(path, "cannot open for writing: %v", err)
	}
	defer f.Close()

	if _, err := f.WriteString(value + "\n"); err != nil {
		return sysfsError(path, "cannot write: %v", err)
	}
	return nil
}

// Exists reports whether the given sysfs entry exists.
func Exists(base, entry string) bool {
	_, err := os.Stat(filepath.Join(base, entry))
	return err == nil
}

func sysfsError(path string, format string, args ...interface{}) error {
	return errors.Wrapf(fmt.Errorf(format, args...), "sysfs %q", path)
}
