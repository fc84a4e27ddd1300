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

// Package idset implements the unordered integer-id sets used to represent
// a Policy's affinity and related CPU sets.
package idset

import (
	"sort"
	"strconv"
	"strings"

	"k8s.io/kubernetes/pkg/kubelet/cm/cpuset"
)

// ID is an integer id, used to identify CPUs.
type ID int

// Unknown represents an unknown/invalid id.
const Unknown ID = -1

// IDSet is an unordered set of CPU ids.
type IDSet map[ID]struct{}

// New creates a new set containing the given ids.
func New(ids ...ID) IDSet {
	s := make(IDSet, len(ids))
	s.Add(ids...)
	return s
}

// NewFromInts creates a new set from a slice of plain ints.
func NewFromInts(ids ...int) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[ID(id)] = struct{}{}
	}
	return s
}

// Clone returns an independent copy of this set.
func (s IDSet) Clone() IDSet {
	return New(s.Members()...)
}

// Add adds the given ids to the set.
func (s IDSet) Add(ids ...ID) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// Del removes the given ids from the set.
func (s IDSet) Del(ids ...ID) {
	if s == nil {
		return
	}
	for _, id := range ids {
		delete(s, id)
	}
}

// Size returns the number of ids in the set.
func (s IDSet) Size() int {
	return len(s)
}

// Has returns true if every given id is a member of the set.
func (s IDSet) Has(ids ...ID) bool {
	if s == nil {
		return false
	}
	for _, id := range ids {
		if _, ok := s[id]; !ok {
			return false
		}
	}
	return true
}

// Intersects returns true if this set and other share at least one member.
func (s IDSet) Intersects(other IDSet) bool {
	for id := range s {
		if other.Has(id) {
			return true
		}
	}
	return false
}

// Members returns the ids in the set in unspecified order.
func (s IDSet) Members() []ID {
	if s == nil {
		return []ID{}
	}
	ids := make([]ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	return ids
}

// SortedMembers returns the ids in the set, sorted in ascending order.
func (s IDSet) SortedMembers() []ID {
	ids := s.Members()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CPUSet converts this id set to a Kubernetes cpuset.CPUSet.
func (s IDSet) CPUSet() cpuset.CPUSet {
	b := cpuset.NewBuilder()
	for id := range s {
		b.Add(int(id))
	}
	return b.Result()
}

// FromCPUSet converts a Kubernetes cpuset.CPUSet into an id set.
func FromCPUSet(cset cpuset.CPUSet) IDSet {
	return NewFromInts(cset.ToSlice()...)
}

// String renders the set comma-separated and sorted, e.g. "0,1,4".
func (s IDSet) String() string {
	return s.StringWithSeparator(",")
}

// StringWithSeparator renders the set sorted, joined with sep.
func (s IDSet) StringWithSeparator(sep string) string {
	if len(s) == 0 {
		return ""
	}
	parts := make([]string, 0, len(s))
	for _, id := range s.SortedMembers() {
		parts = append(parts, strconv.Itoa(int(id)))
	}
	return strings.Join(parts, sep)
}

// Parse parses a sysfs-style list ("0-2,4,7-8") into an id set.
func Parse(list string) (IDSet, error) {
	s := New()
	list = strings.TrimSpace(list)
	if list == "" {
		return s, nil
	}
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if rng := strings.SplitN(entry, "-", 2); len(rng) == 2 {
			beg, err := strconv.Atoi(rng[0])
			if err != nil {
				return nil, err
			}
			end, err := strconv.Atoi(rng[1])
			if err != nil {
				return nil, err
			}
			for id := beg; id <= end; id++ {
				s.Add(ID(id))
			}
			continue
		}
		id, err := strconv.Atoi(entry)
		if err != nil {
			return nil, err
		}
		s.Add(ID(id))
	}
	return s, nil
}
