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

package notifier_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intel/cpufreq-coordinator/pkg/idset"
	"github.com/intel/cpufreq-coordinator/pkg/notifier"
)

func TestTransitionBusFansOutToEverySubscriber(t *testing.T) {
	bus := notifier.NewTransitionBus()

	var a, b []notifier.TransitionEvent
	bus.Subscribe(func(ev notifier.TransitionEvent) { a = append(a, ev) })
	bus.Subscribe(func(ev notifier.TransitionEvent) { b = append(b, ev) })

	ev := notifier.TransitionEvent{CPU: 3, Old: 1000, New: 2000, Phase: notifier.PostChange}
	bus.Notify(ev)

	require.Equal(t, []notifier.TransitionEvent{ev}, a)
	require.Equal(t, []notifier.TransitionEvent{ev}, b)
}

func TestTransitionBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := notifier.NewTransitionBus()

	count := 0
	id := bus.Subscribe(func(notifier.TransitionEvent) { count++ })
	bus.Notify(notifier.TransitionEvent{})
	bus.Unsubscribe(id)
	bus.Notify(notifier.TransitionEvent{})

	require.Equal(t, 1, count)
}

func TestPolicyBusDeliversInRegistrationOrder(t *testing.T) {
	bus := notifier.NewPolicyBus()

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		bus.Subscribe(func(notifier.PolicyEvent) error {
			order = append(order, i)
			return nil
		})
	}

	require.NoError(t, bus.Notify(notifier.PolicyEvent{Type: notifier.Start, CPU: idset.ID(0)}))
	require.Equal(t, []int{0, 1, 2}, order)
}

func TestPolicyBusStopsAtFirstError(t *testing.T) {
	bus := notifier.NewPolicyBus()

	var called []int
	bus.Subscribe(func(notifier.PolicyEvent) error {
		called = append(called, 0)
		return fmt.Errorf("rejected")
	})
	bus.Subscribe(func(notifier.PolicyEvent) error {
		called = append(called, 1)
		return nil
	})

	err := bus.Notify(notifier.PolicyEvent{Type: notifier.Adjust, CPU: idset.ID(0)})
	require.Error(t, err)
	require.Equal(t, []int{0}, called)
}
