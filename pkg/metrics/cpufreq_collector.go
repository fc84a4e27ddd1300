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

package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/intel/cpufreq-coordinator/pkg/notifier"
)

// cpuFreqCollector exports one counter of completed transitions and one
// gauge of the last observed frequency, both labeled by CPU, fed by
// subscribing to a coordinator's transition notifier bus.
type cpuFreqCollector struct {
	mu      sync.Mutex
	current map[string]uint64

	transitions *prometheus.CounterVec
	currentDesc *prometheus.Desc
}

func newCPUFreqCollector() *cpuFreqCollector {
	return &cpuFreqCollector{
		current: map[string]uint64{},
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cpufreq",
			Name:      "transitions_total",
			Help:      "Total number of completed frequency transitions, by CPU.",
		}, []string{"cpu"}),
		currentDesc: prometheus.NewDesc(
			"cpufreq_current_khz",
			"Last observed frequency in kHz, by CPU.",
			[]string{"cpu"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *cpuFreqCollector) Describe(ch chan<- *prometheus.Desc) {
	c.transitions.Describe(ch)
	ch <- c.currentDesc
}

// Collect implements prometheus.Collector.
func (c *cpuFreqCollector) Collect(ch chan<- prometheus.Metric) {
	c.transitions.Collect(ch)

	c.mu.Lock()
	defer c.mu.Unlock()
	for cpu, khz := range c.current {
		ch <- prometheus.MustNewConstMetric(c.currentDesc, prometheus.GaugeValue, float64(khz), cpu)
	}
}

func (c *cpuFreqCollector) observe(ev notifier.TransitionEvent) {
	if ev.Phase != notifier.PostChange {
		return
	}
	label := strconv.Itoa(int(ev.CPU))

	c.mu.Lock()
	c.current[label] = ev.New
	c.mu.Unlock()

	c.transitions.WithLabelValues(label).Inc()
}

var globalCPUFreqCollector = newCPUFreqCollector()

// WatchTransitions subscribes the cpufreq metrics collector to bus, so
// every completed transition updates the exported counter and gauge.
func WatchTransitions(bus *notifier.TransitionBus) {
	bus.Subscribe(globalCPUFreqCollector.observe)
}

func init() {
	if err := RegisterCollector("cpufreq", func() (prometheus.Collector, error) {
		return globalCPUFreqCollector, nil
	}); err != nil {
		panic(err)
	}
}
