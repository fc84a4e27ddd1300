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

// Package metrics holds a registry of named Prometheus collector
// constructors, gathered lazily into one Gatherer on demand so a
// collector's dependencies (a notifier bus, a policy table) can be wired
// up before metrics collection is enabled.
package metrics

import (
	"bytes"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	model "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// InitCollector constructs a Prometheus collector.
type InitCollector func() (prometheus.Collector, error)

var builtInCollectors = map[string]InitCollector{}

// RegisterCollector adds a named collector constructor to the registry.
func RegisterCollector(name string, init InitCollector) error {
	if _, found := builtInCollectors[name]; found {
		return fmt.Errorf("metrics: collector %q already registered", name)
	}
	builtInCollectors[name] = init
	return nil
}

// NewMetricGatherer constructs every registered collector and returns a
// Gatherer exposing them all.
func NewMetricGatherer() (prometheus.Gatherer, error) {
	reg := prometheus.NewPedanticRegistry()

	collectors := make([]prometheus.Collector, 0, len(builtInCollectors))
	for name, init := range builtInCollectors {
		c, err := init()
		if err != nil {
			return nil, fmt.Errorf("metrics: collector %q: %w", name, err)
		}
		collectors = append(collectors, c)
	}
	reg.MustRegister(collectors...)

	return reg, nil
}

// Snapshot gathers every family currently exposed by g, the same
// *model.MetricFamily slice a Gatherer.Gather call returns, for callers
// that want to inspect or log metrics without serving them over HTTP.
func Snapshot(g prometheus.Gatherer) ([]*model.MetricFamily, error) {
	return g.Gather()
}

// FormatFamilies renders families in the Prometheus text exposition
// format, for debug logging of a Snapshot rather than for serving.
func FormatFamilies(families []*model.MetricFamily) (string, error) {
	buf := &bytes.Buffer{}
	for _, f := range families {
		if err := expfmt.MetricFamilyToText(buf, f); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}
