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

// Package config implements the coordinator's runtime configuration
// subsystem: named modules register a pointer to their option struct and a
// notification callback; Set() pushes a new JSON/YAML blob into one named
// module and keeps the change only if that module's callback accepts it.
// Rejected updates leave the module's prior values untouched, mirroring how
// the transition engine never commits a partial Policy mutation.
package config

import (
	"fmt"
	"reflect"
	"sync"

	"sigs.k8s.io/yaml"

	logger "github.com/intel/cpufreq-coordinator/pkg/log"
)

var log logger.Logger = logger.NewLogger("config")

// Event describes why a module notification callback is being invoked.
type Event string

const (
	// EventUpdate marks a configuration update.
	EventUpdate Event = "update"
)

// NotifyFn validates (and applies) a configuration update for a module.
type NotifyFn func(Event) error

var (
	mutex   sync.Mutex
	modules = map[string]*Module{}
	order   []string
)

// Module is a named, independently (de)serializable slice of configuration.
type Module struct {
	name        string
	description string
	value       interface{}
	defaults    func() interface{}
	notify      NotifyFn
}

// Register creates and registers a new configuration module.
//
// value must be a pointer to the struct holding the module's live options;
// defaults, if non-nil, produces a freshly allocated struct of defaults
// that Reset() copies into value. Set() does not reset value first.
func Register(name, description string, value interface{}, defaults func() interface{}) *Module {
	mutex.Lock()
	defer mutex.Unlock()

	if _, ok := modules[name]; ok {
		log.Fatal("config: module %q already registered", name)
	}

	m := &Module{
		name:        name,
		description: description,
		value:       value,
		defaults:    defaults,
	}
	modules[name] = m
	order = append(order, name)

	log.Debug("registered configuration module %q (%s)", name, description)

	return m
}

// WatchUpdates registers fn to be called whenever this module's value changes.
func (m *Module) WatchUpdates(fn NotifyFn) {
	m.notify = fn
}

// Name returns the registered name of this module.
func (m *Module) Name() string {
	return m.name
}

// Reset restores this module's value to its registered defaults.
func (m *Module) Reset() {
	if m.defaults == nil {
		return
	}
	dst := reflect.ValueOf(m.value).Elem()
	src := reflect.ValueOf(m.defaults()).Elem()
	dst.Set(src)
}

// Set pushes a YAML/JSON document into the named module, validating it
// (and notifying the module) only if unmarshalling succeeds.
func Set(name string, data []byte) error {
	mutex.Lock()
	m, ok := modules[name]
	mutex.Unlock()

	if !ok {
		return fmt.Errorf("config: unknown module %q", name)
	}

	saved := reflect.New(reflect.TypeOf(m.value).Elem())
	saved.Elem().Set(reflect.ValueOf(m.value).Elem())
	restore := func() { reflect.ValueOf(m.value).Elem().Set(saved.Elem()) }

	if err := yaml.Unmarshal(data, m.value); err != nil {
		restore()
		return fmt.Errorf("config: module %q: failed to parse update: %w", name, err)
	}

	if m.notify != nil {
		if err := m.notify(EventUpdate); err != nil {
			restore()
			return fmt.Errorf("config: module %q: rejected update: %w", name, err)
		}
	}

	log.Info("configuration module %q updated", name)

	return nil
}

// ModuleNames returns the names of all registered modules, in registration order.
func ModuleNames() []string {
	mutex.Lock()
	defer mutex.Unlock()

	names := make([]string, len(order))
	copy(names, order)
	return names
}
