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

// Command cpufreqd runs the CPU-frequency policy coordinator standalone:
// it registers a hardware driver and the built-in governors, discovers
// online CPUs, serves the attribute surface over a minimal HTTP mux, and
// exposes Prometheus metrics.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	ocprom "contrib.go.opencensus.io/exporter/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opencensus.io/plugin/ochttp"
	"go.opencensus.io/stats/view"

	"github.com/intel/cpufreq-coordinator/pkg/config"
	"github.com/intel/cpufreq-coordinator/pkg/cpufreq"
	"github.com/intel/cpufreq-coordinator/pkg/driver"
	"github.com/intel/cpufreq-coordinator/pkg/driver/nulldriver"
	"github.com/intel/cpufreq-coordinator/pkg/driver/sysfsdriver"
	"github.com/intel/cpufreq-coordinator/pkg/governor/builtin"
	"github.com/intel/cpufreq-coordinator/pkg/idset"
	logger "github.com/intel/cpufreq-coordinator/pkg/log"
	"github.com/intel/cpufreq-coordinator/pkg/metrics"
	"github.com/intel/cpufreq-coordinator/pkg/sysfs"
)

var log = logger.Default()

// Options is the coordinator's runtime configuration module.
type Options struct {
	SysfsRoot       string `json:"sysfsRoot"`
	HTTPAddr        string `json:"httpAddr"`
	DefaultGovernor string `json:"defaultGovernor"`
	PollInterval    string `json:"pollInterval"`
	UseNullDriver   bool   `json:"useNullDriver"`
}

func defaultOptions() interface{} {
	return &Options{
		SysfsRoot:       "/sys",
		HTTPAddr:        ":8855",
		DefaultGovernor: "performance",
		PollInterval:    "5s",
	}
}

var opt = defaultOptions().(*Options)

func main() {
	logger.SetStdLogger("stdlog")

	flag.StringVar(&opt.SysfsRoot, "sysfs-root", opt.SysfsRoot, "Root of the sysfs mount the driver reads/writes through.")
	flag.StringVar(&opt.HTTPAddr, "http-addr", opt.HTTPAddr, "Address to serve the attribute surface and metrics on.")
	flag.StringVar(&opt.DefaultGovernor, "default-governor", opt.DefaultGovernor, "Governor newly attached CPUs get absent a sibling match.")
	flag.StringVar(&opt.PollInterval, "poll-interval", opt.PollInterval, "How often to poll the driver for out-of-sync frequencies.")
	flag.BoolVar(&opt.UseNullDriver, "null-driver", opt.UseNullDriver, "Use the in-memory null driver instead of sysfs (for demos/tests).")
	flag.Parse()

	config.Register("cpufreqd", "coordinator runtime options", opt, defaultOptions).WatchUpdates(func(config.Event) error {
		log.Info("configuration updated")
		return nil
	})

	interval, err := time.ParseDuration(opt.PollInterval)
	if err != nil {
		log.Fatal("invalid -poll-interval %q: %v", opt.PollInterval, err)
	}

	builtin.Register()

	if opt.UseNullDriver {
		if err := driver.Register(nulldriver.New(800000, 3600000)); err != nil {
			log.Fatal("failed to register null driver: %v", err)
		}
	} else {
		if err := driver.Register(sysfsdriver.New(opt.SysfsRoot)); err != nil {
			log.Fatal("failed to register sysfs driver: %v", err)
		}
	}

	table := cpufreq.NewPolicyTable(opt.DefaultGovernor)
	metrics.WatchTransitions(table.Transitions)

	cpus, err := discoverOnlineCPUs(opt.SysfsRoot)
	if err != nil {
		log.Warn("failed to discover online CPUs from sysfs, starting with none: %v", err)
	}
	for _, cpu := range cpus {
		if err := table.AddCPU(cpu); err != nil {
			log.Error("failed to attach cpu%d: %v", cpu, err)
		}
	}
	log.Info("attached %d CPU(s)", len(cpus))

	gatherer, err := metrics.NewMetricGatherer()
	if err != nil {
		log.Fatal("failed to build metrics gatherer: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/policies/", newAttributeHandler(table))

	ocExporter, err := ocprom.NewExporter(ocprom.Options{Namespace: "cpufreqd"})
	if err != nil {
		log.Fatal("failed to create request-latency exporter: %v", err)
	}
	if err := view.Register(ochttp.DefaultServerViews...); err != nil {
		log.Fatal("failed to register http server views: %v", err)
	}
	view.RegisterExporter(ocExporter)
	mux.Handle("/request-metrics", ocExporter)

	srv := &http.Server{Addr: opt.HTTPAddr, Handler: &ochttp.Handler{Handler: mux}}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed: %v", err)
		}
	}()
	log.Info("serving attribute surface and metrics on %s", opt.HTTPAddr)

	stop := make(chan struct{})
	go pollLoop(table, cpus, interval, stop)
	if log.DebugEnabled() {
		go metricsDebugLoop(gatherer, interval, stop)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received signal %v, shutting down", sig)
	close(stop)
}

func pollLoop(table *cpufreq.PolicyTable, cpus []idset.ID, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, cpu := range cpus {
				if err := table.PollCPU(cpu); err != nil {
					log.Debug("poll cpu%d: %v", cpu, err)
				}
			}
		}
	}
}

// metricsDebugLoop periodically dumps the gatherer's families as
// Prometheus exposition text to the debug log, for troubleshooting
// without having to scrape /metrics.
func metricsDebugLoop(gatherer prometheus.Gatherer, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			families, err := metrics.Snapshot(gatherer)
			if err != nil {
				log.Debug("metrics snapshot failed: %v", err)
				continue
			}
			text, err := metrics.FormatFamilies(families)
			if err != nil {
				log.Debug("metrics format failed: %v", err)
				continue
			}
			log.DebugBlock("metrics: ", "%s", text)
		}
	}
}

// discoverOnlineCPUs lists the CPUs sysfs reports online.
func discoverOnlineCPUs(root string) ([]idset.ID, error) {
	set, err := sysfs.ReadIDSet(root+"/devices/system/cpu", "online")
	if err != nil {
		return nil, err
	}
	return set.SortedMembers(), nil
}

// newAttributeHandler serves GET/PUT against /policies/<cpu>/<attribute>,
// a minimal stand-in for a kernel-style sysfs publication this coordinator
// does not itself own.
func newAttributeHandler(table *cpufreq.PolicyTable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/policies/"), "/")
		if len(parts) != 2 {
			http.Error(w, "expected /policies/<cpu>/<attribute>", http.StatusBadRequest)
			return
		}
		cpuNum, err := strconv.Atoi(parts[0])
		if err != nil {
			http.Error(w, "invalid cpu", http.StatusBadRequest)
			return
		}
		cpu := idset.ID(cpuNum)
		attr := parts[1]

		switch r.Method {
		case http.MethodGet:
			val, err := table.ReadAttribute(cpu, attr)
			if err != nil {
				http.Error(w, err.Error(), statusFor(err))
				return
			}
			fmt.Fprintln(w, val)
		case http.MethodPut, http.MethodPost:
			buf := make([]byte, 256)
			n, _ := r.Body.Read(buf)
			if err := table.WriteAttribute(cpu, attr, strings.TrimSpace(string(buf[:n]))); err != nil {
				http.Error(w, err.Error(), statusFor(err))
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, cpufreq.ErrNoSuchDevice):
		return http.StatusNotFound
	case errors.Is(err, cpufreq.ErrInvalidArgument), errors.Is(err, cpufreq.ErrInvalidRange), errors.Is(err, cpufreq.ErrInvalidGovernor):
		return http.StatusBadRequest
	case errors.Is(err, cpufreq.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
