// Copyright 2022 The OpenLMK Authors. All Rights Reserved.
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

// Package metrics is a registry of named prometheus collectors that
// consuming daemons can gather from.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	logger "github.com/openlmk/meminfo/pkg/log"
)

// InitCollector is the type for functions that initialize collectors.
type InitCollector func() (prometheus.Collector, error)

var (
	log = logger.NewLogger("metrics")

	collectors = make(map[string]InitCollector)
)

// RegisterCollector registers the named prometheus.Collector for metrics
// collection.
func RegisterCollector(name string, init InitCollector) error {
	if _, found := collectors[name]; found {
		return metricsError("collector %s already registered", name)
	}
	collectors[name] = init
	return nil
}

// NewMetricGatherer creates a new prometheus.Gatherer with all registered
// collectors. A collector that fails to initialize is skipped, not fatal.
func NewMetricGatherer() (prometheus.Gatherer, error) {
	reg := prometheus.NewPedanticRegistry()

	for name, init := range collectors {
		c, err := init()
		if err != nil {
			log.Error("failed to initialize collector %s: %v, skipping it", name, err)
			continue
		}
		if err := reg.Register(c); err != nil {
			return nil, metricsError("failed to register collector %s: %v", name, err)
		}
	}
	return reg, nil
}

func metricsError(format string, args ...interface{}) error {
	return fmt.Errorf("metrics: "+format, args...)
}
