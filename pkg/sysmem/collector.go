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

package sysmem

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openlmk/meminfo/pkg/metrics"
)

// Prometheus metric descriptor indices and descriptor table
const (
	memInfoDesc = iota
	zramUsedDesc
	vmallocUsedDesc
	numDescriptors
)

var descriptors = [numDescriptors]*prometheus.Desc{
	memInfoDesc: prometheus.NewDesc(
		"system_meminfo_kb",
		"Global memory accounting tags in kilobytes.",
		[]string{
			// meminfo tag, colon stripped
			"tag",
		}, nil,
	),
	zramUsedDesc: prometheus.NewDesc(
		"system_zram_used_kb",
		"Memory held by the compressed-swap pools in kilobytes.",
		nil, nil,
	),
	vmallocUsedDesc: prometheus.NewDesc(
		"system_vmalloc_used_kb",
		"Page-backed vmalloc allocations in kilobytes.",
		nil, nil,
	),
}

type collector struct {
}

// NewCollector creates a new prometheus collector for system memory
// statistics.
func NewCollector() (prometheus.Collector, error) {
	return &collector{}, nil
}

// Describe implements the prometheus.Collector interface.
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range descriptors {
		ch <- d
	}
}

// Collect implements the prometheus.Collector interface.
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	vals := make([]uint64, len(DefaultTags))
	if err := ReadMemInfo(DefaultTags, vals, procRoot+"/meminfo"); err != nil {
		log.Error("failed to collect meminfo: %v", err)
	} else {
		for i, tag := range DefaultTags {
			ch <- prometheus.MustNewConstMetric(
				descriptors[memInfoDesc],
				prometheus.GaugeValue,
				float64(vals[i]),
				strings.TrimSuffix(tag, ":"),
			)
		}
	}

	ch <- prometheus.MustNewConstMetric(
		descriptors[zramUsedDesc],
		prometheus.GaugeValue,
		float64(MemZramKb()),
	)

	if vmalloc, err := ReadVmallocInfo(procRoot + "/vmallocinfo"); err != nil {
		log.Error("failed to collect vmallocinfo: %v", err)
	} else {
		ch <- prometheus.MustNewConstMetric(
			descriptors[vmallocUsedDesc],
			prometheus.GaugeValue,
			float64(vmalloc/1024),
		)
	}
}

func init() {
	if err := metrics.RegisterCollector("sysmem", NewCollector); err != nil {
		log.Error("failed to register sysmem collector: %v", err)
	}
}
