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

package metrics

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type testCollector struct {
	desc *prometheus.Desc
}

func newTestCollector() (prometheus.Collector, error) {
	return &testCollector{
		desc: prometheus.NewDesc("test_metric", "Test metric.", nil, nil),
	}, nil
}

func (c *testCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *testCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, 42)
}

func TestRegisterCollector(t *testing.T) {
	require.NoError(t, RegisterCollector("test", newTestCollector))
	require.Error(t, RegisterCollector("test", newTestCollector))
}

func TestNewMetricGatherer(t *testing.T) {
	require.NoError(t, RegisterCollector("gathered", newTestCollector))
	// A collector that fails to initialize is skipped, not fatal.
	require.NoError(t, RegisterCollector("broken", func() (prometheus.Collector, error) {
		return nil, errors.New("no backing hardware")
	}))

	g, err := NewMetricGatherer()
	require.NoError(t, err)

	families, err := g.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range families {
		if mf.GetName() == "test_metric" {
			found = true
			require.Equal(t, float64(42), mf.GetMetric()[0].GetGauge().GetValue())
		}
	}
	require.True(t, found, "test_metric not gathered")
}
