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

// memstats periodically dumps the system memory metrics of all
// registered collectors in prometheus text format.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/openlmk/meminfo/pkg/metrics"
	_ "github.com/openlmk/meminfo/pkg/sysmem"
)

func main() {
	interval := flag.Duration("interval", 5*time.Second, "delay between metric dumps")
	once := flag.Bool("once", false, "dump metrics once and exit")
	flag.Parse()

	g, err := metrics.NewMetricGatherer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create metric gatherer: %v\n", err)
		os.Exit(1)
	}

	for {
		mfs, err := g.Gather()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to gather metrics: %v\n", err)
		}
		for _, mf := range mfs {
			out := &bytes.Buffer{}
			if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
				fmt.Fprintf(os.Stderr, "failed to format %s: %v\n", mf.GetName(), err)
				continue
			}
			fmt.Print(out)
		}
		if *once {
			return
		}
		time.Sleep(*interval)
	}
}
