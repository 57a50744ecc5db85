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

// showmap prints the per-mapping memory usage of one process, the way a
// platform developer wants to read it: one row per distinct mapping name
// with the usual RSS/PSS/USS columns and a total row.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/openlmk/meminfo/pkg/meminfo"
)

var (
	addresses = flag.Bool("a", false, "show virtual addresses (implies -v)")
	quiet     = flag.Bool("q", false, "don't show error if maps could not be read")
	terse     = flag.Bool("t", false, "show only rows with private pages")
	verbose   = flag.Bool("v", false, "don't coalesce maps with the same name")
	fromFile  = flag.String("f", "", "read an smaps-format FILE instead of a live process")
)

type row struct {
	vma   meminfo.Vma
	count int
}

func collectRows(path string) ([]*row, *meminfo.MemUsage, error) {
	coalesce := !*verbose && !*addresses

	var rows []*row
	byName := map[string]*row{}
	total := &meminfo.MemUsage{}

	err := meminfo.ForEachVmaFromFile(path, true, func(vma *meminfo.Vma) bool {
		total.Add(&vma.Usage)
		if coalesce {
			if r, ok := byName[vma.Name]; ok {
				r.vma.Usage.Add(&vma.Usage)
				r.count++
				return true
			}
		}
		r := &row{vma: *vma, count: 1}
		rows = append(rows, r)
		if coalesce {
			byName[vma.Name] = r
		}
		return true
	})
	if err != nil {
		return nil, nil, err
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].vma.Start < rows[j].vma.Start
	})
	return rows, total, nil
}

func printHeader() {
	if *addresses {
		fmt.Printf("%16s %16s ", "start", "end")
	}
	fmt.Printf("%8s %8s %8s %8s %8s %8s %8s %8s %8s %8s %6s %s\n",
		"virtual", "RSS", "PSS", "USS",
		"shared", "shared", "private", "private", "swap", "swapPSS", "#", "object")
	if *addresses {
		fmt.Printf("%16s %16s ", "", "")
	}
	fmt.Printf("%8s %8s %8s %8s %8s %8s %8s %8s %8s %8s %6s\n",
		"size", "", "", "", "clean", "dirty", "clean", "dirty", "", "", "")
}

func printRow(r *row) {
	u := &r.vma.Usage
	if *terse && u.PrivateClean+u.PrivateDirty == 0 {
		return
	}
	if *addresses {
		fmt.Printf("%16x %16x ", r.vma.Start, r.vma.End)
	}
	name := r.vma.Name
	if name == "" {
		name = "[anon]"
	}
	fmt.Printf("%8d %8d %8d %8d %8d %8d %8d %8d %8d %8d %6d %s\n",
		u.Vss, u.Rss, u.Pss, u.Uss,
		u.SharedClean, u.SharedDirty, u.PrivateClean, u.PrivateDirty,
		u.Swap, u.SwapPss, r.count, name)
}

func main() {
	flag.Parse()

	path := *fromFile
	if path == "" {
		if flag.NArg() != 1 {
			fmt.Fprintf(os.Stderr, "usage: %s [-aqtv] [-f FILE] PID\n", os.Args[0])
			os.Exit(1)
		}
		pid, err := strconv.Atoi(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid pid %q\n", flag.Arg(0))
			os.Exit(1)
		}
		path = fmt.Sprintf("/proc/%d/smaps", pid)
	}

	rows, total, err := collectRows(path)
	if err != nil || len(rows) == 0 {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "cannot read maps from %q: %v\n", path, err)
		}
		os.Exit(1)
	}

	printHeader()
	for _, r := range rows {
		printRow(r)
	}
	if *addresses {
		fmt.Printf("%16s %16s ", "", "")
	}
	fmt.Printf("%8d %8d %8d %8d %8d %8d %8d %8d %8d %8d %6s TOTAL\n",
		total.Vss, total.Rss, total.Pss, total.Uss,
		total.SharedClean, total.SharedDirty, total.PrivateClean, total.PrivateDirty,
		total.Swap, total.SwapPss, "")
}
