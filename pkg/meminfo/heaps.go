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

package meminfo

import "strings"

// HeapType is a semantic heap category a VMA is classified into by its
// name.
type HeapType int

const (
	HeapUnknown HeapType = iota
	HeapDalvik
	HeapNative
	HeapDalvikOther
	HeapStack
	HeapCursor
	HeapAshmem
	HeapGLDev
	HeapUnknownDev
	HeapSharedObject
	HeapJar
	HeapApk
	HeapTtf
	HeapDex
	HeapOat
	HeapArt
	// HeapUnknownMap is the catch-all bucket for unclassified mappings.
	HeapUnknownMap

	NumHeaps int = iota

	// NumCoreHeaps bounds the categories reported in app-level summaries.
	NumCoreHeaps = int(HeapNative) + 1
)

// HeapStats is the accumulated usage of one heap bucket.
type HeapStats struct {
	Usage MemUsage

	// SwappablePss is the clean, reloadable share of the bucket's PSS.
	// Nonzero only for file-backed categories whose pages can be dropped
	// and paged back in.
	SwappablePss  uint64
	SwappedOut    uint64
	SwappedOutPss uint64
}

type patternKind int

const (
	matchExact patternKind = iota
	matchPrefix
	matchSuffix
)

// One classification rule. Rules are data so the table can be tested on
// its own; evaluation order is top to bottom and the first match wins.
type heapRule struct {
	kind      patternKind
	pattern   string
	heap      HeapType
	swappable bool
}

var heapRules = []heapRule{
	{matchExact, "[heap]", HeapNative, false},
	{matchExact, "[anon:libc_malloc]", HeapNative, false},
	{matchPrefix, "[anon:scudo:", HeapNative, false},
	{matchPrefix, "[anon:GWP-ASan", HeapNative, false},
	{matchPrefix, "[stack", HeapStack, false},
	{matchPrefix, "[anon:stack_and_tls:", HeapStack, false},
	{matchSuffix, ".so", HeapSharedObject, true},
	{matchSuffix, ".jar", HeapJar, true},
	{matchSuffix, ".apk", HeapApk, true},
	{matchSuffix, ".ttf", HeapTtf, true},
	{matchSuffix, ".dex", HeapDex, true},
	{matchSuffix, ".vdex", HeapDex, true},
	{matchSuffix, ".oat", HeapOat, true},
	{matchSuffix, ".odex", HeapOat, true},
	{matchSuffix, ".art", HeapArt, true},
	{matchSuffix, ".art]", HeapArt, true},
	{matchPrefix, "/dev/ashmem/CursorWindow", HeapCursor, false},
	{matchPrefix, "/dev/ashmem/jit-zygote-cache", HeapDalvikOther, false},
	{matchPrefix, "/dev/ashmem", HeapAshmem, false},
	{matchPrefix, "/dev/kgsl-3d0", HeapGLDev, false},
	{matchPrefix, "/dev/", HeapUnknownDev, false},
	{matchPrefix, "[anon:dalvik-", HeapDalvik, false},
}

func (r *heapRule) matches(name string) bool {
	switch r.kind {
	case matchExact:
		return name == r.pattern
	case matchPrefix:
		return strings.HasPrefix(name, r.pattern)
	case matchSuffix:
		return strings.HasSuffix(name, r.pattern)
	}
	return false
}

// ClassifyVmaName returns the heap bucket for a VMA name and whether the
// bucket's pages count as swappable.
func ClassifyVmaName(name string) (HeapType, bool) {
	for i := range heapRules {
		if heapRules[i].matches(name) {
			return heapRules[i].heap, heapRules[i].swappable
		}
	}
	return HeapUnknownMap, false
}

// ExtractHeapStats classifies every VMA into exactly one heap bucket and
// accumulates per-bucket usage. The second result reports whether a
// SwapPss value was actually seen; when it is false, SwappedOutPss was
// approximated by SwappedOut (all swapped pages counted as exclusively
// owned), which older kernels force on us.
func ExtractHeapStats(vmas []*Vma) ([]HeapStats, bool) {
	stats := make([]HeapStats, NumHeaps)
	foundSwapPss := false

	for _, vma := range vmas {
		heap, swappable := ClassifyVmaName(vma.Name)
		s := &stats[heap]
		u := &vma.Usage

		s.Usage.Add(u)
		if swappable && u.Pss > 0 {
			sharingProportion := 0.0
			if u.SharedClean > 0 || u.SharedDirty > 0 {
				sharingProportion = float64(u.Pss-u.Uss) / float64(u.SharedClean+u.SharedDirty)
			}
			s.SwappablePss += uint64(sharingProportion*float64(u.SharedClean)) + u.PrivateClean
		}
		s.SwappedOut += u.Swap
		if u.SwapPss > 0 {
			foundSwapPss = true
			s.SwappedOutPss += u.SwapPss
		} else {
			s.SwappedOutPss += u.Swap
		}
	}
	return stats, foundSwapPss
}

// ExtractHeapStatsFromFile parses an extended-format file and classifies
// its VMAs into heap buckets.
func ExtractHeapStatsFromFile(path string) ([]HeapStats, bool, error) {
	vmas := []*Vma{}
	err := ForEachVmaFromFile(path, true, func(vma *Vma) bool {
		vmas = append(vmas, vma)
		return true
	})
	if err != nil {
		return nil, false, err
	}
	stats, foundSwapPss := ExtractHeapStats(vmas)
	return stats, foundSwapPss, nil
}
