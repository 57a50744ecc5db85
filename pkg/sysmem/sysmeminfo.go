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

// Package sysmem aggregates system-wide memory accounting from the
// global descriptor files: meminfo tags, the vmalloc ledger, zram usage
// and the ion/dmabuf heap pools.
package sysmem

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	logger "github.com/openlmk/meminfo/pkg/log"
)

var (
	// procRoot is the mount point for the proc filesystem.
	procRoot = "/proc"

	log = logger.NewLogger("sysmem")
)

// Ordinals into the value array read with DefaultTags.
const (
	MemTotal = iota
	MemFree
	MemBuffers
	MemCached
	MemShmem
	MemSlab
	MemSlabReclaimable
	MemSlabUnreclaimable
	MemSwapTotal
	MemSwapFree
	MemMapped
	MemVmallocUsed
	MemPageTables
	MemKernelStack
	MemKReclaimable
	MemActive
	MemInactive
	MemUnevictable
	MemAvailable
	MemActiveAnon
	MemInactiveAnon
	MemActiveFile
	MemInactiveFile
	MemCmaTotal
	MemCmaFree
	numDefaultTags
)

// DefaultTags is the default ordered tag set for ReadMemInfo. The tag
// order determines the position of each value in the output array; a
// caller-supplied set is just a different ordered list.
var DefaultTags = []string{
	"MemTotal:",
	"MemFree:",
	"Buffers:",
	"Cached:",
	"Shmem:",
	"Slab:",
	"SReclaimable:",
	"SUnreclaim:",
	"SwapTotal:",
	"SwapFree:",
	"Mapped:",
	"VmallocUsed:",
	"PageTables:",
	"KernelStack:",
	"KReclaimable:",
	"Active:",
	"Inactive:",
	"Unevictable:",
	"MemAvailable:",
	"Active(anon):",
	"Inactive(anon):",
	"Active(file):",
	"Inactive(file):",
	"CmaTotal:",
	"CmaFree:",
}

// ReadMemInfo scans a meminfo-format file once. A line whose leading tag
// (colon included) appears in tags has its kilobyte value stored at the
// tag's ordinal position in out; unmatched lines are skipped and the last
// occurrence of a tag wins. An empty file reads as all zeroes.
func ReadMemInfo(tags []string, out []uint64, path string) error {
	if len(out) < len(tags) {
		return errors.Errorf("meminfo output array too short: %d < %d", len(out), len(tags))
	}
	for i := range tags {
		out[i] = 0
	}

	ordinal := make(map[string]int, len(tags))
	for i, tag := range tags {
		ordinal[tag] = i
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %q", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		i, ok := ordinal[line[:colon+1]]
		if !ok {
			continue
		}
		fields := strings.Fields(line[colon+1:])
		if len(fields) == 0 {
			continue
		}
		value, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return errors.Wrapf(err, "malformed line in %q: %q", path, line)
		}
		out[i] = value
	}
	return errors.Wrapf(scanner.Err(), "failed to read %q", path)
}

// SysMemInfo holds the values of the default tag set.
type SysMemInfo struct {
	vals [numDefaultTags]uint64
}

// ReadMemInfo populates the tally from /proc/meminfo.
func (mi *SysMemInfo) ReadMemInfo() error {
	return mi.ReadMemInfoFromFile(procRoot + "/meminfo")
}

// ReadMemInfoFromFile populates the tally from the given meminfo-format
// file.
func (mi *SysMemInfo) ReadMemInfoFromFile(path string) error {
	return ReadMemInfo(DefaultTags, mi.vals[:], path)
}

func (mi *SysMemInfo) MemTotalKb() uint64   { return mi.vals[MemTotal] }
func (mi *SysMemInfo) MemFreeKb() uint64    { return mi.vals[MemFree] }
func (mi *SysMemInfo) MemBuffersKb() uint64 { return mi.vals[MemBuffers] }
func (mi *SysMemInfo) MemCachedKb() uint64  { return mi.vals[MemCached] }
func (mi *SysMemInfo) MemShmemKb() uint64   { return mi.vals[MemShmem] }
func (mi *SysMemInfo) MemSlabKb() uint64    { return mi.vals[MemSlab] }
func (mi *SysMemInfo) MemSlabReclaimableKb() uint64 {
	return mi.vals[MemSlabReclaimable]
}
func (mi *SysMemInfo) MemSlabUnreclaimableKb() uint64 {
	return mi.vals[MemSlabUnreclaimable]
}
func (mi *SysMemInfo) MemSwapKb() uint64         { return mi.vals[MemSwapTotal] }
func (mi *SysMemInfo) MemSwapFreeKb() uint64     { return mi.vals[MemSwapFree] }
func (mi *SysMemInfo) MemMappedKb() uint64       { return mi.vals[MemMapped] }
func (mi *SysMemInfo) MemVmallocUsedKb() uint64  { return mi.vals[MemVmallocUsed] }
func (mi *SysMemInfo) MemPageTablesKb() uint64   { return mi.vals[MemPageTables] }
func (mi *SysMemInfo) MemKernelStackKb() uint64  { return mi.vals[MemKernelStack] }
func (mi *SysMemInfo) MemKReclaimableKb() uint64 { return mi.vals[MemKReclaimable] }
func (mi *SysMemInfo) MemActiveKb() uint64       { return mi.vals[MemActive] }
func (mi *SysMemInfo) MemInactiveKb() uint64     { return mi.vals[MemInactive] }
func (mi *SysMemInfo) MemUnevictableKb() uint64  { return mi.vals[MemUnevictable] }
func (mi *SysMemInfo) MemAvailableKb() uint64    { return mi.vals[MemAvailable] }
func (mi *SysMemInfo) MemActiveAnonKb() uint64   { return mi.vals[MemActiveAnon] }
func (mi *SysMemInfo) MemInactiveAnonKb() uint64 { return mi.vals[MemInactiveAnon] }
func (mi *SysMemInfo) MemActiveFileKb() uint64   { return mi.vals[MemActiveFile] }
func (mi *SysMemInfo) MemInactiveFileKb() uint64 { return mi.vals[MemInactiveFile] }
func (mi *SysMemInfo) MemCmaTotalKb() uint64     { return mi.vals[MemCmaTotal] }
func (mi *SysMemInfo) MemCmaFreeKb() uint64      { return mi.vals[MemCmaFree] }
