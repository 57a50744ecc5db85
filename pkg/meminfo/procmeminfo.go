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

import (
	"os"

	"github.com/pkg/errors"

	logger "github.com/openlmk/meminfo/pkg/log"
)

var (
	// procRoot is the mount point for the proc filesystem.
	procRoot = "/proc"

	log = logger.NewLogger("meminfo")
)

// ProcMemInfo owns the VMA collection of one process and the usage
// aggregates derived from it. It is constructed either for regular usage
// accounting or for working-set accounting; the two views are mutually
// exclusive and the inactive one always reads as zero.
//
// A ProcMemInfo is not safe for concurrent use. Re-scanning operations
// overwrite previous state rather than merge into it.
type ProcMemInfo struct {
	pid        int
	workingSet bool

	maps        []*Vma
	usage       MemUsage
	wss         MemUsage
	swapOffsets []uint64
}

// NewProcMemInfo creates a view of the given process. With workingSet set,
// usage scans populate the working-set aggregate (the sample since the
// last ResetWorkingSet) instead of the regular one.
func NewProcMemInfo(pid int, workingSet bool) *ProcMemInfo {
	return &ProcMemInfo{pid: pid, workingSet: workingSet}
}

// Pid returns the process id this view was constructed for.
func (p *ProcMemInfo) Pid() int {
	return p.pid
}

// Maps returns the process VMAs with usage statistics populated from the
// extended (smaps) file, reading them on first use.
func (p *ProcMemInfo) Maps() ([]*Vma, error) {
	if p.maps != nil {
		return p.maps, nil
	}
	if _, err := p.Smaps("", true); err != nil {
		return nil, err
	}
	return p.maps, nil
}

// MapsWithoutUsageStats populates the VMA collection from the lightweight
// maps file. All usage fields are left zero for a later fill-in step.
func (p *ProcMemInfo) MapsWithoutUsageStats() ([]*Vma, error) {
	maps := []*Vma{}
	err := ForEachVmaFromFile(procPath(p.pid, "maps"), false, func(vma *Vma) bool {
		maps = append(maps, vma)
		return true
	})
	if err != nil {
		return nil, err
	}
	// A live process always has at least one mapping.
	if len(maps) == 0 {
		return nil, errors.Errorf("no maps for pid %d", p.pid)
	}
	p.maps = maps
	return p.maps, nil
}

// Smaps populates the VMA collection from an extended-format file, by
// default the process smaps file. With collectUsage set the per-VMA usage
// is also summed into the aggregate of the active view.
func (p *ProcMemInfo) Smaps(path string, collectUsage bool) ([]*Vma, error) {
	if path == "" {
		path = procPath(p.pid, "smaps")
	}
	maps := []*Vma{}
	err := ForEachVmaFromFile(path, true, func(vma *Vma) bool {
		maps = append(maps, vma)
		return true
	})
	if err != nil {
		return nil, err
	}
	if len(maps) == 0 {
		return nil, errors.Errorf("no maps for pid %d in %q", p.pid, path)
	}
	p.maps = maps

	if collectUsage {
		total := p.aggregate()
		total.Reset()
		for _, vma := range maps {
			total.Add(&vma.Usage)
		}
	}
	return p.maps, nil
}

// GetUsageStats re-reads the extended-format file and fills the usage of
// every cached VMA in place, matched by its (start, end) range. The
// aggregate of the active view is re-derived from scratch; calling this
// repeatedly is the expected polling pattern. A parse failure leaves the
// cached VMAs and the previous aggregate untouched.
func (p *ProcMemInfo) GetUsageStats() error {
	if p.maps == nil {
		if _, err := p.MapsWithoutUsageStats(); err != nil {
			return err
		}
	}

	type addrRange struct{ start, end uint64 }
	parsed := make(map[addrRange]MemUsage, len(p.maps))

	var total MemUsage
	var offsets []uint64

	err := ForEachVmaFromFile(procPath(p.pid, "smaps"), true, func(vma *Vma) bool {
		parsed[addrRange{vma.Start, vma.End}] = vma.Usage
		total.Add(&vma.Usage)
		if p.workingSet && vma.Usage.Swap > 0 {
			offsets = p.collectSwapOffsets(offsets, vma)
		}
		return true
	})
	if err != nil {
		return err
	}

	for _, vma := range p.maps {
		if usage, ok := parsed[addrRange{vma.Start, vma.End}]; ok {
			vma.Usage = usage
		}
	}
	*p.aggregate() = total
	p.swapOffsets = offsets
	return nil
}

// FillInVmaStats refreshes the usage of a single VMA from the extended
// file, matching it by its address range. The rest of the file is not
// visited once the match is enriched.
func (p *ProcMemInfo) FillInVmaStats(vma *Vma) error {
	found := false
	err := ForEachVmaFromFile(procPath(p.pid, "smaps"), true, func(parsed *Vma) bool {
		if parsed.Start == vma.Start && parsed.End == vma.End {
			vma.Usage = parsed.Usage
			found = true
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	if !found {
		return errors.Errorf("vma %x-%x of pid %d no longer exists", vma.Start, vma.End, p.pid)
	}
	return nil
}

// ForEachVmaFromMaps enumerates the current maps file of the process,
// without touching the cached VMA collection. The callback may stop the
// enumeration early by returning false.
func (p *ProcMemInfo) ForEachVmaFromMaps(cb VmaCallback) error {
	return ForEachVmaFromFile(procPath(p.pid, "maps"), false, cb)
}

// ForEachExistingVma walks the cached VMA collection in address order,
// loading it from the maps file if nothing has been read yet.
func (p *ProcMemInfo) ForEachExistingVma(cb VmaCallback) error {
	if p.maps == nil {
		if _, err := p.MapsWithoutUsageStats(); err != nil {
			return err
		}
	}
	for _, vma := range p.maps {
		if !cb(vma) {
			return nil
		}
	}
	return nil
}

// Usage returns the regular-usage aggregate. It reads as zero for a
// working-set view and before the first usage scan.
func (p *ProcMemInfo) Usage() *MemUsage {
	return &p.usage
}

// Wss returns the working-set aggregate. It reads as zero for a
// regular-usage view and before the first usage scan.
func (p *ProcMemInfo) Wss() *MemUsage {
	return &p.wss
}

// SwapOffsets returns the swap offsets recorded during the last
// working-set scan, one entry per swapped-out page.
func (p *ProcMemInfo) SwapOffsets() []uint64 {
	if p.swapOffsets == nil {
		return []uint64{}
	}
	return p.swapOffsets
}

// PageMap returns the raw page-table entries covering the given VMA, one
// entry per page.
func (p *ProcMemInfo) PageMap(vma *Vma) ([]uint64, error) {
	return readPagemap(p.pid, vma.Start, vma.End)
}

func (p *ProcMemInfo) aggregate() *MemUsage {
	if p.workingSet {
		return &p.wss
	}
	return &p.usage
}

// collectSwapOffsets appends the swap offset of every swapped-out page of
// the VMA to offsets. Pagemap may be unreadable for special mappings;
// those are skipped rather than failing the scan.
func (p *ProcMemInfo) collectSwapOffsets(offsets []uint64, vma *Vma) []uint64 {
	entries, err := readPagemap(p.pid, vma.Start, vma.End)
	if err != nil {
		log.Debug("swap offsets of %x-%x unavailable: %v", vma.Start, vma.End, err)
		return offsets
	}
	for _, entry := range entries {
		if PageSwapped(entry) {
			offsets = append(offsets, PageSwapOffset(entry))
		}
	}
	return offsets
}

// ResetWorkingSet clears the referenced bits of all pages mapped by the
// process, starting a new working-set sampling interval.
func ResetWorkingSet(pid int) error {
	path := procPath(pid, "clear_refs")
	if err := os.WriteFile(path, []byte("1\n"), 0600); err != nil {
		return errors.Wrapf(err, "failed to reset working set of pid %d", pid)
	}
	return nil
}
