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
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Default accounting paths for the ion and dmabuf allocators.
const (
	IonHeapsSizePath      = "/sys/kernel/ion/total_heaps_kb"
	IonPoolsSizePath      = "/sys/kernel/ion/total_pools_kb"
	DmabufHeapPoolsPath   = "/sys/kernel/dma_heap/total_pools_kb"
	DmabufHeapRootPath    = "/dev/dma_heap"
	DmabufBufferStatsPath = "/sys/kernel/dmabuf/buffers"
)

// readSingleKbFile reads a file holding one bare integer already
// expressed in kilobytes.
func readSingleKbFile(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read %q", path)
	}
	value, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "malformed value in %q", path)
	}
	return value, nil
}

// ReadIonHeapsSizeKb returns the total size of all ion heaps.
func ReadIonHeapsSizeKb(path string) (uint64, error) {
	return readSingleKbFile(path)
}

// ReadIonPoolsSizeKb returns the total size of the ion page pools.
func ReadIonPoolsSizeKb(path string) (uint64, error) {
	return readSingleKbFile(path)
}

// ReadDmabufHeapPoolsSizeKb returns the total size of the dmabuf heap
// page pools.
func ReadDmabufHeapPoolsSizeKb(path string) (uint64, error) {
	return readSingleKbFile(path)
}

// ReadDmabufHeapTotalExportedKb sums the sizes of all live dmabuf buffers
// whose exporter is a known heap. Heap names are the entries of heapRoot;
// each buffer is a directory under bufferStats named by its inode, with
// exporter_name and size (bytes) files. Buffers naming an exporter that
// is not a known heap are excluded from the total rather than lumped into
// another bucket.
func ReadDmabufHeapTotalExportedKb(heapRoot, bufferStats string) (uint64, error) {
	heapEntries, err := os.ReadDir(heapRoot)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to enumerate heaps in %q", heapRoot)
	}
	heaps := make(map[string]bool, len(heapEntries))
	for _, entry := range heapEntries {
		heaps[entry.Name()] = true
	}

	bufferEntries, err := os.ReadDir(bufferStats)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to enumerate buffers in %q", bufferStats)
	}

	var totalBytes uint64
	for _, entry := range bufferEntries {
		dir := filepath.Join(bufferStats, entry.Name())

		exporter, err := os.ReadFile(filepath.Join(dir, "exporter_name"))
		if err != nil {
			return 0, errors.Wrapf(err, "failed to read exporter of buffer %q", entry.Name())
		}
		if !heaps[strings.TrimSpace(string(exporter))] {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, "size"))
		if err != nil {
			return 0, errors.Wrapf(err, "failed to read size of buffer %q", entry.Name())
		}
		size, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "malformed size of buffer %q", entry.Name())
		}
		totalBytes += size
	}
	return totalBytes / 1024, nil
}
