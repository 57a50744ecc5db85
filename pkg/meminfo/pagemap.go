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
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// One 64-bit record per page, indexed by virtual page number.
const pagemapEntrySize = 8

var pageSize = uint64(os.Getpagesize())

// PagePresent reports whether a pagemap entry describes a page resident
// in physical memory.
func PagePresent(entry uint64) bool {
	return entry&(uint64(1)<<63) != 0
}

// PageSwapped reports whether a pagemap entry describes a swapped-out page.
func PageSwapped(entry uint64) bool {
	return entry&(uint64(1)<<62) != 0
}

// PageSwapOffset extracts the swap offset of a swapped-out page's entry.
// Bits 0-4 hold the swap type, bits 5-54 the offset.
func PageSwapOffset(entry uint64) uint64 {
	return (entry >> 5) & ((uint64(1) << 50) - 1)
}

// readPagemap returns the raw pagemap entries covering [start, end) of the
// given pid, one entry per page. Any failure to read the full range fails
// the call; no partial vector is returned.
func readPagemap(pid int, start, end uint64) ([]uint64, error) {
	f, err := os.Open(procPath(pid, "pagemap"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open pagemap of pid %d", pid)
	}
	defer f.Close()

	pageCount := (end - start) / pageSize
	buf := make([]byte, pageCount*pagemapEntrySize)
	offset := int64(start / pageSize * pagemapEntrySize)

	n, err := unix.Pread(int(f.Fd()), buf, offset)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read pagemap of pid %d", pid)
	}
	if n != len(buf) {
		return nil, errors.Errorf("short pagemap read for pid %d: %d/%d bytes", pid, n, len(buf))
	}

	entries := make([]uint64, pageCount)
	for i := range entries {
		entries[i] = binary.LittleEndian.Uint64(buf[i*pagemapEntrySize:])
	}
	return entries, nil
}
