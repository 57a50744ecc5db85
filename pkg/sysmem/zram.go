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
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var zramRoot = "/sys/block"

// MemZramKb sums the compressed-swap pool usage over all zram devices.
// A system without zram reports zero.
func MemZramKb() uint64 {
	var total uint64
	for i := 0; ; i++ {
		dev := filepath.Join(zramRoot, fmt.Sprintf("zram%d", i))
		if _, err := os.Stat(dev); err != nil {
			break
		}
		total += MemZramDeviceKb(dev)
	}
	return total
}

// MemZramDeviceKb returns the memory used by one zram device, probing the
// two sysfs layouts the kernel has shipped: the aggregate mm_stat file
// (third field, bytes) and the older per-value mem_used_total file.
// Neither being present yields zero, not a failure.
func MemZramDeviceKb(devicePath string) uint64 {
	if data, err := os.ReadFile(filepath.Join(devicePath, "mm_stat")); err == nil {
		fields := strings.Fields(string(data))
		if len(fields) < 3 {
			log.Warn("malformed mm_stat in %q", devicePath)
			return 0
		}
		bytes, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			log.Warn("malformed mm_stat in %q: %v", devicePath, err)
			return 0
		}
		return bytes / 1024
	}

	data, err := os.ReadFile(filepath.Join(devicePath, "mem_used_total"))
	if err != nil {
		return 0
	}
	bytes, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		log.Warn("malformed mem_used_total in %q: %v", devicePath, err)
		return 0
	}
	return bytes / 1024
}
