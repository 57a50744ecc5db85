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
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var pageSize = uint64(os.Getpagesize())

// ReadVmallocInfo sums the page-backed allocations of a vmallocinfo-format
// file. Only lines carrying an explicit pages=<N> token contribute, N
// pages each; ioremap-style entries without one count as zero no matter
// what size field they show.
func ReadVmallocInfo(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open %q", path)
	}
	defer f.Close()

	var total uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		for _, field := range strings.Fields(scanner.Text()) {
			if !strings.HasPrefix(field, "pages=") {
				continue
			}
			pages, err := strconv.ParseUint(field[len("pages="):], 10, 64)
			if err != nil {
				return 0, errors.Wrapf(err, "malformed token %q in %q", field, path)
			}
			total += pages * pageSize
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, errors.Wrapf(err, "failed to read %q", path)
	}
	return total, nil
}
