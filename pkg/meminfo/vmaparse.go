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
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// VmaCallback is invoked once per parsed VMA. Returning false stops the
// enumeration early; early stop is not an error.
type VmaCallback func(vma *Vma) bool

// ForEachVmaFromFile parses a "maps" or "smaps"-format file and invokes cb
// for every VMA found, in file order. With readSmapsFields set, the
// `Key: <int> kB` detail lines following each header are folded into the
// VMA's usage tally; without it every line must be a header line.
//
// A header or recognized detail line that does not parse fails the whole
// enumeration.
func ForEachVmaFromFile(path string, readSmapsFields bool, cb VmaCallback) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %q", path)
	}
	defer f.Close()
	return forEachVma(f, path, readSmapsFields, cb)
}

func forEachVma(r io.Reader, path string, readSmapsFields bool, cb VmaCallback) error {
	var cur *Vma

	flush := func() bool {
		if cur == nil {
			return true
		}
		cur.Usage.Uss = cur.Usage.PrivateClean + cur.Usage.PrivateDirty
		ok := cb(cur)
		cur = nil
		return ok
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if isVmaHeader(line) {
			if !flush() {
				return nil
			}
			vma, err := parseVmaHeader(line)
			if err != nil {
				return errors.Wrapf(err, "malformed line in %q", path)
			}
			cur = vma
			continue
		}
		if !readSmapsFields {
			return errors.Errorf("malformed line in %q: %q", path, line)
		}
		if cur == nil {
			return errors.Errorf("detail line before any mapping in %q: %q", path, line)
		}
		if err := parseUsageLine(line, &cur.Usage); err != nil {
			return errors.Wrapf(err, "malformed line in %q", path)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "failed to read %q", path)
	}
	flush()
	return nil
}

// A mapping header starts with a lowercase hex address; detail lines start
// with an uppercase key.
func isVmaHeader(line string) bool {
	c := line[0]
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
}

// parseVmaHeader picks apart one header line:
//
//	54c00000-56c00000 r-xp 00000000 00:00 0    [anon:dalvik-zygote-jit-code-cache]
func parseVmaHeader(line string) (*Vma, error) {
	fields := strings.SplitN(line, " ", 6)
	if len(fields) < 5 {
		return nil, errors.Errorf("unexpected mapping header %q", line)
	}

	dash := strings.IndexByte(fields[0], '-')
	if dash <= 0 {
		return nil, errors.Errorf("unexpected address range %q", fields[0])
	}
	start, err := strconv.ParseUint(fields[0][:dash], 16, 64)
	if err != nil {
		return nil, errors.Errorf("bad start address in %q", fields[0])
	}
	end, err := strconv.ParseUint(fields[0][dash+1:], 16, 64)
	if err != nil || end <= start {
		return nil, errors.Errorf("bad end address in %q", fields[0])
	}

	perms := fields[1]
	if len(perms) < 4 {
		return nil, errors.Errorf("unexpected permissions %q", perms)
	}
	flags := 0
	if perms[0] == 'r' {
		flags |= unix.PROT_READ
	}
	if perms[1] == 'w' {
		flags |= unix.PROT_WRITE
	}
	if perms[2] == 'x' {
		flags |= unix.PROT_EXEC
	}

	offset, err := strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		return nil, errors.Errorf("bad offset %q", fields[2])
	}
	inode, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return nil, errors.Errorf("bad inode %q", fields[4])
	}

	name := ""
	if len(fields) == 6 {
		name = strings.TrimSpace(fields[5])
	}

	return &Vma{
		Start:  start,
		End:    end,
		Offset: offset,
		Flags:  flags,
		Shared: perms[3] == 's',
		Inode:  inode,
		Name:   name,
	}, nil
}

// parseUsageLine folds one `Key: <int> kB` detail line into usage.
// Unrecognized keys are skipped without looking at their value.
func parseUsageLine(line string, usage *MemUsage) error {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return errors.Errorf("unexpected detail line %q", line)
	}

	var field *uint64
	switch line[:colon] {
	case "Size":
		field = &usage.Vss
	case "Rss":
		field = &usage.Rss
	case "Pss":
		field = &usage.Pss
	case "Shared_Clean":
		field = &usage.SharedClean
	case "Shared_Dirty":
		field = &usage.SharedDirty
	case "Private_Clean":
		field = &usage.PrivateClean
	case "Private_Dirty":
		field = &usage.PrivateDirty
	case "Swap":
		field = &usage.Swap
	case "SwapPss":
		field = &usage.SwapPss
	default:
		return nil
	}

	value, err := parseKbValue(line[colon+1:])
	if err != nil {
		return errors.Wrapf(err, "bad value on line %q", line)
	}
	*field = value
	return nil
}

func parseKbValue(s string) (uint64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, errors.New("missing value")
	}
	return strconv.ParseUint(fields[0], 10, 64)
}

// SmapsOrRollupFromFile reads a whole-process aggregate from an smaps or
// smaps_rollup format file. For a rollup file the single synthetic record
// is the aggregate; for a full smaps file the per-VMA records are summed.
func SmapsOrRollupFromFile(path string) (*MemUsage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", path)
	}
	defer f.Close()

	sum := &MemUsage{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || isVmaHeader(line) {
			continue
		}
		var one MemUsage
		if err := parseUsageLine(line, &one); err != nil {
			return nil, errors.Wrapf(err, "malformed line in %q", path)
		}
		sum.Add(&one)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read %q", path)
	}
	sum.Uss = sum.PrivateClean + sum.PrivateDirty
	return sum, nil
}

// SmapsOrRollupPssFromFile scans only for Pss lines and returns their sum.
// This is the low-latency polling path; everything else in the file is
// ignored.
func SmapsOrRollupPssFromFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open %q", path)
	}
	defer f.Close()

	var pss uint64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Pss:") {
			continue
		}
		value, err := parseKbValue(line[len("Pss:"):])
		if err != nil {
			return 0, errors.Wrapf(err, "malformed line in %q: %q", path, line)
		}
		pss += value
	}
	if err := scanner.Err(); err != nil {
		return 0, errors.Wrapf(err, "failed to read %q", path)
	}
	return pss, nil
}

// SmapsOrRollupPss returns the process PSS, preferring the kernel rollup
// when available and falling back to summing the full smaps file.
func SmapsOrRollupPss(pid int) (uint64, error) {
	path := procPath(pid, "smaps_rollup")
	if _, err := os.Stat(path); err != nil {
		path = procPath(pid, "smaps")
	}
	return SmapsOrRollupPssFromFile(path)
}

// StatusVmRSSFromFile extracts the VmRSS value from a /proc/<pid>/status
// format file. A file without a parsable VmRSS line is a failure.
func StatusVmRSSFromFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open %q", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		rss, err := parseKbValue(line[len("VmRSS:"):])
		if err != nil {
			return 0, errors.Wrapf(err, "malformed line in %q: %q", path, line)
		}
		return rss, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, errors.Wrapf(err, "failed to read %q", path)
	}
	return 0, errors.Errorf("no VmRSS line in %q", path)
}

var (
	smapsRollupOnce      sync.Once
	smapsRollupSupported bool
)

// IsSmapsRollupSupported reports whether the running kernel provides
// /proc/<pid>/smaps_rollup. Probed once per process.
func IsSmapsRollupSupported() bool {
	smapsRollupOnce.Do(func() {
		f, err := os.Open("/proc/self/smaps_rollup")
		if err == nil {
			f.Close()
		}
		smapsRollupSupported = err == nil
	})
	return smapsRollupSupported
}

func procPath(pid int, entry string) string {
	return procRoot + "/" + strconv.Itoa(pid) + "/" + entry
}
