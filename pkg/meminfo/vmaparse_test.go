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
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

const (
	smapsShortPath       = "testdata/smaps_short"
	mapsShortPath        = "testdata/maps_short"
	smapsRollupShortPath = "testdata/smaps_rollup_short"
	statusPath           = "testdata/status"
)

// The six mappings of testdata/smaps_short and testdata/maps_short, in
// file order.
func smapsShortVmas() []*Vma {
	return []*Vma{
		{
			Start: 0x54c00000, End: 0x56c00000,
			Flags: unix.PROT_READ | unix.PROT_EXEC,
			Name:  "[anon:dalvik-zygote-jit-code-cache]",
			Usage: MemUsage{Vss: 32768, Rss: 2048, Pss: 113, SharedDirty: 2048},
		},
		{
			Start: 0x701ea000, End: 0x70cdb000,
			Flags: unix.PROT_READ | unix.PROT_WRITE,
			Inode: 3165,
			Name:  "/system/framework/x86_64/boot-framework.art",
			Usage: MemUsage{
				Vss: 11204, Rss: 11188, Pss: 2200, Uss: 1660,
				SharedClean: 80, SharedDirty: 9448, PrivateDirty: 1660,
			},
		},
		{
			Start: 0x70074dd8d000, End: 0x70074ee0d000,
			Flags: unix.PROT_READ | unix.PROT_WRITE,
			Name:  "[anon:libc_malloc]",
			Usage: MemUsage{Vss: 16896, Rss: 15272, Pss: 15272, Uss: 15272, PrivateDirty: 15272},
		},
		{
			Start: 0x700755a2d000, End: 0x700755a6e000,
			Flags: unix.PROT_READ | unix.PROT_EXEC, Offset: 0x16000,
			Inode: 1947,
			Name:  "/system/priv-app/SettingsProvider/oat/x86_64/SettingsProvider.odex",
			Usage: MemUsage{Vss: 260, Rss: 260, Pss: 260, Uss: 260, PrivateClean: 260},
		},
		{
			Start: 0x7007f85b0000, End: 0x7007f8b9b000,
			Flags: unix.PROT_READ | unix.PROT_EXEC, Offset: 0x1ee000,
			Inode: 1537,
			Name:  "/system/lib64/libhwui.so",
			Usage: MemUsage{Vss: 6060, Rss: 4132, Pss: 1274, SharedClean: 4132},
		},
		{
			Start: 0xffffffffff600000, End: 0xffffffffff601000,
			Flags: unix.PROT_READ | unix.PROT_EXEC,
			Name:  "[vsyscall]",
			Usage: MemUsage{Vss: 4},
		},
	}
}

func collectVmas(t *testing.T, path string, readSmapsFields bool) []*Vma {
	vmas := []*Vma{}
	err := ForEachVmaFromFile(path, readSmapsFields, func(vma *Vma) bool {
		vmas = append(vmas, vma)
		return true
	})
	require.NoError(t, err)
	return vmas
}

func TestForEachVmaFromFileSmaps(t *testing.T) {
	vmas := collectVmas(t, smapsShortPath, true)
	if diff := cmp.Diff(smapsShortVmas(), vmas); diff != "" {
		t.Errorf("unexpected smaps vmas (-want +got):\n%s", diff)
	}
}

func TestForEachVmaFromFileMaps(t *testing.T) {
	expected := smapsShortVmas()
	for _, vma := range expected {
		vma.Usage = MemUsage{}
	}
	vmas := collectVmas(t, mapsShortPath, false)
	if diff := cmp.Diff(expected, vmas); diff != "" {
		t.Errorf("unexpected maps vmas (-want +got):\n%s", diff)
	}
}

func TestForEachVmaFromFileIsRepeatable(t *testing.T) {
	first := collectVmas(t, smapsShortPath, true)
	second := collectVmas(t, smapsShortPath, true)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("re-parsing gave different vmas (-first +second):\n%s", diff)
	}
}

func TestForEachVmaEarlyStop(t *testing.T) {
	seen := 0
	err := ForEachVmaFromFile(smapsShortPath, true, func(vma *Vma) bool {
		seen++
		return seen < 2
	})
	require.NoError(t, err)
	require.Equal(t, 2, seen)
}

func TestForEachVmaMalformedInput(t *testing.T) {
	tcases := []struct {
		name            string
		content         string
		readSmapsFields bool
	}{
		{
			name:            "detail line in maps mode",
			content:         "54c00000-56c00000 r-xp 00000000 00:00 0\nRss: 4 kB\n",
			readSmapsFields: false,
		},
		{
			name:            "bad address range",
			content:         "54cqq000-news r-xp 00000000 00:00 0\n",
			readSmapsFields: true,
		},
		{
			name:            "truncated header",
			content:         "54c00000-56c00000 r-xp\n",
			readSmapsFields: true,
		},
		{
			name:            "bad detail value",
			content:         "54c00000-56c00000 r-xp 00000000 00:00 0\nRss: seven kB\n",
			readSmapsFields: true,
		},
		{
			name:            "detail line before any mapping",
			content:         "Rss: 4 kB\n",
			readSmapsFields: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "smaps")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0644))
			err := ForEachVmaFromFile(path, tc.readSmapsFields, func(vma *Vma) bool { return true })
			require.Error(t, err)
		})
	}
}

func TestForEachVmaMissingFile(t *testing.T) {
	err := ForEachVmaFromFile(filepath.Join(t.TempDir(), "nonexistent"), true, func(vma *Vma) bool { return true })
	require.Error(t, err)
}

func TestSmapsOrRollupFromFileRollup(t *testing.T) {
	usage, err := SmapsOrRollupFromFile(smapsRollupShortPath)
	require.NoError(t, err)
	expected := &MemUsage{
		Rss: 331908, Pss: 202052, Uss: 154488,
		PrivateClean: 90472, PrivateDirty: 64016,
		SharedClean: 75344, SharedDirty: 7056,
		Swap: 5344, SwapPss: 442,
	}
	if diff := cmp.Diff(expected, usage); diff != "" {
		t.Errorf("unexpected rollup usage (-want +got):\n%s", diff)
	}
}

func TestSmapsOrRollupFromFileSmaps(t *testing.T) {
	usage, err := SmapsOrRollupFromFile(smapsShortPath)
	require.NoError(t, err)
	expected := &MemUsage{
		Vss: 67192, Rss: 32900, Pss: 19119, Uss: 17192,
		PrivateClean: 260, PrivateDirty: 16932,
		SharedClean: 4212, SharedDirty: 11496,
	}
	if diff := cmp.Diff(expected, usage); diff != "" {
		t.Errorf("unexpected smaps usage (-want +got):\n%s", diff)
	}
}

func TestSmapsOrRollupPssFromFile(t *testing.T) {
	pss, err := SmapsOrRollupPssFromFile(smapsShortPath)
	require.NoError(t, err)
	require.Equal(t, uint64(19119), pss)

	pss, err = SmapsOrRollupPssFromFile(smapsRollupShortPath)
	require.NoError(t, err)
	require.Equal(t, uint64(202052), pss)
}

func TestStatusVmRSSFromFile(t *testing.T) {
	rss, err := StatusVmRSSFromFile(statusPath)
	require.NoError(t, err)
	require.Equal(t, uint64(730764), rss)
}

func TestStatusVmRSSFromFileErrors(t *testing.T) {
	tcases := []struct {
		name    string
		content string
	}{
		{
			name:    "no VmRSS line",
			content: "Name:\ttest\nPid:\t42\n",
		},
		{
			name:    "malformed VmRSS value",
			content: "Name:\ttest\nVmRSS:\tlots kB\n",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "status")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0644))
			_, err := StatusVmRSSFromFile(path)
			require.Error(t, err)
		})
	}
}

func TestVmaString(t *testing.T) {
	vma := smapsShortVmas()[3]
	require.Equal(t,
		"700755a2d000-700755a6e000 r-xp 00016000 1947 /system/priv-app/SettingsProvider/oat/x86_64/SettingsProvider.odex",
		vma.String())
}
