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
	"fmt"

	"golang.org/x/sys/unix"
)

// MemUsage is a memory usage tally. All fields are in kilobytes.
type MemUsage struct {
	Vss uint64
	Rss uint64
	Pss uint64
	Uss uint64

	Swap    uint64
	SwapPss uint64

	PrivateClean uint64
	PrivateDirty uint64
	SharedClean  uint64
	SharedDirty  uint64
}

// Add accumulates other into u field by field.
func (u *MemUsage) Add(other *MemUsage) {
	u.Vss += other.Vss
	u.Rss += other.Rss
	u.Pss += other.Pss
	u.Uss += other.Uss
	u.Swap += other.Swap
	u.SwapPss += other.SwapPss
	u.PrivateClean += other.PrivateClean
	u.PrivateDirty += other.PrivateDirty
	u.SharedClean += other.SharedClean
	u.SharedDirty += other.SharedDirty
}

// Reset zeroes the tally.
func (u *MemUsage) Reset() {
	*u = MemUsage{}
}

// Vma describes one virtual memory area mapping of a process.
type Vma struct {
	Start  uint64
	End    uint64
	Offset uint64
	// Flags is a unix.PROT_* bitmask decoded from the permission field.
	Flags  int
	Shared bool
	Inode  uint64
	Name   string

	Usage MemUsage
}

// String returns the header-line form of the mapping.
func (v *Vma) String() string {
	perms := []byte("---p")
	if v.Flags&unix.PROT_READ != 0 {
		perms[0] = 'r'
	}
	if v.Flags&unix.PROT_WRITE != 0 {
		perms[1] = 'w'
	}
	if v.Flags&unix.PROT_EXEC != 0 {
		perms[2] = 'x'
	}
	if v.Shared {
		perms[3] = 's'
	}
	return fmt.Sprintf("%x-%x %s %08x %d %s", v.Start, v.End, perms, v.Offset, v.Inode, v.Name)
}
