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

// Package memevents decodes the fixed-layout memory-pressure event
// records the kernel-side tracepoint programs publish over BPF ring
// buffers. The records carry no self-describing schema; every offset
// here must match the producing kernel exactly.
package memevents

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// EventType is the leading 8-byte discriminant of every record.
type EventType uint64

const (
	EventOomKill EventType = iota
	EventDirectReclaimBegin
	EventDirectReclaimEnd
	EventKswapdWake
	EventKswapdSleep

	NumEventTypes
)

const (
	// ProcNameLen is the fixed process-name buffer size (linux/sched.h).
	ProcNameLen = 16
	// RingBufSize is the size of the kernel-side ring buffers.
	RingBufSize = 4096

	// eventSize is the wire size of one record: the discriminant plus
	// the largest payload variant, padded to 8-byte alignment.
	eventSize = 96
)

// OomKill is the payload of an out-of-memory victim-selection event.
type OomKill struct {
	Pid         uint32
	TimestampMs uint64
	OomScoreAdj uint64
	UID         uint32
	ProcessName string

	TotalVmKb  uint64
	AnonRssKb  uint64
	FileRssKb  uint64
	ShmemRssKb uint64
	PgtablesKb uint64
}

// KswapdWake is the payload of a reclaim-wake event.
type KswapdWake struct {
	NodeID     uint32
	ZoneID     uint32
	AllocOrder uint32
}

// KswapdSleep is the payload of a reclaim-sleep event.
type KswapdSleep struct {
	NodeID uint32
}

// Event is one decoded record. Only the payload selected by Type is
// populated; reclaim begin/end events carry no payload at all.
type Event struct {
	Type EventType

	OomKill     OomKill
	KswapdWake  KswapdWake
	KswapdSleep KswapdSleep
}

// Payload field offsets within a record. The union payload starts right
// after the 8-byte discriminant; inner offsets follow the C layout of the
// producer, padding included.
const (
	oomPidOff       = 8
	oomTimestampOff = 16
	oomScoreAdjOff  = 24
	oomUIDOff       = 32
	oomNameOff      = 36
	oomTotalVmOff   = 56
	oomAnonRssOff   = 64
	oomFileRssOff   = 72
	oomShmemRssOff  = 80
	oomPgtablesOff  = 88

	wakeNodeOff  = 8
	wakeZoneOff  = 12
	wakeOrderOff = 16

	sleepNodeOff = 8
)

// DecodeEvent decodes one raw ring-buffer record. The discriminant is
// decoded first; the payload is interpreted only once the type is known.
func DecodeEvent(raw []byte) (*Event, error) {
	if len(raw) < 8 {
		return nil, errors.Errorf("record too short for discriminant: %d bytes", len(raw))
	}
	le := binary.LittleEndian
	ev := &Event{Type: EventType(le.Uint64(raw))}
	if ev.Type >= NumEventTypes {
		return nil, errors.Errorf("unknown event type %d", uint64(ev.Type))
	}

	switch ev.Type {
	case EventOomKill:
		if len(raw) < eventSize {
			return nil, errors.Errorf("oom kill record too short: %d bytes", len(raw))
		}
		name := raw[oomNameOff : oomNameOff+ProcNameLen]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		ev.OomKill = OomKill{
			Pid:         le.Uint32(raw[oomPidOff:]),
			TimestampMs: le.Uint64(raw[oomTimestampOff:]),
			OomScoreAdj: le.Uint64(raw[oomScoreAdjOff:]),
			UID:         le.Uint32(raw[oomUIDOff:]),
			ProcessName: string(name),
			TotalVmKb:   le.Uint64(raw[oomTotalVmOff:]),
			AnonRssKb:   le.Uint64(raw[oomAnonRssOff:]),
			FileRssKb:   le.Uint64(raw[oomFileRssOff:]),
			ShmemRssKb:  le.Uint64(raw[oomShmemRssOff:]),
			PgtablesKb:  le.Uint64(raw[oomPgtablesOff:]),
		}
	case EventKswapdWake:
		if len(raw) < wakeOrderOff+4 {
			return nil, errors.Errorf("kswapd wake record too short: %d bytes", len(raw))
		}
		ev.KswapdWake = KswapdWake{
			NodeID:     le.Uint32(raw[wakeNodeOff:]),
			ZoneID:     le.Uint32(raw[wakeZoneOff:]),
			AllocOrder: le.Uint32(raw[wakeOrderOff:]),
		}
	case EventKswapdSleep:
		if len(raw) < sleepNodeOff+4 {
			return nil, errors.Errorf("kswapd sleep record too short: %d bytes", len(raw))
		}
		ev.KswapdSleep = KswapdSleep{NodeID: le.Uint32(raw[sleepNodeOff:])}
	}
	return ev, nil
}

// Tracepoint argument layouts of the producing kernel. Each begins with a
// fixed ignore prefix of common tracepoint header bytes; the real fields
// start after it.
const (
	markVictimIgnoreBytes         = 8
	directReclaimBeginIgnoreBytes = 24
	directReclaimEndIgnoreBytes   = 16
	kswapdWakeIgnoreBytes         = 8
	kswapdSleepIgnoreBytes        = 8
)

// MarkVictimArgs mirrors the oom/mark_victim tracepoint argument record.
type MarkVictimArgs struct {
	Pid         uint32
	TotalVm     uint64
	AnonRss     uint64
	FileRss     uint64
	ShmemRss    uint64
	UID         uint32
	Pgtables    uint64
	OomScoreAdj int16
}

// DecodeMarkVictimArgs decodes a raw oom/mark_victim tracepoint record.
func DecodeMarkVictimArgs(raw []byte) (*MarkVictimArgs, error) {
	// pid:4, __data_loc comm:4, five uint64 counters with uid between,
	// one short. Offsets follow the C layout after the ignore prefix.
	const need = markVictimIgnoreBytes + 58
	if len(raw) < need {
		return nil, errors.Errorf("mark_victim record too short: %d bytes", len(raw))
	}
	le := binary.LittleEndian
	p := raw[markVictimIgnoreBytes:]
	return &MarkVictimArgs{
		Pid:         le.Uint32(p[0:]),
		TotalVm:     le.Uint64(p[8:]),
		AnonRss:     le.Uint64(p[16:]),
		FileRss:     le.Uint64(p[24:]),
		ShmemRss:    le.Uint64(p[32:]),
		UID:         le.Uint32(p[40:]),
		Pgtables:    le.Uint64(p[48:]),
		OomScoreAdj: int16(le.Uint16(p[56:])),
	}, nil
}

// KswapdWakeArgs mirrors the vmscan/mm_vmscan_kswapd_wake tracepoint
// argument record.
type KswapdWakeArgs struct {
	Nid   uint32
	Zid   uint32
	Order uint32
}

// DecodeKswapdWakeArgs decodes a raw kswapd_wake tracepoint record.
func DecodeKswapdWakeArgs(raw []byte) (*KswapdWakeArgs, error) {
	const need = kswapdWakeIgnoreBytes + 12
	if len(raw) < need {
		return nil, errors.Errorf("kswapd_wake record too short: %d bytes", len(raw))
	}
	le := binary.LittleEndian
	p := raw[kswapdWakeIgnoreBytes:]
	return &KswapdWakeArgs{
		Nid:   le.Uint32(p[0:]),
		Zid:   le.Uint32(p[4:]),
		Order: le.Uint32(p[8:]),
	}, nil
}

// KswapdSleepArgs mirrors the vmscan/mm_vmscan_kswapd_sleep tracepoint
// argument record.
type KswapdSleepArgs struct {
	Nid uint32
}

// DecodeKswapdSleepArgs decodes a raw kswapd_sleep tracepoint record.
func DecodeKswapdSleepArgs(raw []byte) (*KswapdSleepArgs, error) {
	const need = kswapdSleepIgnoreBytes + 4
	if len(raw) < need {
		return nil, errors.Errorf("kswapd_sleep record too short: %d bytes", len(raw))
	}
	p := raw[kswapdSleepIgnoreBytes:]
	return &KswapdSleepArgs{Nid: binary.LittleEndian.Uint32(p[0:])}, nil
}
