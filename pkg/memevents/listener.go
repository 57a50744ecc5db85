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

package memevents

import (
	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	logger "github.com/openlmk/meminfo/pkg/log"
)

// Pinned ring-buffer maps published by the kernel-side programs.
const (
	ActivityManagerRingBuf = "/sys/fs/bpf/map_bpfMemEvents_ams_rb"
	LmkdRingBuf            = "/sys/fs/bpf/map_bpfMemEvents_lmkd_rb"
	TestRingBuf            = "/sys/fs/bpf/map_bpfMemEventsTest_rb"
)

var log = logger.NewLogger("memevents")

// Listener reads decoded memory-pressure events from one pinned
// ring-buffer map.
type Listener struct {
	rbMap  *ebpf.Map
	reader *ringbuf.Reader
}

// NewListener opens the pinned ring-buffer map at the given path.
func NewListener(pinnedPath string) (*Listener, error) {
	m, err := ebpf.LoadPinnedMap(pinnedPath, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open pinned map %q", pinnedPath)
	}
	rd, err := ringbuf.NewReader(m)
	if err != nil {
		m.Close()
		return nil, errors.Wrapf(err, "failed to open ring buffer %q", pinnedPath)
	}
	return &Listener{rbMap: m, reader: rd}, nil
}

// Listen delivers events to cb until the callback returns false or the
// listener is closed. Records that fail to decode are logged and skipped;
// the producer may be a newer kernel emitting types we do not know.
func (l *Listener) Listen(cb func(*Event) bool) error {
	for {
		record, err := l.reader.Read()
		if err != nil {
			if isClosed(err) {
				return nil
			}
			return errors.Wrap(err, "failed to read event record")
		}
		ev, err := DecodeEvent(record.RawSample)
		if err != nil {
			log.Warn("dropping event record: %v", err)
			continue
		}
		if !cb(ev) {
			return nil
		}
	}
}

// isClosed reports whether a reader error means the listener was shut
// down. The ringbuf package signals this with its own sentinel, not
// os.ErrClosed.
func isClosed(err error) bool {
	return errors.Is(err, ringbuf.ErrClosed)
}

// Close interrupts a pending Listen and releases the map.
func (l *Listener) Close() error {
	var errs *multierror.Error
	if err := l.reader.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := l.rbMap.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}
