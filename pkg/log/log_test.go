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

package log

import (
	"testing"
)

func TestGetReturnsSameLogger(t *testing.T) {
	a := NewLogger("test-source")
	b := Get("test-source")
	if a != b {
		t.Errorf("expected the same logger for the same source")
	}

	// Source names are normalized before lookup.
	c := Get("[test-source] ")
	if a != c {
		t.Errorf("expected bracket-decorated source to resolve to the same logger")
	}
}

func TestEnableDebug(t *testing.T) {
	l := NewLogger("debug-source")
	if l.DebugEnabled() {
		t.Errorf("debugging should be off by default")
	}

	old := l.EnableDebug(true)
	if old {
		t.Errorf("EnableDebug should report the previous state")
	}
	if !l.DebugEnabled() {
		t.Errorf("debugging should be enabled")
	}

	if old = l.EnableDebug(false); !old {
		t.Errorf("EnableDebug should report the previous state")
	}
	if l.DebugEnabled() {
		t.Errorf("debugging should be disabled")
	}
}
