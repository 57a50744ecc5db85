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
	"fmt"
	"strings"
	"sync"

	"k8s.io/klog/v2"
)

// Logger is the interface for producing log messages for a source.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	Fatal(format string, args ...interface{})

	EnableDebug(bool) bool
	DebugEnabled() bool
}

// logger routes messages for a single source to klog.
type logger struct {
	source string
	debug  bool
}

var (
	lock    sync.Mutex
	loggers = make(map[string]*logger)
)

// NewLogger creates a logger for the given source, getting the existing
// one if the source is already registered.
func NewLogger(source string) Logger {
	return Get(source)
}

// Get returns the logger for the given source.
func Get(source string) Logger {
	source = strings.Trim(source, "[] ")

	lock.Lock()
	defer lock.Unlock()

	if l, ok := loggers[source]; ok {
		return l
	}
	l := &logger{source: source}
	loggers[source] = l
	return l
}

// EnableDebug turns debug messages for this source on or off.
func (l *logger) EnableDebug(enabled bool) bool {
	lock.Lock()
	defer lock.Unlock()

	old := l.debug
	l.debug = enabled
	return old
}

// DebugEnabled returns whether debug messages are enabled for this source.
func (l *logger) DebugEnabled() bool {
	lock.Lock()
	defer lock.Unlock()

	return l.debug
}

func (l *logger) format(format string, args ...interface{}) string {
	return "[" + l.source + "] " + fmt.Sprintf(format, args...)
}

// Debug emits a debug message if debugging is enabled for the source.
func (l *logger) Debug(format string, args ...interface{}) {
	if !l.DebugEnabled() {
		return
	}
	klog.InfoDepth(1, l.format(format, args...))
}

// Info emits an informational message.
func (l *logger) Info(format string, args ...interface{}) {
	klog.InfoDepth(1, l.format(format, args...))
}

// Warn emits a warning message.
func (l *logger) Warn(format string, args ...interface{}) {
	klog.WarningDepth(1, l.format(format, args...))
}

// Error emits an error message.
func (l *logger) Error(format string, args ...interface{}) {
	klog.ErrorDepth(1, l.format(format, args...))
}

// Fatal emits an error message and exits.
func (l *logger) Fatal(format string, args ...interface{}) {
	klog.ExitDepth(1, l.format(format, args...))
}
