// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lineproto

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of session statistics
type Snapshot struct {
	StartTime     time.Time
	LastFrameTime time.Time

	// Inbound counters
	TotalFrames     uint64
	Readings        uint64
	IgnoredFrames   uint64 // No known tag
	MalformedFrames uint64 // Tag present, no usable digits
	OversizeFrames  uint64

	// Outbound counters
	TotalCommands uint64
	Commands      map[string]uint64
	SendErrors    uint64

	// Rates (calculated)
	FrameRate   float64 // frames/sec
	CommandRate float64 // commands/sec
}

// Statistics tracks frame and command counters.
// Safe for concurrent use; emitters and the dispatcher update it together.
type Statistics struct {
	mu sync.Mutex
	s  Snapshot
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	st := &Statistics{}
	st.Reset()
	return st
}

// RecordFrame counts one received frame
func (st *Statistics) RecordFrame() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.TotalFrames++
	st.s.LastFrameTime = time.Now()
}

// RecordReading counts one parsed reading
func (st *Statistics) RecordReading() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Readings++
}

// RecordIgnored counts a frame carrying no known tag
func (st *Statistics) RecordIgnored() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.IgnoredFrames++
}

// RecordMalformed counts a frame with a known tag but no usable value
func (st *Statistics) RecordMalformed() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.MalformedFrames++
}

// RecordOversize counts a frame dropped for exceeding the size limit
func (st *Statistics) RecordOversize() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.OversizeFrames++
}

// RecordCommand counts one command sent successfully
func (st *Statistics) RecordCommand(name string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.TotalCommands++
	st.s.Commands[name]++
}

// RecordSendError counts a failed send
func (st *Statistics) RecordSendError() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.SendErrors++
}

// Snapshot returns a copy of the counters with rates filled in
func (st *Statistics) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()

	snap := st.s
	snap.Commands = make(map[string]uint64, len(st.s.Commands))
	for k, v := range st.s.Commands {
		snap.Commands[k] = v
	}

	elapsed := time.Since(snap.StartTime).Seconds()
	if elapsed > 0 {
		snap.FrameRate = float64(snap.TotalFrames) / elapsed
		snap.CommandRate = float64(snap.TotalCommands) / elapsed
	}
	return snap
}

// String returns a formatted statistics summary
func (st *Statistics) String() string {
	return st.Snapshot().String()
}

// String returns a formatted statistics summary
func (s Snapshot) String() string {
	var readingPercent, ignoredPercent, malformedPercent float64
	if s.TotalFrames > 0 {
		readingPercent = float64(s.Readings) * 100.0 / float64(s.TotalFrames)
		ignoredPercent = float64(s.IgnoredFrames) * 100.0 / float64(s.TotalFrames)
		malformedPercent = float64(s.MalformedFrames) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Frames Received: %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Readings:        %8d (%.1f%%)\n", s.Readings, readingPercent)

	if s.IgnoredFrames > 0 {
		result += fmt.Sprintf("Ignored Frames:  %8d (%.1f%%)\n", s.IgnoredFrames, ignoredPercent)
	}
	if s.MalformedFrames > 0 {
		result += fmt.Sprintf("Malformed:       %8d (%.1f%%)\n", s.MalformedFrames, malformedPercent)
	}
	if s.OversizeFrames > 0 {
		result += fmt.Sprintf("Oversize Frames: %8d\n", s.OversizeFrames)
	}

	result += fmt.Sprintf("Commands Sent:   %8d\n", s.TotalCommands)
	names := make([]string, 0, len(s.Commands))
	for name := range s.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		result += fmt.Sprintf("  %-15s %5d\n", name+":", s.Commands[name])
	}
	if s.SendErrors > 0 {
		result += fmt.Sprintf("Send Errors:     %8d\n", s.SendErrors)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Command Rate:    %8.1f cmds/sec\n", s.CommandRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (st *Statistics) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	now := time.Now()
	st.s = Snapshot{
		StartTime:     now,
		LastFrameTime: time.Time{},
		Commands:      make(map[string]uint64),
	}
}
