// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lineproto

import "time"

// Frame is one delimited unit of the protocol. The delimiter is not part of
// the payload. Frames are immutable once constructed.
type Frame struct {
	payload   []byte
	timestamp time.Time
}

// NewFrame creates a frame holding a copy of payload
func NewFrame(payload []byte) *Frame {
	return NewFrameAt(payload, time.Now())
}

// NewFrameAt is NewFrame with an explicit completion time, for replayed frames
func NewFrameAt(payload []byte, t time.Time) *Frame {
	p := make([]byte, len(payload))
	copy(p, payload)
	return &Frame{
		payload:   p,
		timestamp: t,
	}
}

// Payload returns a copy of the frame payload
func (f *Frame) Payload() []byte {
	p := make([]byte, len(f.payload))
	copy(p, f.payload)
	return p
}

// Text returns the payload as a string
func (f *Frame) Text() string {
	return string(f.payload)
}

// Len returns the payload length in bytes
func (f *Frame) Len() int {
	return len(f.payload)
}

// Timestamp returns when the frame was completed
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}
