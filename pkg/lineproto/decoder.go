// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lineproto

import (
	"fmt"
	"time"
)

// Decoder states
const (
	stateCollect = iota
	stateDiscard
)

// Decoder reassembles frames from a byte stream, one byte at a time
type Decoder struct {
	state        int
	buffer       []byte
	maxFrameSize int
}

// NewDecoder creates a decoder using DefaultMaxFrameSize
func NewDecoder() *Decoder {
	return NewDecoderSize(DefaultMaxFrameSize)
}

// NewDecoderSize creates a decoder that rejects payloads longer than maxFrameSize.
// Non-positive sizes fall back to DefaultMaxFrameSize.
func NewDecoderSize(maxFrameSize int) *Decoder {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Decoder{
		state:        stateCollect,
		buffer:       make([]byte, 0, 64),
		maxFrameSize: maxFrameSize,
	}
}

// Reset drops any partially received frame
func (d *Decoder) Reset() {
	d.state = stateCollect
	d.buffer = d.buffer[:0]
}

// Pending returns the number of buffered bytes of an incomplete frame
func (d *Decoder) Pending() int {
	return len(d.buffer)
}

// MaxFrameSize returns the payload limit
func (d *Decoder) MaxFrameSize() int {
	return d.maxFrameSize
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns ErrFrameTooLong once per oversize frame; the rest of that frame is
// skipped up to and including its delimiter.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	switch d.state {
	case stateDiscard:
		if b == Delimiter {
			d.Reset()
		}
		return nil, nil

	case stateCollect:
		if b == Delimiter {
			frame := &Frame{
				payload:   make([]byte, len(d.buffer)),
				timestamp: time.Now(),
			}
			copy(frame.payload, d.buffer)
			d.Reset()
			return frame, nil
		}

		if len(d.buffer) >= d.maxFrameSize {
			d.buffer = d.buffer[:0]
			d.state = stateDiscard
			return nil, fmt.Errorf("%w (max %d)", ErrFrameTooLong, d.maxFrameSize)
		}
		d.buffer = append(d.buffer, b)
		return nil, nil

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}
