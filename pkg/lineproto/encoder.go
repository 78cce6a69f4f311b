// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lineproto

import (
	"bytes"
	"fmt"
)

// EncodeFrame creates a wire-formatted frame: payload followed by the delimiter.
// The payload must be non-empty, must not contain the delimiter and must fit in
// DefaultMaxFrameSize.
func EncodeFrame(payload []byte) ([]byte, error) {
	return encodeFrameSize(payload, DefaultMaxFrameSize)
}

// MustEncodeFrame encodes a frame.
// Panics on encoding error (use EncodeFrame for error handling).
func MustEncodeFrame(payload []byte) []byte {
	data, err := EncodeFrame(payload)
	if err != nil {
		panic(fmt.Sprintf("lineproto: encode error: %v", err))
	}
	return data
}

// ValidatePayload reports whether payload can be sent as a single frame
func ValidatePayload(payload []byte, maxFrameSize int) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if bytes.IndexByte(payload, Delimiter) >= 0 {
		return ErrEmbeddedDelimiter
	}
	if len(payload) > maxFrameSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLong, len(payload), maxFrameSize)
	}
	return nil
}

func encodeFrameSize(payload []byte, maxFrameSize int) ([]byte, error) {
	if err := ValidatePayload(payload, maxFrameSize); err != nil {
		return nil, err
	}

	data := make([]byte, 0, len(payload)+1)
	data = append(data, payload...)
	data = append(data, Delimiter)
	return data, nil
}
