// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package lineproto implements the newline-delimited text protocol spoken by the
// sensor-mesh gateway.
//
// A frame is any run of bytes terminated by a single newline. Frames carry no
// length prefix, no checksum and no acknowledgment. The gateway sends telemetry
// lines such as "LIGHTSENSOR350"; the client answers with bare command words
// such as "WATER". This package provides the frame decoder and encoder, a
// write-serialized Channel over any io.ReadWriter, the tagged reading parser and
// session statistics.
package lineproto

import "errors"

// Delimiter terminates every frame on the wire.
const Delimiter = '\n'

// DefaultMaxFrameSize bounds a single frame payload, excluding the delimiter.
const DefaultMaxFrameSize = 1024

// Known sensor tags emitted by the gateway
const (
	TagLightSensor = "LIGHTSENSOR"
)

var (
	ErrFrameTooLong      = errors.New("frame exceeds maximum size")
	ErrEmbeddedDelimiter = errors.New("payload contains frame delimiter")
	ErrEmptyPayload      = errors.New("empty payload")
	ErrConcurrentReceive = errors.New("concurrent Receive on channel")
)
