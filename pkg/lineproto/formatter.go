// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lineproto

import (
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"
)

// Direction of a frame relative to this client
type Direction uint8

const (
	Inbound  Direction = 1 // gateway -> client
	Outbound Direction = 2 // client -> gateway
)

// String returns RX or TX
func (d Direction) String() string {
	switch d {
	case Inbound:
		return "RX"
	case Outbound:
		return "TX"
	default:
		return "??"
	}
}

// TimestampFormat is used for every log line
const TimestampFormat = "15:04:05.000"

// FormatFrame formats a received frame as a single log line
func FormatFrame(f *Frame) string {
	return FormatLine(f.Timestamp(), Inbound, f.payload, "")
}

// FormatCommand formats an outbound command as a single log line
func FormatCommand(t time.Time, name string, payload []byte) string {
	return FormatLine(t, Outbound, payload, name)
}

// FormatLine formats one frame. Printable text is shown as is; payloads with
// control characters or invalid UTF-8 are shown quoted.
func FormatLine(t time.Time, dir Direction, payload []byte, label string) string {
	text := FormatPayload(payload)
	if label != "" {
		return fmt.Sprintf("[%s] %s %s (%s)\n", t.Format(TimestampFormat), dir, text, label)
	}
	return fmt.Sprintf("[%s] %s %s\n", t.Format(TimestampFormat), dir, text)
}

// FormatPayload renders payload bytes for humans
func FormatPayload(payload []byte) string {
	if len(payload) == 0 {
		return `""`
	}
	if !utf8.Valid(payload) {
		return strconv.Quote(string(payload))
	}
	for _, r := range string(payload) {
		if !strconv.IsPrint(r) {
			return strconv.Quote(string(payload))
		}
	}
	return string(payload)
}
