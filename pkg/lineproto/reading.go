// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lineproto

import (
	"strconv"
	"strings"
)

// Reading is a tagged numeric sensor value extracted from a frame
type Reading struct {
	Tag   string
	Value int64
}

// ParseReading extracts a reading for tag from a frame payload.
//
// The extraction is deliberately loose and matches what the gateway firmware
// actually prints: the payload is split on every occurrence of tag and every
// ASCII digit of every segment is concatenated, in order, into one number.
// Signs, decimal points and all other characters are dropped, so the parser
// has no notion of negative or fractional values. The firmware writes
// "LIGHTSENSOR<n> \nLIGHTSENSOR", so the tag can legitimately appear twice in
// the next line.
//
// No reading is produced when tag is absent, when no digit was found, or when
// the digits overflow int64.
func ParseReading(payload, tag string) (Reading, bool) {
	if tag == "" {
		return Reading{}, false
	}

	segments := strings.Split(payload, tag)
	if len(segments) < 2 {
		return Reading{}, false
	}

	var digits strings.Builder
	for _, segment := range segments {
		for i := 0; i < len(segment); i++ {
			if c := segment[i]; c >= '0' && c <= '9' {
				digits.WriteByte(c)
			}
		}
	}
	if digits.Len() == 0 {
		return Reading{}, false
	}

	value, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return Reading{}, false
	}
	return Reading{Tag: tag, Value: value}, true
}

// HasTag reports whether payload mentions tag at all
func HasTag(payload, tag string) bool {
	return tag != "" && strings.Contains(payload, tag)
}
