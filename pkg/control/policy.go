// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"errors"
	"fmt"
)

// Side of a threshold split
type Side uint8

const (
	SideBelow Side = iota
	SideAbove
)

// String returns "below" or "above"
func (s Side) String() string {
	switch s {
	case SideBelow:
		return "below"
	case SideAbove:
		return "above"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Side) MarshalText() ([]byte, error) {
	switch s {
	case SideBelow, SideAbove:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("invalid side: %d", uint8(s))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Side) UnmarshalText(text []byte) error {
	switch string(text) {
	case "below":
		*s = SideBelow
	case "above":
		*s = SideAbove
	default:
		return fmt.Errorf("invalid side %q (use below or above)", text)
	}
	return nil
}

var ErrNoCommands = errors.New("policy names no command on either side")

// Policy splits every integer reading into exactly one side of Threshold.
// Values strictly greater than Threshold are above, values strictly less are
// below, and Threshold itself belongs to Boundary. An empty command name on a
// side means readings on that side issue nothing.
type Policy struct {
	Tag       string      `yaml:"tag"`
	Threshold int64       `yaml:"threshold"`
	Boundary  Side        `yaml:"boundary"`
	Above     CommandName `yaml:"above,omitempty"`
	Below     CommandName `yaml:"below,omitempty"`
}

// Classify returns the side value falls on
func (p Policy) Classify(value int64) Side {
	switch {
	case value > p.Threshold:
		return SideAbove
	case value < p.Threshold:
		return SideBelow
	default:
		return p.Boundary
	}
}

// Decide returns the command for value, or false when its side has none
func (p Policy) Decide(value int64) (CommandName, bool) {
	name := p.Below
	if p.Classify(value) == SideAbove {
		name = p.Above
	}
	return name, name != ""
}

// Validate checks the policy against vocab
func (p Policy) Validate(vocab Vocabulary) error {
	if p.Tag == "" {
		return errors.New("policy: empty tag")
	}
	if p.Boundary != SideBelow && p.Boundary != SideAbove {
		return fmt.Errorf("policy %s: invalid boundary %d", p.Tag, uint8(p.Boundary))
	}
	if p.Above == "" && p.Below == "" {
		return fmt.Errorf("policy %s: %w", p.Tag, ErrNoCommands)
	}
	for _, name := range []CommandName{p.Above, p.Below} {
		if name == "" {
			continue
		}
		if _, err := vocab.Command(name); err != nil {
			return fmt.Errorf("policy %s: %w", p.Tag, err)
		}
	}
	return nil
}

// String describes the split, e.g. "LIGHTSENSOR <400 -> lights_on, >=400 -> (none)"
func (p Policy) String() string {
	below, above := "<", ">"
	if p.Boundary == SideBelow {
		below = "<="
	} else {
		above = ">="
	}
	return fmt.Sprintf("%s %s%d -> %s, %s%d -> %s",
		p.Tag, below, p.Threshold, commandOrNone(p.Below), above, p.Threshold, commandOrNone(p.Above))
}

func commandOrNone(name CommandName) string {
	if name == "" {
		return "(none)"
	}
	return string(name)
}
