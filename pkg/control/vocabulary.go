// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package control maps sensor readings to actuator commands.
//
// Commands are named, parameterless instructions whose wire spelling comes from
// a per-deployment Vocabulary. A Policy splits the integer domain at a
// threshold and names the command for each side; a Controller applies one
// policy to readings as they arrive.
package control

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Thermoquad/greenline/pkg/lineproto"
)

// CommandName identifies a command independently of its wire spelling
type CommandName string

// Command names understood by the gateway firmware
const (
	CommandWater     CommandName = "water"
	CommandPowerOn   CommandName = "power_on"
	CommandLightsOn  CommandName = "lights_on"
	CommandLightsOff CommandName = "lights_off"
)

var (
	ErrUnknownCommand  = errors.New("unknown command")
	ErrEmptyVocabulary = errors.New("empty vocabulary")
)

// Command is a fixed, pre-encoded instruction to the gateway
type Command struct {
	Name    CommandName
	Payload string
}

// Frame returns the command's wire payload (without delimiter)
func (c Command) Frame() []byte {
	return []byte(c.Payload)
}

// String returns "name=PAYLOAD"
func (c Command) String() string {
	return fmt.Sprintf("%s=%s", c.Name, c.Payload)
}

// Vocabulary maps command names to their literal wire payloads
type Vocabulary map[CommandName]string

// Command looks up a command by name
func (v Vocabulary) Command(name CommandName) (Command, error) {
	payload, ok := v[name]
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return Command{Name: name, Payload: payload}, nil
}

// Names returns the command names in sorted order
func (v Vocabulary) Names() []CommandName {
	names := make([]CommandName, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Validate checks every payload can be sent as a single frame of at most
// maxFrameSize bytes
func (v Vocabulary) Validate(maxFrameSize int) error {
	if len(v) == 0 {
		return ErrEmptyVocabulary
	}
	for _, name := range v.Names() {
		if name == "" {
			return fmt.Errorf("vocabulary: empty command name")
		}
		if err := lineproto.ValidatePayload([]byte(v[name]), maxFrameSize); err != nil {
			return fmt.Errorf("vocabulary: command %q: %w", name, err)
		}
	}
	return nil
}
