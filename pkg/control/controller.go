// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"fmt"

	"github.com/Thermoquad/greenline/pkg/lineproto"
)

// Sender writes one frame payload to the gateway
type Sender interface {
	Send(payload []byte) error
}

// Controller applies one threshold policy to readings.
// It keeps no history: two readings on the same side produce the same command twice.
type Controller struct {
	policy   Policy
	commands map[Side]Command
}

// NewController validates policy against vocab and resolves its commands
func NewController(policy Policy, vocab Vocabulary) (*Controller, error) {
	if err := policy.Validate(vocab); err != nil {
		return nil, err
	}

	c := &Controller{
		policy:   policy,
		commands: make(map[Side]Command, 2),
	}
	if policy.Below != "" {
		c.commands[SideBelow], _ = vocab.Command(policy.Below)
	}
	if policy.Above != "" {
		c.commands[SideAbove], _ = vocab.Command(policy.Above)
	}
	return c, nil
}

// Tag returns the sensor tag this controller listens to
func (c *Controller) Tag() string {
	return c.policy.Tag
}

// Policy returns the controller's policy
func (c *Controller) Policy() Policy {
	return c.policy
}

// Parse extracts this controller's reading from a frame payload
func (c *Controller) Parse(payload string) (lineproto.Reading, bool) {
	return lineproto.ParseReading(payload, c.policy.Tag)
}

// Evaluate selects the command for reading, or false when none applies
func (c *Controller) Evaluate(reading lineproto.Reading) (Command, bool) {
	if reading.Tag != c.policy.Tag {
		return Command{}, false
	}
	cmd, ok := c.commands[c.policy.Classify(reading.Value)]
	return cmd, ok
}

// Apply evaluates reading and sends the selected command, if any
func (c *Controller) Apply(reading lineproto.Reading, s Sender) (Command, bool, error) {
	cmd, ok := c.Evaluate(reading)
	if !ok {
		return Command{}, false, nil
	}
	if err := s.Send(cmd.Frame()); err != nil {
		return cmd, true, fmt.Errorf("send %s: %w", cmd.Name, err)
	}
	return cmd, true, nil
}
