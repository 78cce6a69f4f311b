// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/greenline/pkg/control"
	"github.com/Thermoquad/greenline/pkg/lineproto"
)

var ErrInvalidInterval = errors.New("emitter interval must be positive")

// Emitter sends one fixed command on a fixed schedule: once after
// InitialDelay, then every Interval.
type Emitter struct {
	Command      control.Command
	InitialDelay time.Duration
	Interval     time.Duration
}

// Validate checks the schedule, and that the command payload fits in a frame
// of maxFrameSize bytes
func (e Emitter) Validate(maxFrameSize int) error {
	if e.Interval <= 0 {
		return fmt.Errorf("emitter %s: %w", e.Command.Name, ErrInvalidInterval)
	}
	if e.InitialDelay < 0 {
		return fmt.Errorf("emitter %s: negative initial delay", e.Command.Name)
	}
	if err := lineproto.ValidatePayload(e.Command.Frame(), maxFrameSize); err != nil {
		return fmt.Errorf("emitter %s: %w", e.Command.Name, err)
	}
	return nil
}

// Run alternates between waiting and sending until ctx is cancelled or a send
// fails. Returns nil on cancellation, including a send that fails because ctx
// was cancelled while it was in flight.
func (e Emitter) Run(ctx context.Context, s control.Sender, obs Observer) error {
	source := EmitterSource(e.Command.Name)

	timer := time.NewTimer(e.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return nil
		}

		if err := s.Send(e.Command.Frame()); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			notify(obs, Event{Kind: EventSendError, Command: e.Command, Source: source, Err: err})
			return fmt.Errorf("emitter %s: %w", e.Command.Name, err)
		}
		notify(obs, Event{Kind: EventCommand, Command: e.Command, Source: source})

		timer.Reset(e.Interval)
	}
}
