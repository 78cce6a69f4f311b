// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Thermoquad/greenline/pkg/control"
	"github.com/Thermoquad/greenline/pkg/lineproto"
)

// Receiver yields inbound frames; io.EOF marks the end of the stream
type Receiver interface {
	Receive() (*lineproto.Frame, error)
}

// Dispatcher is the single consumer of inbound frames. It routes every frame
// to the controllers whose tag it carries and writes the resulting commands.
type Dispatcher struct {
	receiver    Receiver
	sender      control.Sender
	controllers []*control.Controller
	observer    Observer

	// eof is set once Run has read the end of the stream
	eof bool
}

// NewDispatcher creates a dispatcher. obs may be nil.
func NewDispatcher(r Receiver, s control.Sender, controllers []*control.Controller, obs Observer) *Dispatcher {
	return &Dispatcher{
		receiver:    r,
		sender:      s,
		controllers: controllers,
		observer:    obs,
	}
}

// Run receives and dispatches frames until the stream ends.
//
// Returns nil when the peer closes the stream or ctx is cancelled. Oversize
// frames are reported and skipped. Any other receive error, and any failure to
// send a triggered command, is returned.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		frame, err := d.receiver.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				d.eof = true
				notify(d.observer, Event{Kind: EventClosed})
				return nil
			}
			if errors.Is(err, lineproto.ErrFrameTooLong) {
				notify(d.observer, Event{Kind: EventOversize, Err: err})
				continue
			}
			return fmt.Errorf("receive: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}

		if err := d.Dispatch(frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Dispatch handles one frame. Frames without a known tag, and tagged frames
// without digits, are reported and otherwise ignored.
func (d *Dispatcher) Dispatch(frame *lineproto.Frame) error {
	at := frame.Timestamp()
	notify(d.observer, Event{Kind: EventFrame, Time: at, Frame: frame})

	payload := frame.Text()
	matched := false
	for _, c := range d.controllers {
		if !lineproto.HasTag(payload, c.Tag()) {
			continue
		}
		matched = true

		reading, ok := c.Parse(payload)
		if !ok {
			notify(d.observer, Event{Kind: EventMalformed, Time: at, Frame: frame, Source: PolicySource(c.Tag())})
			continue
		}
		notify(d.observer, Event{Kind: EventReading, Time: at, Frame: frame, Reading: reading})

		source := PolicySource(c.Tag())
		cmd, sent, err := c.Apply(reading, d.sender)
		if err != nil {
			notify(d.observer, Event{Kind: EventSendError, Time: at, Command: cmd, Source: source, Err: err})
			return err
		}
		if sent {
			notify(d.observer, Event{Kind: EventCommand, Time: at, Reading: reading, Command: cmd, Source: source})
		}
	}

	if !matched {
		notify(d.observer, Event{Kind: EventIgnored, Time: at, Frame: frame})
	}
	return nil
}
