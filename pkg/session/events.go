// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"fmt"
	"time"

	"github.com/Thermoquad/greenline/pkg/control"
	"github.com/Thermoquad/greenline/pkg/lineproto"
)

// EventKind classifies session events
type EventKind uint8

const (
	EventFrame     EventKind = iota // Frame received
	EventReading                    // Reading parsed from a frame
	EventCommand                    // Command written to the gateway
	EventIgnored                    // Frame without any known tag
	EventMalformed                  // Known tag without a usable value
	EventOversize                   // Frame dropped for exceeding the size limit
	EventSendError                  // Command could not be written
	EventClosed                     // Gateway closed the stream
)

// String returns the event kind name
func (k EventKind) String() string {
	switch k {
	case EventFrame:
		return "FRAME"
	case EventReading:
		return "READING"
	case EventCommand:
		return "COMMAND"
	case EventIgnored:
		return "IGNORED"
	case EventMalformed:
		return "MALFORMED"
	case EventOversize:
		return "OVERSIZE"
	case EventSendError:
		return "SEND_ERROR"
	case EventClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Source labels for commands
const (
	SourceOperator = "operator"
)

// EmitterSource returns the source label of a periodic emitter
func EmitterSource(name control.CommandName) string {
	return "timer:" + string(name)
}

// PolicySource returns the source label of a threshold controller
func PolicySource(tag string) string {
	return "policy:" + tag
}

// Event describes something that happened on the session.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind
	Time    time.Time
	Frame   *lineproto.Frame
	Reading lineproto.Reading
	Command control.Command
	Source  string
	Err     error
}

// Observer receives session events. Observe is called from several goroutines
// and must not block for long.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

// Observe calls f(e)
func (f ObserverFunc) Observe(e Event) { f(e) }

// MultiObserver fans an event out to every non-nil observer in order
type MultiObserver []Observer

// Observe implements Observer
func (m MultiObserver) Observe(e Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(e)
		}
	}
}

// RecordStats returns an observer that counts events into st
func RecordStats(st *lineproto.Statistics) Observer {
	return ObserverFunc(func(e Event) {
		switch e.Kind {
		case EventFrame:
			st.RecordFrame()
		case EventReading:
			st.RecordReading()
		case EventCommand:
			st.RecordCommand(string(e.Command.Name))
		case EventIgnored:
			st.RecordIgnored()
		case EventMalformed:
			st.RecordMalformed()
		case EventOversize:
			st.RecordOversize()
		case EventSendError:
			st.RecordSendError()
		}
	})
}

func notify(o Observer, e Event) {
	if o == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	o.Observe(e)
}

// FormatEvent formats an event as a single log line
func FormatEvent(e Event) string {
	ts := e.Time.Format(lineproto.TimestampFormat)
	switch e.Kind {
	case EventFrame:
		return lineproto.FormatFrame(e.Frame)
	case EventCommand:
		return lineproto.FormatLine(e.Time, lineproto.Outbound, e.Command.Frame(),
			fmt.Sprintf("%s, %s", e.Command.Name, e.Source))
	case EventReading:
		return fmt.Sprintf("[%s] %s %s=%d\n", ts, e.Kind, e.Reading.Tag, e.Reading.Value)
	case EventSendError:
		return fmt.Sprintf("[%s] %s %s (%s): %v\n", ts, e.Kind, e.Command.Name, e.Source, e.Err)
	case EventOversize:
		return fmt.Sprintf("[%s] %s %v\n", ts, e.Kind, e.Err)
	case EventIgnored, EventMalformed:
		if e.Frame != nil {
			return fmt.Sprintf("[%s] %s %s\n", ts, e.Kind, lineproto.FormatPayload(e.Frame.Payload()))
		}
		return fmt.Sprintf("[%s] %s\n", ts, e.Kind)
	default:
		return fmt.Sprintf("[%s] %s\n", ts, e.Kind)
	}
}
