// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records gateway traffic as a stream of CBOR records and
// reads it back for offline replay.
//
// Each record is a CBOR map with integer keys:
//
//	1: time (unix nanoseconds)
//	2: direction (1 = RX, 2 = TX)
//	3: payload (byte string, delimiter excluded)
//	4: label (command name for TX, omitted otherwise)
package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/greenline/pkg/lineproto"
	"github.com/Thermoquad/greenline/pkg/session"
)

var ErrInvalidRecord = errors.New("capture: invalid record")

// Record is one captured frame
type Record struct {
	Time      int64               `cbor:"1,keyasint"`
	Direction lineproto.Direction `cbor:"2,keyasint"`
	Payload   []byte              `cbor:"3,keyasint"`
	Label     string              `cbor:"4,keyasint,omitempty"`
}

// Timestamp returns the record time
func (r Record) Timestamp() time.Time {
	return time.Unix(0, r.Time)
}

// Frame returns the record as a frame with its original timestamp
func (r Record) Frame() *lineproto.Frame {
	return lineproto.NewFrameAt(r.Payload, r.Timestamp())
}

// String formats the record like a live log line
func (r Record) String() string {
	return lineproto.FormatLine(r.Timestamp(), r.Direction, r.Payload, r.Label)
}

func (r Record) validate() error {
	if r.Direction != lineproto.Inbound && r.Direction != lineproto.Outbound {
		return fmt.Errorf("%w: direction %d", ErrInvalidRecord, r.Direction)
	}
	return nil
}

// ============================================================
// Writer
// ============================================================

// Writer appends records to a stream. Safe for concurrent use.
type Writer struct {
	mu    sync.Mutex
	enc   *cbor.Encoder
	count int
	err   error
}

// NewWriter creates a writer on w
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: cbor.NewEncoder(w)}
}

// Write appends one record
func (w *Writer) Write(r Record) error {
	if err := r.validate(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(r); err != nil {
		return fmt.Errorf("capture write: %w", err)
	}
	w.count++
	return nil
}

// WriteFrame appends an inbound frame
func (w *Writer) WriteFrame(f *lineproto.Frame) error {
	return w.Write(Record{
		Time:      f.Timestamp().UnixNano(),
		Direction: lineproto.Inbound,
		Payload:   f.Payload(),
	})
}

// Observe records received frames and sent commands. The first write error is
// kept and reported by Err; later events are dropped.
func (w *Writer) Observe(e session.Event) {
	var r Record
	switch e.Kind {
	case session.EventFrame:
		r = Record{Time: e.Time.UnixNano(), Direction: lineproto.Inbound, Payload: e.Frame.Payload()}
	case session.EventCommand:
		r = Record{Time: e.Time.UnixNano(), Direction: lineproto.Outbound, Payload: e.Command.Frame(), Label: string(e.Command.Name)}
	default:
		return
	}

	if w.Err() != nil {
		return
	}
	if err := w.Write(r); err != nil {
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
	}
}

// Err returns the first error hit by Observe
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Count returns the number of records written
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// ============================================================
// Reader
// ============================================================

// Reader reads records back in order
type Reader struct {
	dec *cbor.Decoder
}

// NewReader creates a reader on r
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the stream
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("capture read: %w", err)
	}
	if err := rec.validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Receive returns the next inbound frame, skipping outbound records. It lets a
// capture stand in for a live connection.
func (r *Reader) Receive() (*lineproto.Frame, error) {
	for {
		rec, err := r.Next()
		if err != nil {
			return nil, err
		}
		if rec.Direction == lineproto.Inbound {
			return rec.Frame(), nil
		}
	}
}

// ReadAll reads every remaining record
func ReadAll(rd io.Reader) ([]Record, error) {
	r := NewReader(rd)
	var records []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
