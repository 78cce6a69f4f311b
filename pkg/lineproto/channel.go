// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lineproto

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
)

// readChunkSize matches the gateway server's receive size
const readChunkSize = 1024

// Channel sends and receives frames over a bidirectional byte stream.
//
// Send may be called from any number of goroutines; each frame is written
// whole under a lock so frames never interleave on the wire. Receive must only
// be called from a single goroutine.
type Channel struct {
	rw           io.ReadWriter
	maxFrameSize int

	writeMu sync.Mutex

	// Read side, owned by the single receiver
	receiving atomic.Bool
	decoder   *Decoder
	readBuf   []byte
	queue     []received
	readErr   error
}

// received is a decoded frame or a per-frame decode error, in stream order
type received struct {
	frame *Frame
	err   error
}

// NewChannel wraps rw using DefaultMaxFrameSize
func NewChannel(rw io.ReadWriter) *Channel {
	return NewChannelSize(rw, DefaultMaxFrameSize)
}

// NewChannelSize wraps rw, bounding frames in both directions to maxFrameSize.
// Non-positive sizes fall back to DefaultMaxFrameSize.
func NewChannelSize(rw io.ReadWriter, maxFrameSize int) *Channel {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Channel{
		rw:           rw,
		maxFrameSize: maxFrameSize,
		decoder:      NewDecoderSize(maxFrameSize),
		readBuf:      make([]byte, readChunkSize),
	}
}

// MaxFrameSize returns the payload limit
func (c *Channel) MaxFrameSize() int {
	return c.maxFrameSize
}

// Send writes payload followed by the delimiter as one uninterrupted unit
func (c *Channel) Send(payload []byte) error {
	data, err := encodeFrameSize(payload, c.maxFrameSize)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeAll(c.rw, data)
}

// SendString is Send for text payloads
func (c *Channel) SendString(payload string) error {
	return c.Send([]byte(payload))
}

// Receive blocks until one complete frame is available and returns it.
//
// Returns io.EOF once the peer has closed the stream and no complete frame is
// left; a trailing unterminated fragment is dropped. Returns an error wrapping
// ErrFrameTooLong for an oversize frame, after which the next call continues
// with the following frame. Any other transport error is returned as is and
// repeated on every later call.
func (c *Channel) Receive() (*Frame, error) {
	if !c.receiving.CompareAndSwap(false, true) {
		return nil, ErrConcurrentReceive
	}
	defer c.receiving.Store(false)

	for {
		if len(c.queue) > 0 {
			item := c.queue[0]
			c.queue[0] = received{}
			c.queue = c.queue[1:]
			return item.frame, item.err
		}

		if c.readErr != nil {
			return nil, c.readErr
		}

		n, err := c.rw.Read(c.readBuf)
		for i := 0; i < n; i++ {
			frame, decodeErr := c.decoder.DecodeByte(c.readBuf[i])
			if decodeErr != nil {
				c.queue = append(c.queue, received{err: decodeErr})
			} else if frame != nil {
				c.queue = append(c.queue, received{frame: frame})
			}
		}
		if err != nil {
			c.readErr = err
			c.decoder.Reset()
		}
	}
}

func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}

// IsClosed reports whether err means the stream is gone, closed by either end.
// A write racing the peer's close can fail this way before the reader sees
// io.EOF.
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
