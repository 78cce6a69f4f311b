// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package session runs a gateway session: periodic command emitters and the
// inbound dispatcher share one connection until the gateway closes it, a
// command cannot be written, or the caller cancels.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/greenline/pkg/control"
	"github.com/Thermoquad/greenline/pkg/lineproto"
)

var (
	ErrNilConnection  = errors.New("session: nil connection")
	ErrAlreadyRunning = errors.New("session: already running")
)

// Config describes what a session runs
type Config struct {
	Emitters     []Emitter
	Controllers  []*control.Controller
	Vocabulary   control.Vocabulary // resolves SendCommand names
	MaxFrameSize int                // defaults to lineproto.DefaultMaxFrameSize
	Logger       *log.Logger        // optional; defaults to log.Default()
	Observer     Observer           // optional
}

// Session owns one gateway connection
type Session struct {
	id       string
	conn     io.ReadWriteCloser
	channel  *lineproto.Channel
	config   Config
	stats    *lineproto.Statistics
	observer Observer
	logger   *log.Logger

	running   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New creates a session over conn. The session takes ownership of conn and
// closes it when Run returns.
func New(conn io.ReadWriteCloser, cfg Config) (*Session, error) {
	if conn == nil {
		return nil, ErrNilConnection
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = lineproto.DefaultMaxFrameSize
	}
	for _, e := range cfg.Emitters {
		if err := e.Validate(cfg.MaxFrameSize); err != nil {
			return nil, err
		}
	}

	id := uuid.NewString()
	base := cfg.Logger
	if base == nil {
		base = log.Default()
	}

	s := &Session{
		id:      id,
		conn:    conn,
		channel: lineproto.NewChannelSize(conn, cfg.MaxFrameSize),
		config:  cfg,
		stats:   lineproto.NewStatistics(),
		logger:  log.New(base.Writer(), fmt.Sprintf("%s[%s] ", base.Prefix(), id[:8]), base.Flags()),
	}
	s.observer = MultiObserver{RecordStats(s.stats), cfg.Observer}
	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Stats returns the session statistics
func (s *Session) Stats() *lineproto.Statistics {
	return s.stats
}

// Run starts every emitter and the dispatcher and blocks until they stop.
//
// The session ends when the gateway closes the stream, when any task fails, or
// when ctx is cancelled. The first task error is returned. A caller
// cancellation returns nil, and so does the stream closing, whether the
// dispatcher reads io.EOF or a command write fails on the closed stream first.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	// Unblock the dispatcher's read once the session is over
	go func() {
		<-gctx.Done()
		s.Close()
	}()

	for _, e := range s.config.Emitters {
		s.logger.Printf("emitter %s: %q after %s, every %s", e.Command.Name, e.Command.Payload, e.InitialDelay, e.Interval)
		e := e
		g.Go(func() error {
			return e.Run(gctx, s.channel, s.observer)
		})
	}
	for _, c := range s.config.Controllers {
		s.logger.Printf("policy %s", c.Policy())
	}

	dispatcher := NewDispatcher(s.channel, s.channel, s.config.Controllers, s.observer)
	g.Go(func() error {
		// The gateway closing the stream ends the whole session
		defer cancel()
		return dispatcher.Run(gctx)
	})

	err := g.Wait()
	if err != nil && lineproto.IsClosed(err) {
		// The stream went away under a task before the dispatcher read io.EOF
		if !dispatcher.eof {
			notify(s.observer, Event{Kind: EventClosed})
		}
		s.logger.Printf("gateway closed the connection: %v", err)
		err = nil
	}
	if err != nil {
		s.logger.Printf("session ended: %v", err)
	} else {
		s.logger.Printf("session ended")
	}
	return err
}

// SendCommand writes a vocabulary command on behalf of the operator
func (s *Session) SendCommand(name control.CommandName) error {
	cmd, err := s.config.Vocabulary.Command(name)
	if err != nil {
		return err
	}
	if err := s.channel.Send(cmd.Frame()); err != nil {
		notify(s.observer, Event{Kind: EventSendError, Command: cmd, Source: SourceOperator, Err: err})
		return fmt.Errorf("send %s: %w", name, err)
	}
	notify(s.observer, Event{Kind: EventCommand, Command: cmd, Source: SourceOperator})
	return nil
}

// Close closes the connection. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
