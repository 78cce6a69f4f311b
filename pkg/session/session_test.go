// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/greenline/pkg/control"
	"github.com/Thermoquad/greenline/pkg/lineproto"
)

// ============================================================
// Test Helpers
// ============================================================

var testVocab = control.Vocabulary{
	control.CommandWater:     "WATER",
	control.CommandLightsOn:  "LIGHTBULBS",
	control.CommandLightsOff: "LIGHTSOFF",
}

var greenhousePolicy = control.Policy{
	Tag:       lineproto.TagLightSensor,
	Threshold: 400,
	Boundary:  control.SideAbove,
	Below:     control.CommandLightsOn,
}

var splitPolicy = control.Policy{
	Tag:       lineproto.TagLightSensor,
	Threshold: 400,
	Boundary:  control.SideBelow,
	Above:     control.CommandLightsOff,
	Below:     control.CommandLightsOn,
}

var quietLogger = log.New(io.Discard, "", 0)

func mustController(t *testing.T, p control.Policy) *control.Controller {
	t.Helper()
	c, err := control.NewController(p, testVocab)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	return c
}

func mustCommand(t *testing.T, name control.CommandName) control.Command {
	t.Helper()
	cmd, err := testVocab.Command(name)
	if err != nil {
		t.Fatalf("Command(%s) error = %v", name, err)
	}
	return cmd
}

// recorder collects events from any goroutine
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// timedSender records when each payload was sent
type timedSender struct {
	mu    sync.Mutex
	times []time.Time
	sent  []string
	err   error
	ch    chan struct{}
}

func newTimedSender() *timedSender {
	return &timedSender{ch: make(chan struct{}, 64)}
}

func (s *timedSender) Send(payload []byte) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.times = append(s.times, time.Now())
	s.sent = append(s.sent, string(payload))
	s.mu.Unlock()
	s.ch <- struct{}{}
	return nil
}

func (s *timedSender) frames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

// cancellingSender cancels the session context, then fails the write the way a
// connection closed underneath it would
type cancellingSender struct {
	cancel context.CancelFunc
	err    error
}

func (s cancellingSender) Send(payload []byte) error {
	s.cancel()
	return s.err
}

// scriptedReceiver replays a fixed sequence of receive results, then io.EOF
type scriptedReceiver struct {
	steps []received
}

type received struct {
	payload string
	err     error
}

func (r *scriptedReceiver) Receive() (*lineproto.Frame, error) {
	if len(r.steps) == 0 {
		return nil, io.EOF
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	if step.err != nil {
		return nil, step.err
	}
	return lineproto.NewFrame([]byte(step.payload)), nil
}

func frames(payloads ...string) *scriptedReceiver {
	r := &scriptedReceiver{}
	for _, p := range payloads {
		r.steps = append(r.steps, received{payload: p})
	}
	return r
}

// gateway drives the far end of a net.Pipe
type gateway struct {
	conn  net.Conn
	lines chan string
}

func newGateway(conn net.Conn) *gateway {
	g := &gateway{conn: conn, lines: make(chan string, 64)}
	go func() {
		defer close(g.lines)
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			g.lines <- scanner.Text()
		}
	}()
	return g
}

func (g *gateway) write(t *testing.T, payload string) {
	t.Helper()
	if _, err := g.conn.Write([]byte(payload + "\n")); err != nil {
		t.Fatalf("gateway write %q: %v", payload, err)
	}
}

// expect waits for the given commands in any order
func (g *gateway) expect(t *testing.T, want ...string) {
	t.Helper()
	pending := make(map[string]int)
	for _, w := range want {
		pending[w]++
	}
	deadline := time.After(2 * time.Second)
	for len(pending) > 0 {
		select {
		case line, ok := <-g.lines:
			if !ok {
				t.Fatalf("gateway stream closed, still waiting for %v", pending)
			}
			if pending[line] == 0 {
				t.Fatalf("gateway received unexpected %q", line)
			}
			pending[line]--
			if pending[line] == 0 {
				delete(pending, line)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v", pending)
		}
	}
}

// blockingConn fails every write and blocks reads until closed
type blockingConn struct {
	writeErr error
	closed   chan struct{}
	once     sync.Once
}

func newBlockingConn(writeErr error) *blockingConn {
	return &blockingConn{writeErr: writeErr, closed: make(chan struct{})}
}

func (c *blockingConn) Read(p []byte) (int, error) {
	<-c.closed
	return 0, net.ErrClosed
}

func (c *blockingConn) Write(p []byte) (int, error) {
	return 0, c.writeErr
}

func (c *blockingConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func runAsync(ctx context.Context, s *Session) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("session did not stop")
		return nil
	}
}

// ============================================================
// Emitter Tests
// ============================================================

func TestEmitter_Schedule(t *testing.T) {
	e := Emitter{
		Command:      mustCommand(t, control.CommandWater),
		InitialDelay: 20 * time.Millisecond,
		Interval:     40 * time.Millisecond,
	}
	s := newTimedSender()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, s, nil) }()

	for i := 0; i < 3; i++ {
		select {
		case <-s.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d sends before timeout", i)
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v, want nil after cancel", err)
	}

	s.mu.Lock()
	times := append([]time.Time(nil), s.times...)
	s.mu.Unlock()

	if first := times[0].Sub(start); first < e.InitialDelay {
		t.Errorf("first send after %s, want >= %s", first, e.InitialDelay)
	}
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < e.Interval {
			t.Errorf("gap %d = %s, want >= %s", i, gap, e.Interval)
		}
	}
	for _, f := range s.frames() {
		if f != "WATER" {
			t.Errorf("sent %q, want WATER", f)
		}
	}
}

func TestEmitter_CancelBeforeFirstSend(t *testing.T) {
	e := Emitter{Command: mustCommand(t, control.CommandWater), InitialDelay: time.Hour, Interval: time.Hour}
	s := newTimedSender()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := e.Run(ctx, s, nil); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
	if n := len(s.frames()); n != 0 {
		t.Errorf("sent %d frames after cancel, want 0", n)
	}
}

func TestEmitter_SendErrorEndsRun(t *testing.T) {
	boom := errors.New("connection reset")
	e := Emitter{Command: mustCommand(t, control.CommandWater), Interval: time.Hour}
	s := newTimedSender()
	s.err = boom
	rec := &recorder{}

	err := e.Run(context.Background(), s, rec)
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
	if rec.count(EventSendError) != 1 {
		t.Errorf("send error events = %d, want 1", rec.count(EventSendError))
	}
}

func TestEmitter_SendErrorAfterCancelIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := Emitter{Command: mustCommand(t, control.CommandWater), Interval: time.Hour}
	rec := &recorder{}

	if err := e.Run(ctx, cancellingSender{cancel: cancel, err: net.ErrClosed}, rec); err != nil {
		t.Errorf("Run() error = %v, want nil after cancel", err)
	}
	if rec.count(EventSendError) != 0 {
		t.Errorf("send error events = %d, want 0", rec.count(EventSendError))
	}
}

func TestEmitter_Validate(t *testing.T) {
	water := mustCommand(t, control.CommandWater)
	tests := []struct {
		name    string
		emitter Emitter
		wantErr bool
	}{
		{"valid", Emitter{Command: water, InitialDelay: time.Second, Interval: 100 * time.Second}, false},
		{"zero interval", Emitter{Command: water}, true},
		{"negative delay", Emitter{Command: water, InitialDelay: -time.Second, Interval: time.Second}, true},
		{"empty payload", Emitter{Command: control.Command{Name: "x"}, Interval: time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.emitter.Validate(lineproto.DefaultMaxFrameSize); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// ============================================================
// Dispatcher Tests
// ============================================================

func TestDispatcher_Policies(t *testing.T) {
	tests := []struct {
		name   string
		policy control.Policy
		input  []string
		want   []string
	}{
		{"greenhouse dark", greenhousePolicy, []string{"LIGHTSENSOR350"}, []string{"LIGHTBULBS"}},
		{"greenhouse bright", greenhousePolicy, []string{"LIGHTSENSOR450"}, nil},
		{"split bright", splitPolicy, []string{"LIGHTSENSOR450"}, []string{"LIGHTSOFF"}},
		{"split boundary", splitPolicy, []string{"LIGHTSENSOR400"}, []string{"LIGHTBULBS"}},
		{"no digits", greenhousePolicy, []string{"LIGHTSENSORabc"}, nil},
		{"unknown tag", greenhousePolicy, []string{"HUMIDITY12"}, nil},
		{"doubled tag", greenhousePolicy, []string{"LIGHTSENSOR12 LIGHTSENSOR"}, []string{"LIGHTBULBS"}},
		{"stream", splitPolicy, []string{"LIGHTSENSOR1", "noise", "LIGHTSENSOR999"}, []string{"LIGHTBULBS", "LIGHTSOFF"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTimedSender()
			d := NewDispatcher(frames(tt.input...), s, []*control.Controller{mustController(t, tt.policy)}, nil)
			if err := d.Run(context.Background()); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			got := s.frames()
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("sent %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDispatcher_Events(t *testing.T) {
	rec := &recorder{}
	r := frames("LIGHTSENSOR350", "LIGHTSENSORabc", "hello")
	d := NewDispatcher(r, newTimedSender(), []*control.Controller{mustController(t, greenhousePolicy)}, rec)
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := map[EventKind]int{
		EventFrame:     3,
		EventReading:   1,
		EventCommand:   1,
		EventMalformed: 1,
		EventIgnored:   1,
		EventClosed:    1,
	}
	for kind, n := range want {
		if got := rec.count(kind); got != n {
			t.Errorf("%s events = %d, want %d", kind, got, n)
		}
	}
}

func TestDispatcher_OversizeIsSkipped(t *testing.T) {
	r := &scriptedReceiver{steps: []received{
		{err: fmt.Errorf("%w: limit 16", lineproto.ErrFrameTooLong)},
		{payload: "LIGHTSENSOR5"},
	}}
	s := newTimedSender()
	rec := &recorder{}
	d := NewDispatcher(r, s, []*control.Controller{mustController(t, greenhousePolicy)}, rec)

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.count(EventOversize) != 1 {
		t.Errorf("oversize events = %d, want 1", rec.count(EventOversize))
	}
	if len(s.frames()) != 1 {
		t.Errorf("sent %q, want one command after the oversize frame", s.frames())
	}
}

func TestDispatcher_ReceiveErrorIsFatal(t *testing.T) {
	boom := errors.New("read: connection reset")
	r := &scriptedReceiver{steps: []received{{err: boom}, {payload: "LIGHTSENSOR5"}}}
	d := NewDispatcher(r, newTimedSender(), nil, nil)

	if err := d.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want %v", err, boom)
	}
}

func TestDispatcher_SendErrorIsFatal(t *testing.T) {
	boom := errors.New("broken pipe")
	s := newTimedSender()
	s.err = boom
	d := NewDispatcher(frames("LIGHTSENSOR1", "LIGHTSENSOR2"), s, []*control.Controller{mustController(t, greenhousePolicy)}, nil)

	if err := d.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want %v", err, boom)
	}
}

func TestDispatcher_SendErrorAfterCancelIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := cancellingSender{cancel: cancel, err: io.ErrClosedPipe}
	d := NewDispatcher(frames("LIGHTSENSOR1"), s, []*control.Controller{mustController(t, greenhousePolicy)}, nil)

	if err := d.Run(ctx); err != nil {
		t.Errorf("Run() error = %v, want nil after cancel", err)
	}
}

func TestDispatcher_ReceiveErrorAfterCancelIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &scriptedReceiver{steps: []received{{err: net.ErrClosed}}}
	d := NewDispatcher(r, newTimedSender(), nil, nil)

	if err := d.Run(ctx); err != nil {
		t.Errorf("Run() error = %v, want nil after cancel", err)
	}
}

// ============================================================
// Session Tests
// ============================================================

func TestSession_EndToEnd(t *testing.T) {
	client, server := net.Pipe()
	gw := newGateway(server)
	rec := &recorder{}

	s, err := New(client, Config{
		Emitters:    []Emitter{{Command: mustCommand(t, control.CommandWater), Interval: time.Hour}},
		Controllers: []*control.Controller{mustController(t, greenhousePolicy)},
		Vocabulary:  testVocab,
		Logger:      quietLogger,
		Observer:    rec,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	done := runAsync(context.Background(), s)

	gw.write(t, "LIGHTSENSOR350")
	gw.expect(t, "WATER", "LIGHTBULBS")

	gw.write(t, "LIGHTSENSOR450")
	gw.write(t, "LIGHTSENSORabc")
	server.Close()

	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run() error = %v, want nil on peer close", err)
	}

	snap := s.Stats().Snapshot()
	if snap.TotalFrames != 3 {
		t.Errorf("TotalFrames = %d, want 3", snap.TotalFrames)
	}
	if snap.Readings != 2 {
		t.Errorf("Readings = %d, want 2", snap.Readings)
	}
	if snap.MalformedFrames != 1 {
		t.Errorf("MalformedFrames = %d, want 1", snap.MalformedFrames)
	}
	if snap.Commands["water"] != 1 || snap.Commands["lights_on"] != 1 {
		t.Errorf("Commands = %v", snap.Commands)
	}
	if rec.count(EventClosed) != 1 {
		t.Errorf("closed events = %d, want 1", rec.count(EventClosed))
	}
}

func TestSession_SendFailureEndsSession(t *testing.T) {
	boom := errors.New("write: broken pipe")
	conn := newBlockingConn(boom)
	s, err := New(conn, Config{
		Emitters: []Emitter{{Command: mustCommand(t, control.CommandWater), Interval: time.Hour}},
		Logger:   quietLogger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = waitRun(t, runAsync(context.Background(), s))
	if !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want %v", err, boom)
	}
	if s.Stats().Snapshot().SendErrors != 1 {
		t.Errorf("SendErrors = %d, want 1", s.Stats().Snapshot().SendErrors)
	}
}

func TestSession_PeerCloseDuringBlockedWrite(t *testing.T) {
	client, server := net.Pipe()
	rec := &recorder{}

	s, err := New(client, Config{
		Emitters: []Emitter{{Command: mustCommand(t, control.CommandWater), Interval: time.Millisecond}},
		Logger:   quietLogger,
		Observer: rec,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	done := runAsync(context.Background(), s)

	// Nothing reads the gateway end, so the first write blocks until the close
	time.Sleep(50 * time.Millisecond)
	server.Close()

	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run() error = %v, want nil on peer close", err)
	}
	if rec.count(EventClosed) != 1 {
		t.Errorf("closed events = %d, want 1", rec.count(EventClosed))
	}
}

func TestSession_CancelStopsEverything(t *testing.T) {
	client, server := net.Pipe()
	gw := newGateway(server)
	defer server.Close()

	s, err := New(client, Config{
		Emitters:    []Emitter{{Command: mustCommand(t, control.CommandWater), InitialDelay: time.Hour, Interval: time.Hour}},
		Controllers: []*control.Controller{mustController(t, greenhousePolicy)},
		Logger:      quietLogger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, s)
	cancel()

	if err := waitRun(t, done); err != nil {
		t.Errorf("Run() error = %v, want nil on cancel", err)
	}

	// The gateway sees the connection close
	select {
	case _, ok := <-gw.lines:
		if ok {
			t.Error("gateway received a frame after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Error("gateway stream not closed after cancel")
	}
}

func TestSession_SendCommand(t *testing.T) {
	client, server := net.Pipe()
	gw := newGateway(server)
	defer server.Close()

	s, err := New(client, Config{Vocabulary: testVocab, Logger: quietLogger})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	if err := s.SendCommand(control.CommandLightsOff); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	gw.expect(t, "LIGHTSOFF")

	if err := s.SendCommand(control.CommandPowerOn); !errors.Is(err, control.ErrUnknownCommand) {
		t.Errorf("SendCommand(power_on) error = %v, want ErrUnknownCommand", err)
	}
	if got := s.Stats().Snapshot().Commands["lights_off"]; got != 1 {
		t.Errorf("lights_off count = %d, want 1", got)
	}
}

func TestSession_RunOnce(t *testing.T) {
	client, server := net.Pipe()
	server.Close()

	s, err := New(client, Config{Logger: quietLogger})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := waitRun(t, runAsync(context.Background(), s)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, Config{}); !errors.Is(err, ErrNilConnection) {
		t.Errorf("New(nil) error = %v, want ErrNilConnection", err)
	}

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	_, err := New(client, Config{Emitters: []Emitter{{Command: mustCommand(t, control.CommandWater)}}})
	if !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("New() error = %v, want ErrInvalidInterval", err)
	}

	water := Emitter{Command: mustCommand(t, control.CommandWater), Interval: time.Second}
	_, err = New(client, Config{Emitters: []Emitter{water}, MaxFrameSize: 3})
	if !errors.Is(err, lineproto.ErrFrameTooLong) {
		t.Errorf("New(MaxFrameSize 3) error = %v, want ErrFrameTooLong", err)
	}
	if _, err := New(client, Config{Emitters: []Emitter{water}, MaxFrameSize: 5, Logger: quietLogger}); err != nil {
		t.Errorf("New(MaxFrameSize 5) error = %v", err)
	}
}

func TestSession_ID(t *testing.T) {
	a, _ := New(newBlockingConn(nil), Config{Logger: quietLogger})
	b, _ := New(newBlockingConn(nil), Config{Logger: quietLogger})
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("IDs %q and %q should be unique and non-empty", a.ID(), b.ID())
	}
}

func TestFormatEvent(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	cmd := mustCommand(t, control.CommandWater)
	got := FormatEvent(Event{Kind: EventCommand, Time: ts, Command: cmd, Source: EmitterSource(cmd.Name)})
	want := "[03:04:05.006] TX WATER (water, timer:water)\n"
	if got != want {
		t.Errorf("FormatEvent() = %q, want %q", got, want)
	}
}
