// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"

	"github.com/Thermoquad/greenline/pkg/deployment"
)

const dialTimeout = 10 * time.Second

// Connection provides a common interface for reading/writing bytes over TCP, serial or WebSocket
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// WebSocketConnection exposes a WebSocket as a byte stream. Each message
// carries a run of protocol bytes; message boundaries carry no meaning.
type WebSocketConnection struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	readErr   error

	writeMu sync.Mutex
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.readErr != nil {
		return 0, w.readErr
	}

	// Return buffered data first
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			// A clean close from the bridge is the end of the stream
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = io.EOF
			}
			w.readErr = err
			return 0, err
		}

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		if len(data) == 0 {
			continue
		}

		w.buf = data
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// OpenTCPConnection dials the gateway's stream socket
func OpenTCPConnection(ctx context.Context, address string) (Connection, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return conn, nil
}

// OpenSerialConnection opens a serial port connection
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection opens a WebSocket connection to a gateway bridge
func OpenWebSocketConnection(ctx context.Context, wsURL string) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: dialTimeout,
	}

	ctx, cancel := context.WithTimeout(ctx, dialTimeout+5*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}

// resolveGateway merges connection flags over the deployment's gateway settings
func resolveGateway(dep *deployment.Config) deployment.GatewayConfig {
	gw := dep.Gateway
	flags := rootCmd.PersistentFlags()

	if flags.Changed("host") {
		gw.Host = gatewayHost
	}
	if flags.Changed("port") {
		gw.Port = gatewayPort
	}
	if flags.Changed("baud") {
		gw.Baud = baudRate
	}

	// An explicit transport flag wins over whatever the deployment names
	switch {
	case wsURL != "":
		gw.URL, gw.Serial = wsURL, ""
	case serialDevice != "":
		gw.URL, gw.Serial = "", serialDevice
	case flags.Changed("host") || flags.Changed("port"):
		gw.URL, gw.Serial = "", ""
	}

	if gw.Baud <= 0 {
		gw.Baud = deployment.DefaultBaud
	}
	return gw
}

// OpenConnection opens a WebSocket, serial or TCP connection to the gateway
func OpenConnection(ctx context.Context, dep *deployment.Config) (Connection, string, error) {
	gw := resolveGateway(dep)

	if gw.URL != "" {
		conn, err := OpenWebSocketConnection(ctx, gw.URL)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", gw.URL), nil
	}

	if gw.Serial != "" {
		conn, err := OpenSerialConnection(gw.Serial, gw.Baud)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", gw.Serial, gw.Baud), nil
	}

	if gw.Host == "" || gw.Port <= 0 {
		return nil, "", fmt.Errorf("either --host/--port, --serial or --url must be specified")
	}
	conn, err := OpenTCPConnection(ctx, gw.Address())
	if err != nil {
		return nil, "", err
	}
	return conn, fmt.Sprintf("TCP: %s", gw.Address()), nil
}
