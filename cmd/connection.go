// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Metrolab Instruments

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/Metrolab/sigline/pkg/sigline"
	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// Connection is the instrument byte stream: reads feed the session's
// receive callback, writes carry job commands.
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// ErrConnectionClosed is returned when reading from a closed WebSocket
// connection.
var ErrConnectionClosed = fmt.Errorf("websocket connection closed")

// OpenConnection opens the transport selected by the global flags and
// returns it with a human-readable description. Serial ports are
// configured from the driver's parameters; --baud overrides the baud rate
// only.
func OpenConnection(params sigline.SerialParams) (Connection, string, error) {
	switch {
	case wsURL != "":
		conn, err := openWebSocket(wsURL, wsUsername, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", wsURL), nil

	case portName != "":
		mode := serialMode(params, baudRate)
		port, err := serial.Open(portName, mode)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open serial port %s: %v", portName, err)
		}
		return &serialConnection{port: port}, fmt.Sprintf("Serial: %s @ %s", portName, describeMode(mode)), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}

// serialMode builds the port mode from the driver's parameters, filling
// unset fields with 9600 8n1 defaults. baudOverride, when nonzero, wins
// over the driver's baud rate.
func serialMode(params sigline.SerialParams, baudOverride int) *serial.Mode {
	mode := &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if params.Baud > 0 {
		mode.BaudRate = params.Baud
	}
	if params.DataBits > 0 {
		mode.DataBits = params.DataBits
	}
	switch params.Parity {
	case sigline.ParityOdd:
		mode.Parity = serial.OddParity
	case sigline.ParityEven:
		mode.Parity = serial.EvenParity
	}
	if params.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	if baudOverride > 0 {
		mode.BaudRate = baudOverride
	}
	return mode
}

// describeMode renders a mode as "8228/6n1".
func describeMode(mode *serial.Mode) string {
	parity := "n"
	switch mode.Parity {
	case serial.OddParity:
		parity = "o"
	case serial.EvenParity:
		parity = "e"
	}
	stop := 1
	if mode.StopBits == serial.TwoStopBits {
		stop = 2
	}
	return fmt.Sprintf("%d/%d%s%d", mode.BaudRate, mode.DataBits, parity, stop)
}

type serialConnection struct {
	port serial.Port
}

func (s *serialConnection) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *serialConnection) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *serialConnection) Close() error                { return s.port.Close() }

// websocketConnection adapts a serial-over-WebSocket bridge to the byte
// stream interface. The bridge delivers instrument bytes as binary
// messages; a message larger than the read buffer is carried over to the
// next Read.
type websocketConnection struct {
	conn   *websocket.Conn
	buf    []byte
	off    int
	closed bool
}

func (w *websocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}
	if w.off < len(w.buf) {
		n := copy(p, w.buf[w.off:])
		w.off += n
		return n, nil
	}
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}
		if messageType != websocket.BinaryMessage {
			// Text and control messages carry no instrument bytes.
			continue
		}
		w.buf = data
		w.off = copy(p, w.buf)
		return w.off, nil
	}
}

func (w *websocketConnection) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *websocketConnection) Close() error {
	return w.conn.Close()
}

func openWebSocket(rawURL, username string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipSSLVerify}
	}

	headers := http.Header{}
	if username != "" {
		password, err := getPassword()
		if err != nil {
			return nil, err
		}
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, rawURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %v", err)
	}
	return &websocketConnection{conn: conn}, nil
}

// getPassword reads the WebSocket password from SIGLINE_PASSWORD, or
// prompts on the terminal without echo.
func getPassword() (string, error) {
	if pw := os.Getenv("SIGLINE_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		// Not a terminal; read a plain line instead.
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		return strings.TrimSpace(password), nil
	}
	return string(passwordBytes), nil
}
