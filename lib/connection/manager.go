// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"context"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/bureau-foundation/forward/lib/netutil"
)

// DialFunc opens a connection. It has the signature of
// net.Dialer.DialContext so tests can substitute failing or slow
// dialers.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config configures a Manager.
type Config struct {
	// Address is the collector's "host:port".
	Address string

	// ConnectTimeout bounds each Open. Zero means only the context
	// passed to Open limits the attempt.
	ConnectTimeout time.Duration

	// WriteTimeout bounds each Send. On Linux it is also applied as
	// TCP_USER_TIMEOUT so that data stuck unacknowledged in the kernel
	// fails the connection within the same budget. Zero disables both.
	WriteTimeout time.Duration

	// Dial overrides the default net.Dialer. When set, socket options
	// are the dialer's responsibility.
	Dial DialFunc

	// Logger receives connection lifecycle records. Nil discards them.
	Logger *slog.Logger
}

// Manager owns the TCP socket to the collector. It opens and closes
// the connection on request and exposes a single Send operation that
// either writes the whole payload or fails. It never repairs a broken
// connection on its own: reconnect policy belongs to the caller.
//
// Manager is not safe for concurrent use. The sender serializes all
// calls behind its own mutex.
type Manager struct {
	address        string
	connectTimeout time.Duration
	writeTimeout   time.Duration
	dial           DialFunc
	logger         *slog.Logger

	conn  net.Conn
	state State
}

// NewManager returns a Disconnected Manager. No connection is
// attempted until Open.
func NewManager(config Config) *Manager {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	dial := config.Dial
	if dial == nil {
		dialer := &net.Dialer{
			Control: socketControl(config.WriteTimeout),
		}
		dial = dialer.DialContext
	}
	return &Manager{
		address:        config.Address,
		connectTimeout: config.ConnectTimeout,
		writeTimeout:   config.WriteTimeout,
		dial:           dial,
		logger:         logger.With("address", config.Address),
		state:          Disconnected,
	}
}

// Address returns the collector address this manager connects to.
func (m *Manager) Address() string { return m.address }

// State returns the current connection state.
func (m *Manager) State() State { return m.state }

// Open establishes the connection. It returns nil immediately if
// already Connected. On refusal, unreachability, or connect timeout it
// returns *ConnectError and leaves the manager Disconnected.
func (m *Manager) Open(ctx context.Context) error {
	if m.state == Connected {
		return nil
	}

	m.state = Reconnecting
	dialContext := ctx
	if m.connectTimeout > 0 {
		var cancel context.CancelFunc
		dialContext, cancel = context.WithTimeout(ctx, m.connectTimeout)
		defer cancel()
	}

	conn, err := m.dial(dialContext, "tcp", m.address)
	if err != nil {
		m.state = Disconnected
		return &ConnectError{Address: m.address, Err: err}
	}

	m.conn = conn
	m.state = Connected
	m.logger.Debug("connected to collector", "local_address", conn.LocalAddr().String())
	return nil
}

// Send writes data to the connection. Any failure (peer already gone,
// write error, write timeout, short write) closes the socket, moves
// the manager to Disconnected, and returns *SendError.
func (m *Manager) Send(data []byte) error {
	if m.state != Connected || m.conn == nil {
		return &SendError{Address: m.address, Err: ErrNotConnected}
	}

	// The collector never writes to us, so anything observable on the
	// read side means the peer closed. Writing into such a socket
	// usually "succeeds" into the kernel buffer and the frame is lost.
	if err := probe(m.conn); err != nil {
		m.fail(err)
		return &SendError{Address: m.address, Err: err}
	}

	if m.writeTimeout > 0 {
		if err := m.conn.SetWriteDeadline(time.Now().Add(m.writeTimeout)); err != nil {
			m.fail(err)
			return &SendError{Address: m.address, Err: err}
		}
	}

	written, err := m.conn.Write(data)
	if err == nil && written < len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		m.fail(err)
		return &SendError{Address: m.address, Written: written, Err: err}
	}
	return nil
}

// Close shuts the connection down. It is idempotent and never fails;
// close errors are logged at debug level.
func (m *Manager) Close() {
	if m.conn != nil {
		if err := m.conn.Close(); err != nil && !netutil.IsExpectedCloseError(err) {
			m.logger.Debug("closing connection", "error", err)
		}
		m.conn = nil
	}
	m.state = Disconnected
}

// fail discards a connection after an I/O error. The socket is reset
// rather than closed gracefully: a half-written frame must not be
// followed by a clean FIN that the collector could mistake for a
// complete stream.
func (m *Manager) fail(err error) {
	if netutil.IsExpectedCloseError(err) {
		m.logger.Debug("connection closed by collector", "error", err)
	} else {
		m.logger.Warn("connection failed", "error", err)
	}
	if tcpConn, ok := m.conn.(*net.TCPConn); ok {
		if lingerErr := tcpConn.SetLinger(0); lingerErr != nil {
			m.logger.Debug("disabling linger on failed connection", "error", lingerErr)
		}
	}
	if closeErr := m.conn.Close(); closeErr != nil && !netutil.IsExpectedCloseError(closeErr) {
		m.logger.Debug("closing failed connection", "error", closeErr)
	}
	m.conn = nil
	m.state = Disconnected
}
