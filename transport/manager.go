package transport

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Manager owns at most one live connection at any time.
type Manager struct {
	dialer  Dialer
	handler Handler
	logger  *zap.Logger
	debug   bool

	mu     sync.Mutex // guards conn, closed, dials; held while dialing
	conn   *Conn
	closed bool
	dials  int
}

// NewManager creates a manager that dials with dialer and reports the events
// of every connection to handler. Nothing is dialed until EnsureConnection.
func NewManager(dialer Dialer, handler Handler, logger *zap.Logger, debug bool) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		dialer:  dialer,
		handler: handler,
		logger:  logger,
		debug:   debug,
	}
}

// EnsureConnection returns the current connection if it is open, or dials a
// new one. Concurrent callers are serialized, so a single dial serves all of
// them. Owners should Retire a closed connection before calling this.
func (m *Manager) EnsureConnection(ctx context.Context) (*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if m.conn != nil {
		if m.conn.State() == StateOpen {
			return m.conn, nil
		}
		// Closed but not retired yet: its disconnect is still on the way to
		// the owner, which must only fail the calls sent over that conn.
		m.logger.Warn("replacing closed connection", zap.String("conn", m.conn.ID()))
		m.conn = nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.debug {
		m.logger.Debug("connecting")
	}
	ch, err := m.dialer.Dial(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "transport: dial")
	}

	conn := newConn(ch)
	m.conn = conn
	m.dials++
	if m.debug {
		m.logger.Debug("connected", zap.String("conn", conn.ID()))
	}

	go m.readLoop(conn)
	return conn, nil
}

// Current returns the connection the manager holds, which may already be
// closed, or nil.
func (m *Manager) Current() *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// State is the state of the current connection, or StateDisconnected.
func (m *Manager) State() State {
	if conn := m.Current(); conn != nil {
		return conn.State()
	}
	return StateDisconnected
}

// Dials returns how many connections have been established so far.
func (m *Manager) Dials() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dials
}

// Retire drops the manager's reference to conn and closes it. It returns true
// only for the first call per connection instance: the caller that gets true
// owns the disconnect and must fail everything sent over conn.
func (m *Manager) Retire(conn *Conn) bool {
	m.mu.Lock()
	if !conn.retired.CompareAndSwap(false, true) {
		m.mu.Unlock()
		return false
	}
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()

	if err := conn.Close(); err != nil && m.debug {
		m.logger.Debug("close retired connection", zap.String("conn", conn.ID()), zap.Error(err))
	}
	return true
}

// Close closes the current connection and refuses further dials.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (m *Manager) readLoop(conn *Conn) {
	defer close(conn.done)

	for {
		frame, err := conn.channel.Recv()
		if err != nil {
			conn.fail(err)
			break
		}
		m.handler.HandleMessage(conn, frame)
	}

	err := conn.Err()
	if m.debug {
		m.logger.Debug("disconnected", zap.String("conn", conn.ID()), zap.Error(err))
	}
	m.handler.HandleDisconnect(conn, err)
}
