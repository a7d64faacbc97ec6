package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nantokaworks/printer-fleet/internal/clock"
	"github.com/nantokaworks/printer-fleet/internal/protocol"
	"github.com/nantokaworks/printer-fleet/internal/shared/logger"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the backend.
	writeWait = 10 * time.Second

	// Time allowed between inbound frames (snapshots or pings) before
	// the connection is treated as dead.
	defaultReadTimeout = 60 * time.Second
)

var (
	// ErrNotOpen is returned by Send while the channel is not open.
	// Commands are never queued; callers may ignore this error.
	ErrNotOpen = errors.New("channel: not open")

	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("channel: closed")
)

// State is the lifecycle of the shared connection:
// Connecting -> Open -> Closed|Errored -> Connecting ...
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Handler receives one inbound message, already checked to be valid JSON.
type Handler = func(message json.RawMessage)

type subscription struct {
	id      uint64
	handler Handler
}

type stateObserver struct {
	id uint64
	fn func(State)
}

// Manager owns the one websocket to the backend. Consumers subscribe to
// inbound messages and send commands through it but never touch the
// connection itself; only the Manager dials and closes it.
//
// The first Subscribe starts the connect loop. From then on the Manager
// reconnects after every close or error until Close is called at process
// teardown.
type Manager struct {
	url     string
	dialer  *websocket.Dialer
	clock   clock.Clock
	backoff Backoff
	jitter  func() float64
	timeout time.Duration
	log     *zap.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	state       State
	lastMessage time.Time
	nextID      uint64
	subscribers []subscription
	observers   []stateObserver
	started     bool
	closed      bool
	cancel      context.CancelFunc
	done        chan struct{}

	// gorilla/websocket allows a single concurrent writer.
	writeMu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithClock injects the clock used for reconnect delays and timestamps.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithBackoff sets the reconnect policy.
func WithBackoff(b Backoff) Option {
	return func(m *Manager) { m.backoff = b }
}

// WithJitter sets the jitter source. It must return values in [0, 1).
func WithJitter(fn func() float64) Option {
	return func(m *Manager) { m.jitter = fn }
}

// WithReadTimeout sets how long the connection may stay silent.
func WithReadTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithLogger sets the logger. Defaults to the shared zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// New returns an unshared Manager for url. Most callers want Connect.
func New(url string, opts ...Option) *Manager {
	m := &Manager{
		url:     url,
		dialer:  websocket.DefaultDialer,
		clock:   clock.Real(),
		backoff: DefaultBackoff(),
		jitter:  rand.Float64,
		timeout: defaultReadTimeout,
		state:   StateConnecting,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.Named("channel")
	}
	m.log = m.log.With(zap.String("url", url))
	return m
}

// URL returns the endpoint the Manager connects to.
func (m *Manager) URL() string { return m.url }

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastMessageAt returns when the last inbound message arrived, or the
// zero time if none has.
func (m *Manager) LastMessageAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastMessage
}

// Subscribe registers handler for every inbound message. All subscribers
// see every message, in arrival order, invoked one after another from the
// Manager's reader goroutine. The first call starts the connect loop.
func (m *Manager) Subscribe(handler Handler) (unsubscribe func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subscribers = append(m.subscribers, subscription{id: id, handler: handler})
	m.startLocked()
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, s := range m.subscribers {
				if s.id == id {
					m.subscribers = append(m.subscribers[:i:i], m.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// OnStateChange registers fn for lifecycle transitions. It does not
// start the connect loop.
func (m *Manager) OnStateChange(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.observers = append(m.observers, stateObserver{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, o := range m.observers {
				if o.id == id {
					m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Send writes cmd if the channel is open. It fails with ErrNotOpen
// otherwise; nothing is queued or retried.
func (m *Manager) Send(cmd protocol.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding %s command: %w", cmd.Action, err)
	}

	m.mu.Lock()
	conn, state, closed := m.conn, m.state, m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil || state != StateOpen {
		return ErrNotOpen
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("sending %s command: %w", cmd.Action, err)
	}
	m.log.Debug("Command sent", zap.String("action", string(cmd.Action)))
	return nil
}

// Close stops the connect loop and closes the connection. It is meant
// for process teardown and tests; consumers never call it.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	started := m.started
	cancel := m.cancel
	conn := m.conn
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		m.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		m.writeMu.Unlock()
		conn.Close()
	}
	if started {
		<-m.done
	}
	m.setState(StateClosed)
	return nil
}

func (m *Manager) startLocked() {
	if m.started || m.closed {
		return
	}
	m.started = true
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.run(ctx)
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	attempt := 0
	for {
		m.setState(StateConnecting)
		conn, _, err := m.dialer.DialContext(ctx, m.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.log.Debug("Dial failed", zap.Int("attempt", attempt), zap.Error(err))
			m.setState(StateErrored)
		} else {
			attempt = 0
			if !m.attach(conn) {
				conn.Close()
				return
			}
			m.log.Info("Channel open")
			m.setState(StateOpen)

			err = m.readLoop(conn)
			m.detach()
			conn.Close()
			if ctx.Err() != nil {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.log.Info("Channel closed by backend")
				m.setState(StateClosed)
			} else {
				m.log.Warn("Channel dropped", zap.Error(err))
				m.setState(StateErrored)
			}
		}

		delay := m.backoff.Delay(attempt, m.jitter())
		attempt++
		select {
		case <-ctx.Done():
			return
		case <-m.clock.After(delay):
		}
	}
}

func (m *Manager) attach(conn *websocket.Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.conn = conn
	return true
}

func (m *Manager) detach() {
	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()
}

func (m *Manager) readLoop(conn *websocket.Conn) error {
	extend := func() { conn.SetReadDeadline(time.Now().Add(m.timeout)) }
	extend()
	conn.SetPingHandler(func(appData string) error {
		extend()
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		extend()
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		if !json.Valid(data) {
			m.log.Debug("Dropping non-JSON frame", zap.Int("bytes", len(data)))
			continue
		}
		m.deliver(json.RawMessage(data))
	}
}

func (m *Manager) deliver(message json.RawMessage) {
	m.mu.Lock()
	m.lastMessage = m.clock.Now()
	handlers := make([]Handler, len(m.subscribers))
	for i, s := range m.subscribers {
		handlers[i] = s.handler
	}
	m.mu.Unlock()

	for _, handler := range handlers {
		handler(message)
	}
}

func (m *Manager) setState(next State) {
	m.mu.Lock()
	if m.state == next {
		m.mu.Unlock()
		return
	}
	if m.closed && next != StateClosed {
		m.mu.Unlock()
		return
	}
	m.state = next
	observers := make([]func(State), len(m.observers))
	for i, o := range m.observers {
		observers[i] = o.fn
	}
	m.mu.Unlock()

	for _, fn := range observers {
		fn(next)
	}
}
