package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/vmsim/internal/infrastructure/config"
)

// State is the connection lifecycle state.
type State int

// Lifecycle states.
//
//	Disconnected → Connecting → Connected
//	Connected → Disconnected            (transport loss, retry scheduled)
//	Connecting → Disconnected           (attempt budget exhausted, terminal)
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SignalKind identifies a lifecycle notification.
type SignalKind string

// Lifecycle signal kinds.
const (
	SignalConnected         SignalKind = "connected"
	SignalDisconnected      SignalKind = "disconnected"
	SignalOffline           SignalKind = "offline"
	SignalError             SignalKind = "error"
	SignalMaxRetriesReached SignalKind = "maxRetriesReached"
	SignalClosed            SignalKind = "closed"
)

// Signal is one lifecycle notification.
//
// Err is set on disconnected, error and maxRetriesReached. Delay is the
// wait before the next attempt and is set on error and offline.
type Signal struct {
	Kind  SignalKind
	Err   error
	Delay time.Duration
}

// signalBuffer is the capacity of the Signals channel.
const signalBuffer = 64

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on the transport's delivery goroutine and should hand
// work off quickly. A returned error is logged.
type MessageHandler func(topic string, payload []byte) error

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// ManagerOptions configure a ConnectionManager.
type ManagerOptions struct {
	ClientID string
	Config   config.MQTTConfig

	// Will builds the last will registered on every dial. Optional.
	Will func() Message

	// Offline builds the status published by Disconnect before the
	// session is closed. Optional.
	Offline func() Message

	// Dialer defaults to PahoDialer.
	Dialer Dialer

	// Logger defaults to a no-op logger.
	Logger Logger
}

// ConnectionManager owns one broker session and its reconnect lifecycle.
//
// The initial Connect is bounded by the configured attempt budget.
// After an established session drops, the manager reconnects in the
// background, starting at the initial delay; the after_loss policy
// decides whether that retry loop is unbounded or fatal on exhaustion.
//
// Lifecycle changes are reported on Signals. Retry counters are private.
type ConnectionManager struct {
	opts    ManagerOptions
	backoff Backoff
	dialer  Dialer
	logger  Logger

	mu         sync.RWMutex
	state      State
	session    Session
	generation uint64
	connecting bool
	closed     bool

	subMu         sync.Mutex
	subscriptions map[string]subscription

	sigMu     sync.Mutex
	signals   chan Signal
	sigClosed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// sleep waits d or until ctx ends. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewConnectionManager creates a manager in the Disconnected state.
func NewConnectionManager(opts ManagerOptions) *ConnectionManager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &ConnectionManager{
		opts: opts,
		backoff: Backoff{
			Initial: opts.Config.Reconnect.InitialDelay(),
			Max:     opts.Config.Reconnect.MaxDelay(),
		},
		dialer:        opts.Dialer,
		logger:        opts.Logger,
		state:         StateDisconnected,
		subscriptions: make(map[string]subscription),
		signals:       make(chan Signal, signalBuffer),
		ctx:           ctx,
		cancel:        cancel,
		sleep:         sleepContext,
	}
	if m.dialer == nil {
		m.dialer = PahoDialer{}
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}
	return m
}

// Signals returns the lifecycle notification channel.
// It is closed after Disconnect has emitted SignalClosed.
func (m *ConnectionManager) Signals() <-chan Signal {
	return m.signals
}

// State returns the current lifecycle state.
func (m *ConnectionManager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether a session is established.
func (m *ConnectionManager) IsConnected() bool {
	return m.State() == StateConnected
}

// ClientID returns the MQTT client identifier.
func (m *ConnectionManager) ClientID() string {
	return m.opts.ClientID
}

// Connect establishes the first session, retrying with exponential
// backoff up to max_attempts. It blocks until connected, the budget is
// exhausted (ErrMaxRetriesReached), ctx ends, or Disconnect is called
// (ErrClosed). Calling Connect while a session or a retry loop already
// exists is a no-op.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.connecting || m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	m.connecting = true
	m.state = StateConnecting
	m.wg.Add(1)
	m.mu.Unlock()

	defer m.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()

	// On success attempt has already cleared connecting, and a loss since
	// then may have set it again for the reconnect loop.
	if err := m.connectLoop(ctx, true, false); err != nil {
		m.setConnecting(false)
		return err
	}
	return nil
}

// Disconnect publishes the graceful offline status if connected,
// cancels any pending retry, closes the session and emits SignalClosed.
// It is safe to call more than once.
func (m *ConnectionManager) Disconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sess := m.session
	wasConnected := m.state == StateConnected
	m.session = nil
	m.state = StateDisconnected
	m.generation++
	m.mu.Unlock()

	m.cancel()

	if wasConnected && sess != nil {
		if m.opts.Offline != nil {
			msg := m.opts.Offline()
			if err := sess.Publish(msg.Topic, msg.QoS, msg.Retained, msg.Payload); err != nil {
				m.logger.Warn("graceful offline status not published",
					"client_id", m.opts.ClientID,
					"error", err,
				)
			}
		}
		sess.Disconnect(defaultDisconnectQuiesce)
	}

	m.wg.Wait()

	m.emit(Signal{Kind: SignalClosed})
	m.sigMu.Lock()
	m.sigClosed = true
	close(m.signals)
	m.sigMu.Unlock()
}

// connectLoop runs attempts until one succeeds. When bounded, the loop
// gives up after max_attempts failures. When waitFirst, it sleeps the
// initial delay before the first attempt.
func (m *ConnectionManager) connectLoop(ctx context.Context, bounded, waitFirst bool) error {
	maxAttempts := m.opts.Config.Reconnect.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	if waitFirst {
		if err := m.sleep(ctx, m.backoff.Delay(1)); err != nil {
			return m.abandon(err)
		}
	}

	for attempt := 1; ; attempt++ {
		err := m.attempt()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrClosed) {
			return m.abandon(err)
		}

		if bounded && attempt >= maxAttempts {
			m.setState(StateDisconnected)
			m.logger.Error("MQTT connection attempts exhausted",
				"client_id", m.opts.ClientID,
				"attempts", attempt,
				"error", err,
			)
			m.emit(Signal{Kind: SignalMaxRetriesReached, Err: err})
			return fmt.Errorf("%w: %d attempts: %w", ErrMaxRetriesReached, attempt, err)
		}

		delay := m.backoff.Delay(attempt)
		m.logger.Warn("MQTT connection attempt failed",
			"client_id", m.opts.ClientID,
			"attempt", attempt,
			"retry_in", delay,
			"error", err,
		)
		m.emit(Signal{Kind: SignalError, Err: err, Delay: delay})

		if err := m.sleep(ctx, delay); err != nil {
			return m.abandon(err)
		}
	}
}

// attempt dials one session, restores subscriptions on it and marks the
// manager connected.
func (m *ConnectionManager) attempt() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.state = StateConnecting
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	opts := DialOptions{
		ClientID: m.opts.ClientID,
		Config:   m.opts.Config,
		OnConnectionLost: func(err error) {
			m.handleConnectionLost(gen, err)
		},
	}
	if m.opts.Will != nil {
		will := m.opts.Will()
		opts.Will = &will
	}

	sess := m.dialer.Dial(opts)
	if err := sess.Connect(); err != nil {
		return err
	}

	// subMu is held until the state flips so a concurrent Subscribe
	// either lands in the restore or sees the session connected.
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for _, sub := range m.subscriptions {
		if err := sess.Subscribe(sub.topic, sub.qos, m.wrapHandler(sub.handler)); err != nil {
			sess.Disconnect(0)
			return fmt.Errorf("restoring subscription %q: %w", sub.topic, err)
		}
	}

	m.mu.Lock()
	if m.closed || gen != m.generation {
		m.mu.Unlock()
		sess.Disconnect(0)
		return ErrClosed
	}
	m.session = sess
	m.state = StateConnected
	m.connecting = false
	m.mu.Unlock()

	m.logger.Info("MQTT connected",
		"client_id", m.opts.ClientID,
		"broker", BrokerURL(m.opts.Config.Broker),
	)
	m.emit(Signal{Kind: SignalConnected})
	return nil
}

// handleConnectionLost moves an established session to Disconnected and
// starts the background reconnect loop. Callbacks from superseded
// sessions are ignored.
func (m *ConnectionManager) handleConnectionLost(gen uint64, err error) {
	m.mu.Lock()
	if m.closed || gen != m.generation || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnected
	m.session = nil
	m.connecting = true
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Warn("MQTT connection lost",
		"client_id", m.opts.ClientID,
		"error", err,
	)
	m.emit(Signal{Kind: SignalDisconnected, Err: err})

	go m.reconnect()
}

// reconnect is the post-loss retry loop.
func (m *ConnectionManager) reconnect() {
	defer m.wg.Done()

	bounded := m.opts.Config.Reconnect.AfterLoss == config.AfterLossBounded
	m.emit(Signal{Kind: SignalOffline, Delay: m.backoff.Delay(1)})

	err := m.connectLoop(m.ctx, bounded, true)
	if err == nil {
		return
	}
	m.setConnecting(false)
	if !errors.Is(err, ErrMaxRetriesReached) {
		m.logger.Info("MQTT reconnect abandoned",
			"client_id", m.opts.ClientID,
			"reason", err,
		)
	}
}

// abandon leaves the connect loop without a session.
func (m *ConnectionManager) abandon(err error) error {
	m.setState(StateDisconnected)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		m.mu.RLock()
		closed := m.closed
		m.mu.RUnlock()
		if closed {
			return ErrClosed
		}
	}
	return err
}

func (m *ConnectionManager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *ConnectionManager) setConnecting(v bool) {
	m.mu.Lock()
	m.connecting = v
	m.mu.Unlock()
}

// currentSession returns the live session or ErrNotConnected.
func (m *ConnectionManager) currentSession() (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateConnected || m.session == nil {
		return nil, ErrNotConnected
	}
	return m.session, nil
}

// emit delivers s without blocking. A consumer that stops draining
// Signals loses notifications rather than stalling the transport.
func (m *ConnectionManager) emit(s Signal) {
	m.sigMu.Lock()
	defer m.sigMu.Unlock()
	if m.sigClosed {
		return
	}
	select {
	case m.signals <- s:
	default:
		m.logger.Warn("lifecycle signal dropped",
			"client_id", m.opts.ClientID,
			"kind", string(s.Kind),
		)
	}
}

// wrapHandler adds panic recovery and error logging to a handler.
func (m *ConnectionManager) wrapHandler(handler MessageHandler) func(topic string, payload []byte) {
	return func(topic string, payload []byte) {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("MQTT handler panic recovered",
					"topic", topic,
					"panic", r,
				)
			}
		}()

		if err := handler(topic, payload); err != nil {
			m.logger.Warn("MQTT handler returned error",
				"topic", topic,
				"error", err,
			)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
