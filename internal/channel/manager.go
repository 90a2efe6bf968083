package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/beaconhq/beacon/internal/log"
	"github.com/beaconhq/beacon/internal/memory"
	"github.com/beaconhq/beacon/internal/settings"
)

// State is the session lifecycle state.
type State string

const (
	StateUninitialized   State = "uninitialized"
	StateInitializing    State = "initializing"
	StateAwaitingPairing State = "awaiting_pairing"
	StateReady           State = "ready"
	StateDisconnected    State = "disconnected"
	StateDestroyed       State = "destroyed"
)

// ErrAlreadyStarted rejects a second Start on a live manager.
var ErrAlreadyStarted = errors.New("session manager already started")

// apologyMessage goes out when answering an inbound message fails.
// Transport and engine errors never reach the peer verbatim.
const apologyMessage = "Sorry, I encountered an error while processing your message."

// Answerer is the answering engine surface the manager consumes.
type Answerer interface {
	Answer(ctx context.Context, query string, mem memory.Buffer, channel string) (string, memory.Buffer, error)
}

// Gate reads the channel activation flag.
type Gate interface {
	Active(ctx context.Context, channel string) (bool, error)
}

// MessageLog records message traffic for audit. Recording failures are
// logged and never block delivery.
type MessageLog interface {
	Record(ctx context.Context, direction, peer, body string) error
}

// Status reports the session's externally visible condition. LastError
// carries the most recent disconnect reason and clears when the session
// comes back up.
type Status struct {
	Active    bool   `json:"active"`
	Connected bool   `json:"connected"`
	LastError string `json:"last_error,omitempty"`
}

// Manager drives the messaging session lifecycle. One instance exists per
// process; all state transitions happen under its mutex so a transition
// and its guard check are atomic.
type Manager struct {
	transport   Transport
	engine      Answerer
	gate        Gate
	messages    MessageLog
	bus         *Bus
	reinitDelay time.Duration
	logger      log.Logger

	mu              sync.Mutex
	state           State
	lastError       string
	reinitScheduled bool
	cancel          context.CancelFunc

	wg sync.WaitGroup
}

// NewManager creates a session manager. messages may be nil to disable the
// message log; logger nil falls back to a no-op logger.
func NewManager(transport Transport, engine Answerer, gate Gate, messages MessageLog, reinitDelay time.Duration, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Manager{
		transport:   transport,
		engine:      engine,
		gate:        gate,
		messages:    messages,
		bus:         NewBus(logger),
		reinitDelay: reinitDelay,
		logger:      logger.With("component", "session_manager"),
		state:       StateUninitialized,
	}
}

// Start begins the session lifecycle from Uninitialized or Destroyed; a
// restart tears down the previous transport and opens a fresh event bus.
// A live manager rejects Start with ErrAlreadyStarted.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateUninitialized && m.state != StateDestroyed {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	restart := m.state == StateDestroyed
	if restart {
		// Stop closed the previous bus; subscribers need a live one.
		m.bus = NewBus(m.logger)
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.state = StateInitializing
	m.lastError = ""
	m.reinitScheduled = false
	m.mu.Unlock()

	if restart {
		// A previous run may still hold a connection.
		m.transport.Disconnect()
	}

	m.logger.Info("starting messaging session")

	m.wg.Add(1)
	go m.run(runCtx)

	if err := m.transport.Connect(runCtx); err != nil {
		m.logger.Error("initial connect failed", "error", err)
		m.handleDisconnect(runCtx, err.Error())
	}
	return nil
}

// Stop destroys the session: the transport disconnects, any scheduled
// reinitialization is cancelled, and subscriber channels close. Start
// brings the manager back up from Destroyed.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.state == StateDestroyed {
		m.mu.Unlock()
		return
	}
	started := m.state != StateUninitialized
	m.state = StateDestroyed
	cancel := m.cancel
	m.cancel = nil
	bus := m.bus
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		m.transport.Disconnect()
	}
	m.wg.Wait()
	bus.Close()

	m.logger.Info("messaging session destroyed")
}

// Subscribe attaches a lifecycle event subscriber. The subscription ends
// when ctx is cancelled. A subscriber attaching while pairing is pending
// immediately receives the cached pairing event.
func (m *Manager) Subscribe(ctx context.Context) (<-chan Event, string) {
	m.mu.Lock()
	bus := m.bus
	m.mu.Unlock()
	return bus.Subscribe(ctx)
}

// publish fans an event out through the current bus. The bus is replaced
// on restart, so it is read under the mutex.
func (m *Manager) publish(ev Event) {
	m.mu.Lock()
	bus := m.bus
	m.mu.Unlock()
	bus.Publish(ev)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status reports the activation flag and connection state.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	active, err := m.gate.Active(ctx, settings.ChannelMessaging)
	if err != nil {
		return Status{}, err
	}
	m.mu.Lock()
	connected := m.state == StateReady
	lastError := m.lastError
	m.mu.Unlock()
	return Status{Active: active, Connected: connected, LastError: lastError}, nil
}

// run consumes transport events until the context is cancelled or the
// transport closes its event stream.
func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	events := m.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handleEvent(ctx, ev)
		}
	}
}

func (m *Manager) handleEvent(ctx context.Context, ev TransportEvent) {
	// Late events after Stop are discarded.
	m.mu.Lock()
	if m.state == StateDestroyed {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	switch ev.Type {
	case TransportPairing:
		m.mu.Lock()
		m.state = StateAwaitingPairing
		m.mu.Unlock()
		m.logger.Info("pairing challenge received")
		m.publish(Event{Type: EventPairing, Payload: ev.Payload})

	case TransportConnected:
		m.mu.Lock()
		m.state = StateReady
		m.lastError = ""
		m.mu.Unlock()
		m.logger.Info("session ready")
		m.publish(Event{Type: EventReady})

	case TransportDisconnected:
		m.handleDisconnect(ctx, ev.Reason)

	case TransportMessage:
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.handleMessage(ctx, ev)
		}()
	}
}

// handleDisconnect records the drop, purges credentials, and schedules a
// reinitialization after the configured delay.
func (m *Manager) handleDisconnect(ctx context.Context, reason string) {
	m.mu.Lock()
	if m.state == StateDestroyed {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnected
	m.lastError = reason
	m.mu.Unlock()

	m.logger.Warn("session disconnected", "reason", reason)
	m.publish(Event{Type: EventDisconnected, Reason: reason})

	// The next pairing must start clean.
	if err := m.transport.PurgeCredentials(ctx); err != nil {
		m.logger.Error("purging session credentials failed", "error", err)
	}

	m.scheduleReinit(ctx)
}

// scheduleReinit arms a one-shot reconnect. At most one is pending at a
// time, and the state is re-checked after the delay because Stop may have
// run while waiting.
func (m *Manager) scheduleReinit(ctx context.Context) {
	m.mu.Lock()
	if m.reinitScheduled || m.state == StateDestroyed {
		m.mu.Unlock()
		return
	}
	m.reinitScheduled = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.reinitScheduled = false
			m.mu.Unlock()
			return
		case <-time.After(m.reinitDelay):
		}

		m.mu.Lock()
		m.reinitScheduled = false
		if m.state != StateDisconnected {
			m.mu.Unlock()
			return
		}
		m.state = StateInitializing
		m.mu.Unlock()

		m.logger.Info("reinitializing session")
		if err := m.transport.Connect(ctx); err != nil {
			m.logger.Error("reconnect failed", "error", err)
			m.publish(Event{Type: EventError, Message: err.Error()})
			m.handleDisconnect(ctx, err.Error())
		}
	}()
}

// handleMessage answers one inbound message. The session must be Ready
// and the activation gate on; otherwise no outbound traffic is produced
// at all. Every inbound message gets a fresh, empty conversation memory.
func (m *Manager) handleMessage(ctx context.Context, ev TransportEvent) {
	if ev.Text == "" {
		return
	}

	m.mu.Lock()
	ready := m.state == StateReady
	m.mu.Unlock()
	if !ready {
		m.logger.Debug("session not ready, dropping message", "sender", ev.Sender)
		return
	}

	active, err := m.gate.Active(ctx, settings.ChannelMessaging)
	if err != nil {
		m.logger.Error("reading activation flag failed", "error", err)
		return
	}
	if !active {
		m.logger.Debug("channel inactive, ignoring message", "sender", ev.Sender)
		return
	}

	m.record(ctx, "inbound", ev.Sender, ev.Text)

	reply, _, err := m.engine.Answer(ctx, ev.Text, memory.New(), settings.ChannelMessaging)
	if err != nil {
		m.logger.Error("answering inbound message failed", "error", err, "sender", ev.Sender)
		m.publish(Event{Type: EventError, Message: err.Error()})
		reply = apologyMessage
	}

	if err := m.transport.Send(ctx, ev.Sender, reply); err != nil {
		m.logger.Error("sending reply failed", "error", err, "recipient", ev.Sender)
		return
	}
	m.record(ctx, "outbound", ev.Sender, reply)
}

func (m *Manager) record(ctx context.Context, direction, peer, body string) {
	if m.messages == nil {
		return
	}
	if err := m.messages.Record(ctx, direction, peer, body); err != nil {
		m.logger.Warn("recording message failed", "error", err, "direction", direction)
	}
}
