package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/beaconhq/beacon/internal/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testReinitDelay = 20 * time.Millisecond

type sentMessage struct {
	recipient string
	text      string
}

// fakeTransport is a scripted Transport for driving the manager.
type fakeTransport struct {
	events chan TransportEvent

	mu           sync.Mutex
	connectCalls int
	connectErr   error
	sendErr      error
	sent         []sentMessage
	disconnects  int
	purges       int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan TransportEvent, 16)}
}

func (f *fakeTransport) Events() <-chan TransportEvent { return f.events }

func (f *fakeTransport) Connect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	return f.connectErr
}

func (f *fakeTransport) Send(_ context.Context, recipient, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{recipient: recipient, text: text})
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeTransport) PurgeCredentials(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purges++
	return nil
}

func (f *fakeTransport) emit(ev TransportEvent) { f.events <- ev }

func (f *fakeTransport) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

func (f *fakeTransport) purgeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.purges
}

type stubGate struct {
	mu     sync.Mutex
	active bool
	err    error
}

func (g *stubGate) Active(_ context.Context, _ string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active, g.err
}

type stubAnswerer struct {
	mu        sync.Mutex
	answer    string
	err       error
	questions []string
}

func (a *stubAnswerer) Answer(_ context.Context, query string, mem memory.Buffer, _ string) (string, memory.Buffer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.questions = append(a.questions, query)
	if a.err != nil {
		return "", mem, a.err
	}
	return a.answer, mem.Append(query, a.answer), nil
}

func newTestManager(t *testing.T, transport *fakeTransport, answerer *stubAnswerer, gate *stubGate) *Manager {
	t.Helper()
	if answerer == nil {
		answerer = &stubAnswerer{answer: "the answer"}
	}
	if gate == nil {
		gate = &stubGate{active: true}
	}
	m := NewManager(transport, answerer, gate, nil, testReinitDelay, nil)
	t.Cleanup(m.Stop)
	return m
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want },
		time.Second, time.Millisecond, "state never reached %s", want)
}

func TestManagerLifecycleWalk(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport, nil, nil)
	assert.Equal(t, StateUninitialized, m.State())

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, StateInitializing, m.State())

	sub, _ := m.Subscribe(context.Background())

	transport.emit(TransportEvent{Type: TransportPairing, Payload: "pairing-code"})
	waitForState(t, m, StateAwaitingPairing)

	ev := <-sub
	assert.Equal(t, EventPairing, ev.Type)
	assert.Equal(t, "pairing-code", ev.Payload)

	transport.emit(TransportEvent{Type: TransportConnected})
	waitForState(t, m, StateReady)
	ev = <-sub
	assert.Equal(t, EventReady, ev.Type)

	transport.emit(TransportEvent{Type: TransportDisconnected, Reason: "connection lost"})
	waitForState(t, m, StateDisconnected)
	ev = <-sub
	assert.Equal(t, EventDisconnected, ev.Type)
	assert.Equal(t, "connection lost", ev.Reason)

	// Credentials are purged and the transport reconnects after the delay.
	require.Eventually(t, func() bool { return transport.connects() == 2 },
		time.Second, time.Millisecond)
	assert.Equal(t, 1, transport.purgeCount())
	waitForState(t, m, StateInitializing)
}

func TestManagerNeverSkipsDisconnectedToReady(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport, nil, nil)
	require.NoError(t, m.Start(context.Background()))

	transport.emit(TransportEvent{Type: TransportConnected})
	waitForState(t, m, StateReady)

	// Record states only once the disconnect has been observed; earlier
	// polls would capture the pre-disconnect Ready.
	var seen []State
	transport.emit(TransportEvent{Type: TransportDisconnected, Reason: "drop"})
	require.Eventually(t, func() bool {
		s := m.State()
		if len(seen) > 0 || s == StateDisconnected {
			if len(seen) == 0 || seen[len(seen)-1] != s {
				seen = append(seen, s)
			}
		}
		return s == StateInitializing
	}, time.Second, time.Millisecond)

	assert.Contains(t, seen, StateDisconnected)
	assert.NotContains(t, seen, StateReady, "recovery must pass through Initializing")
}

func TestManagerStartTwice(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport, nil, nil)

	require.NoError(t, m.Start(context.Background()))
	require.ErrorIs(t, m.Start(context.Background()), ErrAlreadyStarted)
}

func TestManagerRestartsAfterStop(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport, nil, nil)

	require.NoError(t, m.Start(context.Background()))
	transport.emit(TransportEvent{Type: TransportConnected})
	waitForState(t, m, StateReady)

	m.Stop()
	assert.Equal(t, StateDestroyed, m.State())

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, 2, transport.connects())

	// Subscriptions attach to the fresh bus and see the new lifecycle.
	sub, _ := m.Subscribe(context.Background())
	transport.emit(TransportEvent{Type: TransportConnected})
	waitForState(t, m, StateReady)
	assert.Equal(t, EventReady, (<-sub).Type)
}

func TestManagerDropsMessageBeforeReady(t *testing.T) {
	transport := newFakeTransport()
	answerer := &stubAnswerer{answer: "too early"}
	m := newTestManager(t, transport, answerer, &stubGate{active: true})
	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, StateInitializing, m.State())

	transport.emit(TransportEvent{Type: TransportMessage, Sender: "peer@example", Text: "anyone there?"})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, transport.sentMessages())
	answerer.mu.Lock()
	defer answerer.mu.Unlock()
	assert.Empty(t, answerer.questions, "messages before Ready must not reach the engine")
}

func TestManagerStopCancelsScheduledReinit(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport, nil, nil)
	require.NoError(t, m.Start(context.Background()))

	transport.emit(TransportEvent{Type: TransportDisconnected, Reason: "drop"})
	waitForState(t, m, StateDisconnected)

	m.Stop()
	assert.Equal(t, StateDestroyed, m.State())

	time.Sleep(3 * testReinitDelay)
	assert.Equal(t, 1, transport.connects(), "no reconnect after Stop")
	assert.Equal(t, StateDestroyed, m.State())
}

func TestManagerLateSubscriberGetsCachedPairing(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport, nil, nil)
	require.NoError(t, m.Start(context.Background()))

	transport.emit(TransportEvent{Type: TransportPairing, Payload: "replayed-code"})
	waitForState(t, m, StateAwaitingPairing)

	sub, _ := m.Subscribe(context.Background())
	select {
	case ev := <-sub:
		assert.Equal(t, EventPairing, ev.Type)
		assert.Equal(t, "replayed-code", ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("cached pairing event was not replayed")
	}
}

func TestManagerReadyClearsCachedPairing(t *testing.T) {
	transport := newFakeTransport()
	m := newTestManager(t, transport, nil, nil)
	require.NoError(t, m.Start(context.Background()))

	transport.emit(TransportEvent{Type: TransportPairing, Payload: "stale-code"})
	waitForState(t, m, StateAwaitingPairing)
	transport.emit(TransportEvent{Type: TransportConnected})
	waitForState(t, m, StateReady)

	sub, _ := m.Subscribe(context.Background())
	select {
	case ev := <-sub:
		t.Fatalf("unexpected event after ready: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManagerAnswersInboundMessage(t *testing.T) {
	transport := newFakeTransport()
	answerer := &stubAnswerer{answer: "42"}
	m := newTestManager(t, transport, answerer, &stubGate{active: true})
	require.NoError(t, m.Start(context.Background()))

	transport.emit(TransportEvent{Type: TransportConnected})
	transport.emit(TransportEvent{Type: TransportMessage, Sender: "peer@example", Text: "meaning of life?"})

	require.Eventually(t, func() bool { return len(transport.sentMessages()) == 1 },
		time.Second, time.Millisecond)
	sent := transport.sentMessages()[0]
	assert.Equal(t, "peer@example", sent.recipient)
	assert.Equal(t, "42", sent.text)
}

func TestManagerInactiveChannelSendsNothing(t *testing.T) {
	transport := newFakeTransport()
	answerer := &stubAnswerer{answer: "should never be used"}
	m := newTestManager(t, transport, answerer, &stubGate{active: false})
	require.NoError(t, m.Start(context.Background()))

	transport.emit(TransportEvent{Type: TransportConnected})
	transport.emit(TransportEvent{Type: TransportMessage, Sender: "peer@example", Text: "hello?"})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, transport.sentMessages())
	answerer.mu.Lock()
	defer answerer.mu.Unlock()
	assert.Empty(t, answerer.questions, "inactive channel must not reach the engine")
}

func TestManagerApologizesOnEngineFailure(t *testing.T) {
	transport := newFakeTransport()
	answerer := &stubAnswerer{err: errors.New("provider unavailable")}
	m := newTestManager(t, transport, answerer, &stubGate{active: true})
	require.NoError(t, m.Start(context.Background()))

	transport.emit(TransportEvent{Type: TransportConnected})
	transport.emit(TransportEvent{Type: TransportMessage, Sender: "peer@example", Text: "hello?"})

	require.Eventually(t, func() bool { return len(transport.sentMessages()) == 1 },
		time.Second, time.Millisecond)
	assert.Equal(t, apologyMessage, transport.sentMessages()[0].text)
}

func TestManagerIgnoresEmptyMessageBody(t *testing.T) {
	transport := newFakeTransport()
	answerer := &stubAnswerer{answer: "unused"}
	m := newTestManager(t, transport, answerer, &stubGate{active: true})
	require.NoError(t, m.Start(context.Background()))

	transport.emit(TransportEvent{Type: TransportMessage, Sender: "peer@example", Text: ""})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, transport.sentMessages())
}

func TestManagerStatus(t *testing.T) {
	transport := newFakeTransport()
	gate := &stubGate{active: true}
	m := newTestManager(t, transport, nil, gate)
	require.NoError(t, m.Start(context.Background()))

	status, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.False(t, status.Connected)

	transport.emit(TransportEvent{Type: TransportConnected})
	waitForState(t, m, StateReady)

	status, err = m.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Empty(t, status.LastError)

	transport.emit(TransportEvent{Type: TransportDisconnected, Reason: "socket closed"})
	require.Eventually(t, func() bool {
		status, err = m.Status(context.Background())
		return err == nil && !status.Connected
	}, time.Second, time.Millisecond)
	assert.Equal(t, "socket closed", status.LastError)
}
