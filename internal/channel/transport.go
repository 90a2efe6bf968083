package channel

import "context"

// TransportEventType discriminates events arriving from the transport.
type TransportEventType string

const (
	// TransportPairing carries a pairing challenge to present out-of-band.
	TransportPairing TransportEventType = "pairing"

	// TransportConnected signals the transport is paired and online.
	TransportConnected TransportEventType = "connected"

	// TransportDisconnected signals the connection dropped.
	TransportDisconnected TransportEventType = "disconnected"

	// TransportMessage carries an inbound message.
	TransportMessage TransportEventType = "message"
)

// TransportEvent is one event emitted by a Transport.
type TransportEvent struct {
	Type    TransportEventType
	Payload string // pairing challenge
	Reason  string // disconnect reason
	Sender  string // inbound message sender address
	Text    string // inbound message body
}

// Transport abstracts the underlying messaging client. Implementations
// emit lifecycle and message events on the Events channel and must keep
// emitting until Disconnect is called.
//
// At most one Connect cycle is active at a time; the manager serialises
// Connect and Disconnect calls.
type Transport interface {
	// Events returns the stream the transport emits on. The channel is
	// owned by the transport and stays open across reconnect cycles.
	Events() <-chan TransportEvent

	// Connect establishes the connection. A fresh, unpaired session
	// emits a pairing event; a restored session emits connected
	// directly.
	Connect(ctx context.Context) error

	// Send delivers an outbound message.
	Send(ctx context.Context, recipient, text string) error

	// Disconnect tears the connection down without purging credentials.
	Disconnect()

	// PurgeCredentials removes persisted session credentials so the
	// next Connect starts a fresh pairing.
	PurgeCredentials(ctx context.Context) error
}
