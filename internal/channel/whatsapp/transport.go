// Package whatsapp adapts a whatsmeow client to the channel.Transport
// interface. Session credentials live in the sqlstore container; purging
// them forces a fresh QR pairing on the next connect.
package whatsapp

import (
	"context"
	"fmt"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/beaconhq/beacon/internal/channel"
	"github.com/beaconhq/beacon/internal/log"
)

// transportBufferSize is the event channel buffer. Sized to absorb a burst
// of messages while the manager is busy answering.
const transportBufferSize = 64

// session is the part of a whatsmeow client the transport drives after
// connecting. Satisfied by *whatsmeow.Client.
type session interface {
	Disconnect()
	RemoveEventHandlers()
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
}

// Transport drives a WhatsApp session through whatsmeow.
type Transport struct {
	container *sqlstore.Container
	logger    log.Logger
	events    chan channel.TransportEvent

	mu     sync.Mutex
	client session
}

// NewTransport creates a transport over an already-constructed credential
// container. deviceName is advertised to paired phones.
func NewTransport(container *sqlstore.Container, deviceName string, logger log.Logger) *Transport {
	if logger == nil {
		logger = log.NewNop()
	}
	if deviceName != "" {
		store.SetOSInfo(deviceName, [3]uint32(store.GetWAVersion()))
	}
	return &Transport{
		container: container,
		logger:    logger.With("component", "whatsapp_transport"),
		events:    make(chan channel.TransportEvent, transportBufferSize),
	}
}

// NewContainer opens the whatsmeow credential store on the given Postgres
// DSN. The sqlstore manages its own schema.
func NewContainer(ctx context.Context, dsn string, logger log.Logger) (*sqlstore.Container, error) {
	container, err := sqlstore.New(ctx, "pgx", dsn, newWALogger(logger))
	if err != nil {
		return nil, fmt.Errorf("opening whatsapp credential store: %w", err)
	}
	return container, nil
}

// Events returns the transport event stream. The channel stays open for
// the transport's lifetime, across reconnect cycles.
func (t *Transport) Events() <-chan channel.TransportEvent {
	return t.events
}

// Connect builds a fresh client over the stored device and connects,
// tearing down any previous client first so at most one is live. A
// device with no stored credentials goes through QR pairing; each QR
// code is emitted as a pairing event.
func (t *Transport) Connect(ctx context.Context) error {
	device, err := t.container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("loading device credentials: %w", err)
	}

	client := whatsmeow.NewClient(device, newWALogger(t.logger))
	// Recovery is owned by the caller's disconnect handling; a client
	// reconnecting on its own would duplicate the session.
	client.EnableAutoReconnect = false
	client.AddEventHandler(t.handleEvent)

	t.adopt(client)

	if client.Store.ID == nil {
		// No stored session: QR pairing. The QR channel must be
		// requested before connecting.
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("requesting pairing channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			return fmt.Errorf("connecting for pairing: %w", err)
		}
		go t.pumpQR(qrChan)
		return nil
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connecting with stored session: %w", err)
	}
	return nil
}

// pumpQR forwards QR codes as pairing events until the pairing channel
// closes. Success and timeout outcomes surface through the normal event
// handler, so only codes are forwarded here.
func (t *Transport) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			t.emit(channel.TransportEvent{Type: channel.TransportPairing, Payload: item.Code})
		case whatsmeow.QRChannelEventError:
			t.logger.Error("pairing failed", "error", item.Error)
			t.emit(channel.TransportEvent{Type: channel.TransportDisconnected, Reason: "pairing failed"})
		default:
			t.logger.Debug("pairing channel event", "event", item.Event)
		}
	}
}

func (t *Transport) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Connected:
		t.emit(channel.TransportEvent{Type: channel.TransportConnected})

	case *events.Disconnected:
		t.emit(channel.TransportEvent{Type: channel.TransportDisconnected, Reason: "connection closed"})

	case *events.LoggedOut:
		t.emit(channel.TransportEvent{Type: channel.TransportDisconnected, Reason: "logged out"})

	case *events.Message:
		if v.Info.IsFromMe || v.Info.IsGroup {
			return
		}
		text := extractText(v.Message)
		if text == "" {
			return
		}
		t.emit(channel.TransportEvent{
			Type:   channel.TransportMessage,
			Sender: v.Info.Sender.ToNonAD().String(),
			Text:   text,
		})
	}
}

// extractText pulls the body out of plain and extended text messages.
// Media and other message kinds yield an empty string and are ignored.
func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if text := msg.GetConversation(); text != "" {
		return text
	}
	return msg.GetExtendedTextMessage().GetText()
}

func (t *Transport) emit(ev channel.TransportEvent) {
	select {
	case t.events <- ev:
	default:
		t.logger.Warn("dropping transport event, manager not keeping up", "type", ev.Type)
	}
}

// Send delivers a text message to the given JID.
func (t *Transport) Send(ctx context.Context, recipient, text string) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client == nil {
		return fmt.Errorf("transport not connected")
	}

	jid, err := types.ParseJID(recipient)
	if err != nil {
		return fmt.Errorf("parsing recipient %q: %w", recipient, err)
	}

	_, err = client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// adopt installs the next client after tearing down the previous one, so
// a reconnect cycle never leaves two live clients or duplicate handlers.
func (t *Transport) adopt(next session) {
	t.mu.Lock()
	prev := t.client
	t.client = next
	t.mu.Unlock()

	if prev != nil {
		prev.RemoveEventHandlers()
		prev.Disconnect()
	}
}

// Disconnect tears down the live client, keeping stored credentials.
func (t *Transport) Disconnect() {
	t.adopt(nil)
}

// PurgeCredentials deletes the stored device so the next Connect starts a
// fresh pairing.
func (t *Transport) PurgeCredentials(ctx context.Context) error {
	device, err := t.container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("loading device for purge: %w", err)
	}
	if device.ID == nil {
		return nil // nothing stored
	}
	if err := device.Delete(ctx); err != nil {
		return fmt.Errorf("deleting device credentials: %w", err)
	}
	t.logger.Info("session credentials purged")
	return nil
}
