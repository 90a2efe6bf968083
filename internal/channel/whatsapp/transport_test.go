package whatsapp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/beaconhq/beacon/internal/channel"
	"github.com/beaconhq/beacon/internal/log"
)

func newTestLogger() log.Logger {
	return log.NewNop()
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil message", nil, ""},
		{
			"plain conversation",
			&waE2E.Message{Conversation: proto.String("hello")},
			"hello",
		},
		{
			"extended text",
			&waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("linked hello")}},
			"linked hello",
		},
		{
			"media only",
			&waE2E.Message{ImageMessage: &waE2E.ImageMessage{}},
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractText(tt.msg))
		})
	}
}

// fakeSession counts teardown calls in place of a live whatsmeow client.
type fakeSession struct {
	disconnects     int
	handlersRemoved int
}

func (f *fakeSession) Disconnect()          { f.disconnects++ }
func (f *fakeSession) RemoveEventHandlers() { f.handlersRemoved++ }

func (f *fakeSession) SendMessage(_ context.Context, _ types.JID, _ *waE2E.Message, _ ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error) {
	return whatsmeow.SendResponse{}, nil
}

func TestAdoptTearsDownPreviousClient(t *testing.T) {
	tr := &Transport{logger: newTestLogger()}

	first := &fakeSession{}
	second := &fakeSession{}

	tr.adopt(first)
	assert.Zero(t, first.disconnects)

	// A reconnect cycle must never leave two live clients or the old
	// client's event handlers attached.
	tr.adopt(second)
	assert.Equal(t, 1, first.disconnects)
	assert.Equal(t, 1, first.handlersRemoved)
	assert.Zero(t, second.disconnects)
	assert.Same(t, second, tr.client)

	tr.Disconnect()
	assert.Equal(t, 1, second.disconnects)
	assert.Equal(t, 1, second.handlersRemoved)
	assert.Nil(t, tr.client)

	tr.Disconnect() // idempotent with no client
}

func TestEmitDropsWhenBufferFull(t *testing.T) {
	tr := &Transport{
		logger: nil,
		events: make(chan channel.TransportEvent, 1),
	}
	tr.logger = newTestLogger()

	tr.emit(channel.TransportEvent{Type: channel.TransportConnected})
	tr.emit(channel.TransportEvent{Type: channel.TransportConnected}) // dropped, must not block

	assert.Len(t, tr.events, 1)
}
