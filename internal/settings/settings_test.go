package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstructionsFallBackToChannelDefault(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	text, err := s.Instructions(ctx, ChannelDefault)
	require.NoError(t, err)
	assert.Equal(t, DefaultInstructions, text)

	text, err = s.Instructions(ctx, ChannelMessaging)
	require.NoError(t, err)
	assert.Equal(t, DefaultMessagingInstructions, text)
}

func TestSetInstructionsRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetInstructions(ctx, ChannelMessaging, "Answer tersely."))

	text, err := s.Instructions(ctx, ChannelMessaging)
	require.NoError(t, err)
	assert.Equal(t, "Answer tersely.", text)

	// The other channel is untouched.
	text, err = s.Instructions(ctx, ChannelDefault)
	require.NoError(t, err)
	assert.Equal(t, DefaultInstructions, text)
}

func TestEmptyInstructionsResolveToDefault(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetInstructions(ctx, ChannelDefault, ""))

	text, err := s.Instructions(ctx, ChannelDefault)
	require.NoError(t, err)
	assert.Equal(t, DefaultInstructions, text)
}

func TestActiveDefaultsToFalse(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	active, err := s.Active(ctx, ChannelMessaging)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestSetActivePersists(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetActive(ctx, ChannelMessaging, true))

	active, err := s.Active(ctx, ChannelMessaging)
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, s.SetActive(ctx, ChannelMessaging, false))

	active, err = s.Active(ctx, ChannelMessaging)
	require.NoError(t, err)
	assert.False(t, active)
}
