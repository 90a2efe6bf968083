// Package settings persists per-channel configuration: the instruction
// text prepended to every prompt and the activation flag gating traffic.
package settings

import (
	"context"
)

// Channel tags. Each channel carries its own instructions and activation
// flag.
const (
	// ChannelDefault is the direct API surface.
	ChannelDefault = "default"

	// ChannelMessaging is the paired messaging surface.
	ChannelMessaging = "messaging"
)

// Fallback instruction text for channels with no stored value. Absent
// never surfaces as an empty string.
const (
	DefaultInstructions          = "Default system instructions"
	DefaultMessagingInstructions = "Default messaging instructions"
)

// Store persists instructions and activation flags per channel.
// Implementations must be safe for concurrent use.
type Store interface {
	// Instructions returns the channel's instruction text, falling back
	// to the channel's default when nothing is stored.
	Instructions(ctx context.Context, channel string) (string, error)

	// SetInstructions stores the channel's instruction text.
	SetInstructions(ctx context.Context, channel, text string) error

	// Active reports whether the channel processes traffic. Channels
	// with no stored flag are inactive.
	Active(ctx context.Context, channel string) (bool, error)

	// SetActive persists the channel's activation flag.
	SetActive(ctx context.Context, channel string, active bool) error
}

// defaultInstructions resolves the fallback text for a channel.
func defaultInstructions(channel string) string {
	if channel == ChannelMessaging {
		return DefaultMessagingInstructions
	}
	return DefaultInstructions
}
