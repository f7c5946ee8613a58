// Package channels provides chat-platform channel implementations.
package channels

import (
	"context"
	"log/slog"
	"strings"

	"github.com/crystaldolphin/chatbridge/internal/bus"
)

// Base holds common state and helper methods shared by all channels.
type Base struct {
	channelName bus.Channel
	b           bus.Bus
	allowFrom   []string // empty = allow all
}

// NewBase creates a Base with the given channel name, bus, and allowlist.
func NewBase(name bus.Channel, b bus.Bus, allowFrom []string) Base {
	return Base{channelName: name, b: b, allowFrom: allowFrom}
}

// IsAllowed checks whether senderID is on the allowlist.
// senderID may be "id|username" (Telegram) or a plain string.
func (b *Base) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	for _, part := range strings.Split(senderID, "|") {
		if part == "" {
			continue
		}
		for _, allowed := range b.allowFrom {
			if allowed == part || allowed == senderID {
				return true
			}
		}
	}
	return false
}

// HandleMessage verifies the sender is allowed, then pushes an InboundMessage
// to the bus. It reports whether the message was published.
func (b *Base) HandleMessage(
	ctx context.Context,
	senderId, chatId, content string,
	attachments []bus.Attachment,
	metadata map[string]any,
) bool {
	if !b.IsAllowed(senderId) {
		slog.Warn("access denied", "channel", b.channelName, "sender", senderId)
		return false
	}

	msg := bus.NewInboundMessage(b.channelName, senderId, chatId, content)
	msg.SetAttachments(attachments)
	msg.SetMetadata(metadata)
	if err := b.b.PublishInbound(ctx, msg); err != nil {
		slog.Warn("inbound dropped", "channel", b.channelName, "chat", chatId, "err", err)
		return false
	}
	slog.Debug("inbound", "channel", b.channelName, "chat", chatId, "preview", msg.Preview())
	return true
}
