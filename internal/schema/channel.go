// Package schema holds the contracts shared between the bridge engine and
// the chat-platform adapters.
package schema

import (
	"context"
)

// Channel is the interface every chat-platform adapter must implement.
//
// Inbound messages are delivered on the bus the adapter was built with.
// Adapters with size limits truncate the body and append a visible marker
// rather than failing an update.
type Channel interface {
	// Name returns the unique channel identifier (e.g. "feishu").
	Name() string
	// Start begins listening for incoming messages; it blocks until ctx is cancelled.
	Start(ctx context.Context) error
	// Stop releases platform connections. It is safe to call after Start returned.
	Stop(ctx context.Context) error

	// SendText posts a new message and returns its platform id.
	SendText(ctx context.Context, chatID, text string) (string, error)
	// UpdateText replaces the content of a previously sent message.
	UpdateText(ctx context.Context, chatID, messageID, text string) error
	// UpdateStatusAndText replaces a message with two independently rendered
	// regions: a tool status block and the response body. An empty status
	// renders the body alone.
	UpdateStatusAndText(ctx context.Context, chatID, messageID, status, body string) error
}
