package bus

import "context"

// Bus is the contract between chat channels and the bridge engine.
type Bus interface {
	// PublishInbound delivers a message from a channel to the engine.
	// It blocks while the buffer is full and gives up when ctx is done.
	PublishInbound(ctx context.Context, msg InboundMessage) error
	// InboundChan returns a receive-only channel for the engine to consume.
	InboundChan() <-chan InboundMessage
}

// MessageBus is the default in-process Bus implementation backed by a
// buffered Go channel.
type MessageBus struct {
	inbound chan InboundMessage // channels -> engine
}

func NewMessageBus(bufSize int) *MessageBus {
	return &MessageBus{inbound: make(chan InboundMessage, bufSize)}
}

// PublishInbound sends an InboundMessage to the engine.
func (b *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) error {
	select {
	case b.inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InboundChan returns a receive-only view of the inbound channel.
func (b *MessageBus) InboundChan() <-chan InboundMessage {
	return b.inbound
}

// InboundSize reports how many messages are waiting.
func (b *MessageBus) InboundSize() int { return len(b.inbound) }
