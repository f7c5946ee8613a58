// Package bus defines the message types that flow from chat channels to the bridge.
package bus

import "time"

// Attachment is a file the sender attached to a message.
type Attachment struct {
	URL  string `json:"url"`
	Mime string `json:"mime"`
	Name string `json:"name"`
}

// InboundMessage is a message received from a chat channel.
type InboundMessage struct {
	channel     Channel        // "feishu", "telegram", "slack", "cli"
	senderId    string         // user identifier within the channel
	chatId      string         // chat / group / DM identifier
	content     string         // message text
	timestamp   time.Time      // when the message was received
	attachments []Attachment   // optional files
	metadata    map[string]any // channel-specific extra data (message_id, chat_type, …)
}

// NewInboundMessage creates an InboundMessage with Timestamp set to now.
// Use SetAttachments and SetMetadata to attach optional fields.
func NewInboundMessage(channel Channel, senderId, chatId, content string) InboundMessage {
	return InboundMessage{
		channel:   channel,
		senderId:  senderId,
		chatId:    chatId,
		content:   content,
		timestamp: time.Now(),
	}
}

func (m InboundMessage) ChatId() string                { return m.chatId }
func (m InboundMessage) SenderId() string              { return m.senderId }
func (m InboundMessage) Content() string               { return m.content }
func (m InboundMessage) Channel() Channel              { return m.channel }
func (m InboundMessage) Timestamp() time.Time          { return m.timestamp }
func (m InboundMessage) Attachments() []Attachment     { return m.attachments }
func (m InboundMessage) Metadata() map[string]any      { return m.metadata }
func (m *InboundMessage) SetAttachments(a []Attachment) { m.attachments = a }
func (m *InboundMessage) SetMetadata(md map[string]any) { m.metadata = md }

// SessionKey returns the key used to look up the backend session for this
// conversation. Format: "channel:chat_id".
func (m InboundMessage) SessionKey() string {
	return RoutingKey(m.channel, m.chatId)
}

// Preview returns a short snippet of the message content for logging.
func (m InboundMessage) Preview() string {
	runes := []rune(m.content)
	if len(runes) > 80 {
		return string(runes[:80]) + "..."
	}
	return m.content
}
