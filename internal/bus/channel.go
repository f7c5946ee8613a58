package bus

// Channel names a chat platform. It is the first half of every routing key.
type Channel string

const (
	ChannelFeishu   Channel = "feishu"
	ChannelTelegram Channel = "telegram"
	ChannelSlack    Channel = "slack"
	ChannelCLI      Channel = "cli"
)

func (c Channel) String() string { return string(c) }
