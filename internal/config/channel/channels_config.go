package channel

type ChannelsConfig struct {
	Feishu   FeishuConfig   `json:"feishu" yaml:"feishu"`
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Slack    SlackConfig    `json:"slack" yaml:"slack"`
	CLI      CLIConfig      `json:"cli" yaml:"cli"`
}

func DefaultChannelsConfig() ChannelsConfig {
	return ChannelsConfig{
		Feishu:   DefaultFeishuConfig(),
		Telegram: DefaultTelegramConfig(),
		Slack:    DefaultSlackConfig(),
		CLI:      DefaultCLIConfig(),
	}
}

// AnyEnabled reports whether at least one channel is switched on.
func (c ChannelsConfig) AnyEnabled() bool {
	return c.Feishu.Enabled || c.Telegram.Enabled || c.Slack.Enabled || c.CLI.Enabled
}
