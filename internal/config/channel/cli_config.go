package channel

// CLIConfig configures the local console channel.
type CLIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	ChatID  string `json:"chatId" yaml:"chatId"`
}

func DefaultCLIConfig() CLIConfig {
	return CLIConfig{ChatID: "direct"}
}
