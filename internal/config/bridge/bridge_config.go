package bridge

// TextsConfig overrides the user-visible strings. Empty fields keep the
// built-in defaults.
type TextsConfig struct {
	Placeholder   string `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	CreateFailed  string `json:"createFailed,omitempty" yaml:"createFailed,omitempty"`
	PromptFailed  string `json:"promptFailed,omitempty" yaml:"promptFailed,omitempty"`
	ErrorPrefix   string `json:"errorPrefix,omitempty" yaml:"errorPrefix,omitempty"`
	UnknownError  string `json:"unknownError,omitempty" yaml:"unknownError,omitempty"`
	EmptyReply    string `json:"emptyReply,omitempty" yaml:"emptyReply,omitempty"`
	RunningMarker string `json:"runningMarker,omitempty" yaml:"runningMarker,omitempty"`
	DoneMarker    string `json:"doneMarker,omitempty" yaml:"doneMarker,omitempty"`
}

// PruneConfig schedules removal of idle conversation mappings.
// An empty Schedule disables pruning.
type PruneConfig struct {
	Schedule    string `json:"schedule" yaml:"schedule"` // cron expression, e.g. "0 0 4 * * *"
	MaxAgeHours int    `json:"maxAgeHours" yaml:"maxAgeHours"`
}

// BridgeConfig holds engine behaviour settings.
type BridgeConfig struct {
	SessionDir       string      `json:"sessionDir" yaml:"sessionDir"`
	ThrottleMs       int         `json:"throttleMs" yaml:"throttleMs"`
	ReconnectDelayMs int         `json:"reconnectDelayMs" yaml:"reconnectDelayMs"`
	InboundBuffer    int         `json:"inboundBuffer" yaml:"inboundBuffer"`
	HeartbeatMinutes int         `json:"heartbeatMinutes" yaml:"heartbeatMinutes"` // 0 disables
	Texts            TextsConfig `json:"texts" yaml:"texts"`
	Prune            PruneConfig `json:"prune" yaml:"prune"`
}

func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		SessionDir:       "~/.openresearch/bridge",
		ThrottleMs:       500,
		ReconnectDelayMs: 3000,
		InboundBuffer:    100,
		HeartbeatMinutes: 30,
		Prune:            PruneConfig{MaxAgeHours: 24 * 30},
	}
}
