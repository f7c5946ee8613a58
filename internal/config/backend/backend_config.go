package backend

// DefaultServerURL is where a locally started agent server listens.
const DefaultServerURL = "http://127.0.0.1:4096"

// BackendConfig points the bridge at the agent server.
type BackendConfig struct {
	ServerURL string `json:"serverUrl" yaml:"serverUrl"`
	// Agent and Model are optional routing hints sent with every prompt.
	// Model has the form "providerID/modelID".
	Agent        string            `json:"agent,omitempty" yaml:"agent,omitempty"`
	Model        string            `json:"model,omitempty" yaml:"model,omitempty"`
	ExtraHeaders map[string]string `json:"extraHeaders,omitempty" yaml:"extraHeaders,omitempty"`
}

func DefaultBackendConfig() BackendConfig {
	return BackendConfig{ServerURL: DefaultServerURL}
}
