package channel

// DefaultFeishuDomain is the Feishu open platform. Lark tenants use
// https://open.larksuite.com instead.
const DefaultFeishuDomain = "https://open.feishu.cn"

// FeishuConfig configures the Feishu/Lark channel.
type FeishuConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	AppID     string `json:"appId" yaml:"appId"`
	AppSecret string `json:"appSecret" yaml:"appSecret"`
	Domain    string `json:"domain" yaml:"domain"`
	// RequireMention makes group chats respond only when the bot is @-mentioned.
	RequireMention bool     `json:"requireMention" yaml:"requireMention"`
	AllowFrom      []string `json:"allowFrom" yaml:"allowFrom"`
}

func DefaultFeishuConfig() FeishuConfig {
	return FeishuConfig{Domain: DefaultFeishuDomain, AllowFrom: []string{}}
}
