package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables that override file settings.
const (
	EnvServerURL            = "RESEARCH_SERVER_URL"
	EnvAgent                = "RESEARCH_AGENT"
	EnvModel                = "RESEARCH_MODEL"
	EnvFeishuAppID          = "FEISHU_APP_ID"
	EnvFeishuAppSecret      = "FEISHU_APP_SECRET"
	EnvFeishuRequireMention = "FEISHU_REQUIRE_MENTION"
	EnvTelegramToken        = "TELEGRAM_BOT_TOKEN"
	EnvSlackBotToken        = "SLACK_BOT_TOKEN"
	EnvSlackAppToken        = "SLACK_APP_TOKEN"
	EnvSessionDir           = "BRIDGE_SESSION_DIR"
	EnvLogLevel             = "BRIDGE_LOG_LEVEL"
)

// LoadDotEnv reads KEY=VALUE pairs from a .env file into the process environment.
// Existing environment variables are not overwritten. A missing file is not an error.
func LoadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open dotenv file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

		key, rawValue, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("dotenv %q:%d: expected KEY=VALUE", path, lineNo)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("dotenv %q:%d: empty key", path, lineNo)
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}

		value := strings.TrimSpace(rawValue)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("dotenv %q:%d: set %q: %w", path, lineNo, key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read dotenv %q: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables on cfg. Setting both Feishu
// credentials enables the Feishu channel, matching the standalone launcher.
func applyEnv(cfg *Config) {
	setString(&cfg.Backend.ServerURL, EnvServerURL)
	setString(&cfg.Backend.Agent, EnvAgent)
	setString(&cfg.Backend.Model, EnvModel)
	setString(&cfg.Bridge.SessionDir, EnvSessionDir)
	setString(&cfg.Logging.Level, EnvLogLevel)

	fs := &cfg.Channels.Feishu
	setString(&fs.AppID, EnvFeishuAppID)
	setString(&fs.AppSecret, EnvFeishuAppSecret)
	if os.Getenv(EnvFeishuAppID) != "" && os.Getenv(EnvFeishuAppSecret) != "" {
		fs.Enabled = true
	}
	if v, ok := os.LookupEnv(EnvFeishuRequireMention); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			fs.RequireMention = b
		}
	}

	if v := os.Getenv(EnvTelegramToken); v != "" {
		cfg.Channels.Telegram.Token = v
		cfg.Channels.Telegram.Enabled = true
	}

	setString(&cfg.Channels.Slack.BotToken, EnvSlackBotToken)
	setString(&cfg.Channels.Slack.AppToken, EnvSlackAppToken)
	if os.Getenv(EnvSlackBotToken) != "" && os.Getenv(EnvSlackAppToken) != "" {
		cfg.Channels.Slack.Enabled = true
	}
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}
