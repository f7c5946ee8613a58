// Package cmd implements the chatbridge CLI using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/chatbridge/internal/config"
)

const version = "0.1.0"
const logo = "🐬"

var cfgFile string

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "chatbridge",
	Short: logo + " chatbridge connects chat platforms to an agent server",
	Long: logo + " chatbridge relays messages from Feishu, Telegram, Slack and the console\n" +
		"to a coding-agent server and streams its replies back as live-edited messages.",
	SilenceUsage: true,
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default "+config.ConfigPath()+")")

	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(channelsCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.ConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
