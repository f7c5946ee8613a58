package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/chatbridge/internal/config"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize configuration and the session directory",
	RunE:  runOnboard,
}

func runOnboard(_ *cobra.Command, _ []string) error {
	cfgPath := configPath()

	var cfg *config.Config
	if exists(cfgPath) {
		fmt.Printf("Config already exists at %s\n", cfgPath)
		fmt.Printf("Press Enter to refresh (keep existing values) or Ctrl+C to cancel: ")
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
		existing, err := config.Load(cfgPath)
		if err != nil {
			def := config.DefaultConfig()
			existing = &def
		}
		cfg = existing
		if err := config.Save(cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Config refreshed at %s\n", cfgPath)
	} else {
		def := config.DefaultConfig()
		cfg = &def
		if err := config.Save(cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Created config at %s\n", cfgPath)
	}

	dir := cfg.SessionDirPath()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	fmt.Printf("✓ Session dir at %s\n", dir)

	fmt.Printf("\n%s chatbridge is ready!\n\n", logo)
	fmt.Println("Next steps:")
	fmt.Printf("  1. Point backend.serverUrl in %s at your agent server\n", cfgPath)
	fmt.Println("  2. Enable a channel and add its credentials")
	fmt.Println("  3. Run: chatbridge gateway --cli")
	return nil
}
