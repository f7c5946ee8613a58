package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/chatbridge/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show chatbridge status",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := configPath()

	fmt.Printf("%s chatbridge Status\n\n", logo)
	fmt.Printf("Config:       %s %s\n", cfgPath, yesNo(exists(cfgPath)))

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}

	fmt.Printf("Agent server: %s\n", cfg.Backend.ServerURL)
	fmt.Printf("Agent:        %s\n", orDefault(cfg.Backend.Agent))
	fmt.Printf("Model:        %s\n", orDefault(cfg.Backend.Model))

	dir := cfg.SessionDirPath()
	fmt.Printf("Session dir:  %s %s\n", dir, yesNo(exists(dir)))
	store := session.NewStore(dir)
	fmt.Printf("Sessions:     %d\n", store.Len())

	if !cfg.Channels.AnyEnabled() {
		fmt.Println("\nWarning: no channels enabled")
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func orDefault(s string) string {
	if s == "" {
		return "(server default)"
	}
	return s
}
