package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/chatbridge/internal/bus"
	"github.com/crystaldolphin/chatbridge/internal/session"
)

var sessionsPruneMaxAge time.Duration

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and maintain conversation to session mappings",
}

func init() {
	sessionsPruneCmd.Flags().DurationVar(&sessionsPruneMaxAge, "max-age", 30*24*time.Hour, "Remove mappings idle for longer than this")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsPruneCmd)
	sessionsCmd.AddCommand(sessionsResetCmd)
}

func openStore() (*session.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return session.NewStore(cfg.SessionDirPath()), nil
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored mappings, most recent first",
	RunE: func(_ *cobra.Command, _ []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		entries := store.List()
		if len(entries) == 0 {
			fmt.Println("No sessions.")
			return nil
		}
		fmt.Printf("%-40s %-32s %s\n", "Conversation", "Session", "Last activity")
		for _, e := range entries {
			fmt.Printf("%-40s %-32s %s\n", e.Key, e.SessionID, e.LastActivity.Format(time.DateTime))
		}
		return nil
	},
}

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove idle mappings",
	RunE: func(_ *cobra.Command, _ []string) error {
		if sessionsPruneMaxAge <= 0 {
			return fmt.Errorf("--max-age must be positive")
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		n, err := store.Prune(sessionsPruneMaxAge)
		if err != nil {
			return fmt.Errorf("prune sessions: %w", err)
		}
		fmt.Printf("✓ Removed %d session(s)\n", n)
		return nil
	},
}

var sessionsResetCmd = &cobra.Command{
	Use:   "reset <channel:chatId>",
	Short: "Forget a conversation's session so its next message starts fresh",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ch, chatID := bus.ParseRoutingKey(args[0])
		if chatID == "" {
			return fmt.Errorf("expected <channel:chatId>, got %q", args[0])
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		removed, err := store.Delete(ch, chatID)
		if err != nil {
			return fmt.Errorf("reset session: %w", err)
		}
		if !removed {
			fmt.Printf("No session for %s\n", args[0])
			return nil
		}
		fmt.Printf("✓ Reset %s\n", args[0])
		return nil
	},
}
