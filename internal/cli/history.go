package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show a session's chat history",
		Run:   runHistory,
	}

	cmd.Flags().StringP("session", "s", "", "Session name (default: $MNEMO_SESSION)")

	RootCmd.AddCommand(cmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")

	cfg := loadConfig()
	if session == "" {
		session = cfg.Session
	}

	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	msgs, err := s.ChatHistory(cmd.Context(), session)
	if err != nil {
		exitErr("history", err)
	}

	for _, m := range msgs {
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format(time.RFC3339), m.Role, m.Content)
	}
}
