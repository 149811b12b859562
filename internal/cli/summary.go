package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the rolling summary for a session, or the global summary",
		Run:   runSummary,
	}

	cmd.Flags().StringP("session", "s", "", "Session name (default: $MNEMO_SESSION)")
	cmd.Flags().BoolP("global", "g", false, "Show the merged global summary instead")

	RootCmd.AddCommand(cmd)
}

func runSummary(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")
	global, _ := cmd.Flags().GetBool("global")

	cfg := loadConfig()
	if session == "" {
		session = cfg.Session
	}

	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if global {
		g, err := s.GlobalSummary(cmd.Context())
		if err != nil {
			exitErr("summary", err)
		}
		if g == nil {
			fmt.Println("No global summary recorded (run a merge first).")
			return
		}
		fmt.Println(g.Summary)
		return
	}

	sum, err := s.SessionSummary(cmd.Context(), session)
	if err != nil {
		exitErr("summary", err)
	}
	if sum == nil {
		fmt.Printf("No summary for session %q yet.\n", session)
		return
	}
	fmt.Println(sum.Summary)
}
