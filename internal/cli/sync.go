package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemo-ai/mnemo/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sync [remote-db]",
		Short: "Pull another node's records into the local store",
		Long: "Fold a remote store's statements, chat and summaries directly into\n" +
			"the local store, deduplicating by content. No resummarization runs;\n" +
			"use merge for a full consolidation.",
		Args: cobra.ExactArgs(1),
		Run:  runSync,
	}

	RootCmd.AddCommand(cmd)
}

func runSync(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := engine.SyncMerge(cmd.Context(), s, args[0]); err != nil {
		exitErr("sync", err)
	}
	fmt.Printf("synced %s into %s\n", args[0], cfg.DBPath)
}
