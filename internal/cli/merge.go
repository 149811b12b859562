package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemo-ai/mnemo/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "merge [dest] [sourceA] [sourceB]",
		Short: "Merge two memory stores into a fresh destination",
		Long: "Union statements, chat and summaries from two independently grown\n" +
			"stores into a brand-new destination store, deduplicating by content.\n" +
			"Every session is then resummarized over the merged history and a\n" +
			"global summary is computed. A pre-existing destination is deleted.",
		Args: cobra.ExactArgs(3),
		Run:  runMerge,
	}

	RootCmd.AddCommand(cmd)
}

func runMerge(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	dest, err := engine.Consolidate(cmd.Context(), cfg, log, args[0], args[1], args[2])
	if err != nil {
		exitErr("merge", err)
	}
	fmt.Printf("merged into %s\n", dest)
}
