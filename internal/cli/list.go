package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemo-ai/mnemo/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored statements",
		Run:   runList,
	}

	cmd.Flags().StringP("kind", "k", "", "Filter by kind: fact, desire, opinion, backlog")
	cmd.Flags().StringP("query", "q", "", "Filter by substring")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	kindStr, _ := cmd.Flags().GetString("kind")
	query, _ := cmd.Flags().GetString("query")

	var kind model.StatementKind
	if kindStr != "" {
		k, err := model.ParseStatementKind(kindStr)
		if err != nil {
			exitErr("list", err)
		}
		kind = k
	}

	cfg := loadConfig()
	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stmts, err := s.Statements(cmd.Context(), kind, query)
	if err != nil {
		exitErr("list", err)
	}

	b, _ := json.MarshalIndent(stmts, "", "  ")
	fmt.Println(string(b))
}
