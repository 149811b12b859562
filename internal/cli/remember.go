package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "remember [text]",
		Short: "Store a durable statement",
		Long:  "Store a durable statement. Text can be a positional arg or piped via stdin.",
		Run:   runRemember,
	}

	cmd.Flags().StringP("kind", "k", "fact", "Kind: fact, desire, opinion, backlog")

	RootCmd.AddCommand(cmd)
}

func runRemember(cmd *cobra.Command, args []string) {
	kind, _ := cmd.Flags().GetString("kind")

	var text string
	if len(args) > 0 {
		text = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			text = string(b)
		}
	}

	cfg := loadConfig()
	e, s, err := openEngine(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	st, err := e.Remember(cmd.Context(), kind, text)
	if err != nil {
		exitErr("remember", err)
	}

	b, _ := json.Marshal(st)
	fmt.Println(string(b))
}
