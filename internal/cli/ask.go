package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Ask the assistant",
		Long:  "Ask the assistant. The prompt can be a positional arg or piped via stdin.",
		Run:   runAsk,
	}

	cmd.Flags().StringP("model", "m", "", "Chat model (default: $MNEMO_MODEL)")
	cmd.Flags().StringP("session", "s", "", "Session name (default: $MNEMO_SESSION)")

	RootCmd.AddCommand(cmd)
}

func runAsk(cmd *cobra.Command, args []string) {
	modelName, _ := cmd.Flags().GetString("model")
	session, _ := cmd.Flags().GetString("session")

	var prompt string
	if len(args) > 0 {
		prompt = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			prompt = string(b)
		}
	}

	cfg := loadConfig()
	e, s, err := openEngine(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	answer, err := e.Ask(cmd.Context(), prompt, modelName, session)
	if err != nil {
		exitErr("ask", err)
	}
	fmt.Println(answer)
}
