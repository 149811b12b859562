// Package cli implements the mnemo CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mnemo-ai/mnemo/internal/config"
	"github.com/mnemo-ai/mnemo/internal/engine"
	"github.com/mnemo-ai/mnemo/internal/llm"
	"github.com/mnemo-ai/mnemo/internal/store"
)

var (
	dbPath   string
	nodeName string
	log      = logrus.New()
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Personal assistant memory node",
	Long: "A persistent memory layer for a local language-model assistant.\n" +
		"Stores statements and conversation turns in SQLite, keeps rolling\n" +
		"summaries, retrieves context by embedding similarity, and merges\n" +
		"memory stores from multiple nodes.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $MNEMO_DB or ~/.mnemo/memory.db)")
	RootCmd.PersistentFlags().StringVar(&nodeName, "node", "", "Node name written as source_node (default: $MNEMO_NODE or hostname)")

	if lvl, err := logrus.ParseLevel(os.Getenv("MNEMO_LOG_LEVEL")); err == nil {
		log.SetLevel(lvl)
	}
}

func loadConfig() config.Config {
	cfg := config.FromEnv()
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if nodeName != "" {
		cfg.NodeName = nodeName
	}
	return cfg
}

func openStore(cfg config.Config) (*store.Store, error) {
	return store.New(cfg.DBPath, cfg.NodeName)
}

func openEngine(cfg config.Config) (*engine.Engine, *store.Store, error) {
	s, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return engine.New(cfg, s, llm.NewClient(cfg, log), log), s, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
