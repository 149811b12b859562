package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mnemo-ai/mnemo/internal/config"
	"github.com/mnemo-ai/mnemo/internal/llm"
	"github.com/mnemo-ai/mnemo/internal/store"
)

const globalSummaryInstruction = "Compress the following complete conversation history from all sessions " +
	"into terse bullet points. Capture events, dates and times, tasks and decisions."

// Consolidate merges stores a and b into a brand-new store at dest, then
// re-derives a rolling summary for every session over the unioned history
// and recomputes the singleton global summary. This is a one-shot batch
// operation: it assumes exclusive access to dest and unchanging sources.
// A failed run leaves dest invalid; discard it and rerun.
func Consolidate(ctx context.Context, cfg config.Config, log *logrus.Logger, dest, a, b string) (string, error) {
	st, err := store.MergeStores(ctx, dest, a, b, cfg.NodeName)
	if err != nil {
		return "", err
	}
	defer st.Close()

	e := New(cfg, st, llm.NewClient(cfg, log), log)

	sessions, err := st.Sessions(ctx)
	if err != nil {
		return "", err
	}
	for _, session := range sessions {
		if err := e.EnsureSummary(ctx, session, cfg.Model); err != nil {
			return "", fmt.Errorf("resummarize after merge: %w", err)
		}
		log.WithField("session", session).Info("session resummarized")
	}

	if err := e.GlobalSummarize(ctx); err != nil {
		return "", err
	}
	return dest, nil
}

// GlobalSummarize compresses the entire chat table across all sessions
// into the singleton global summary. A store with no chat is a no-op.
func (e *Engine) GlobalSummarize(ctx context.Context) error {
	all, err := e.store.AllChat(ctx)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		return nil
	}

	var b strings.Builder
	for _, m := range all {
		fmt.Fprintf(&b, "- [%s] (%s) %s: %s\n", m.CreatedAt.Format(time.RFC3339), m.Session, m.Role, m.Content)
	}
	prompt := globalSummaryInstruction + "\n\n" + b.String()

	text, err := e.client.Chat(ctx, e.cfg.Model, "", []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return fmt.Errorf("global summary: %w", err)
	}

	_, err = e.store.ReplaceGlobalSummary(ctx, text)
	return err
}

// SyncMerge folds the three dedup tables of the store at remotePath
// directly into local. No resummarization and no global summary: this is
// the periodic pull between two live nodes, not a consolidation.
func SyncMerge(ctx context.Context, local *store.Store, remotePath string) error {
	return local.MergeFrom(ctx, remotePath)
}
