package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mnemo-ai/mnemo/internal/llm"
	"github.com/mnemo-ai/mnemo/internal/model"
)

const summaryInstruction = "Compress the following conversation history into terse bullet points. " +
	"Capture events, dates and times, tasks and decisions. Keep every bullet short."

// EnsureSummary re-summarizes a session's non-recent history when the turn
// count exceeds the history window. The session's summary rows are
// replaced wholesale: each run re-reads the raw turns rather than the
// prior summary text, so summaries never compound drift. A session at or
// under the window is a no-op.
func (e *Engine) EnsureSummary(ctx context.Context, session, modelName string) error {
	history, err := e.store.ChatHistory(ctx, session)
	if err != nil {
		return err
	}
	if len(history) <= e.cfg.HistoryWindow {
		return nil
	}

	target := history[:len(history)-e.cfg.HistoryWindow]

	var b strings.Builder
	for _, m := range target {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", m.CreatedAt.Format(time.RFC3339), m.Role, m.Content)
	}
	prompt := summaryInstruction + "\n\n" + b.String()

	text, err := e.client.Chat(ctx, modelName, "", []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return fmt.Errorf("summarize session %q: %w", session, err)
	}

	saved, err := e.store.ReplaceSessionSummary(ctx, model.ChatSummary{
		Session: session,
		StartID: target[0].ID,
		EndID:   target[len(target)-1].ID,
		Summary: text,
	})
	if err != nil {
		return err
	}

	e.embedText(ctx, model.EmbedChatSummary, saved.ID, session, saved.Summary)
	return nil
}
