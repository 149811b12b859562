package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mnemo-ai/mnemo/internal/llm"
	"github.com/mnemo-ai/mnemo/internal/model"
)

var kindHeadings = []struct {
	kind    model.StatementKind
	heading string
}{
	{model.KindFact, "Known facts"},
	{model.KindDesire, "Desires"},
	{model.KindOpinion, "Opinions"},
	{model.KindBacklog, "Backlog"},
}

// BuildSystemPrompt renders the node identity, the statement blocks, the
// session's rolling summary and the recent conversation window. It is a
// pure function of stored state at call time.
func (e *Engine) BuildSystemPrompt(ctx context.Context, session string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a personal assistant running on memory node %q.\n", e.cfg.NodeName)

	for _, kh := range kindHeadings {
		stmts, err := e.store.Statements(ctx, kh.kind, "")
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "\n%s:\n", kh.heading)
		if len(stmts) == 0 {
			b.WriteString("- None recorded.\n")
			continue
		}
		for _, st := range stmts {
			fmt.Fprintf(&b, "- %s (%s)\n", st.Text, st.SourceNode)
		}
	}

	summary, err := e.store.SessionSummary(ctx, session)
	if err != nil {
		return "", err
	}
	if summary != nil {
		b.WriteString("\nSummary of earlier conversation:\n")
		b.WriteString(summary.Summary)
		b.WriteString("\n")
	}

	recent, err := e.store.RecentChat(ctx, session, e.cfg.HistoryWindow)
	if err != nil {
		return "", err
	}
	if len(recent) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, m := range recent {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", m.CreatedAt.Format(time.RFC3339), m.Role, m.Content)
		}
	}

	return b.String(), nil
}

// BuildMessages assembles the bounded message list: the recent window of
// persisted turns, an optional synthetic system message carrying the
// retrieval hits, and the new user turn last. The list is then trimmed
// oldest-first to the token budget; the newest user turn is never dropped.
func (e *Engine) BuildMessages(ctx context.Context, session, newUserText string, rag []Scored) ([]llm.Message, error) {
	recent, err := e.store.RecentChat(ctx, session, e.cfg.HistoryWindow)
	if err != nil {
		return nil, err
	}
	// The ask flow persists the user turn before assembly; keep it out of
	// the window so it appears exactly once, as the final message.
	if n := len(recent); n > 0 && recent[n-1].Role == model.RoleUser && recent[n-1].Content == newUserText {
		recent = recent[:n-1]
	}

	var messages []llm.Message
	if len(rag) > 0 {
		messages = append(messages, llm.Message{Role: "system", Content: formatRAG(rag)})
	}
	for _, m := range recent {
		messages = append(messages, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: newUserText})

	return trimToBudget(messages, e.cfg.TokenBudget), nil
}

func formatRAG(hits []Scored) string {
	var b strings.Builder
	b.WriteString("RAG CONTEXT:\n")
	for _, h := range hits {
		fmt.Fprintf(&b, "- [%s] %s (score %.2f)\n", h.Kind, h.Content, h.Score)
	}
	return b.String()
}

// estimateTokens is a cheap length heuristic: one token per four
// characters, rounded up. Exact tokenization is out of scope.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

func totalTokens(messages []llm.Message) int {
	sum := 0
	for _, m := range messages {
		sum += estimateTokens(m.Content)
	}
	return sum
}

// trimToBudget drops the oldest message until the heuristic token sum fits
// the budget or only the newest message remains.
func trimToBudget(messages []llm.Message, budget int) []llm.Message {
	for len(messages) > 1 && totalTokens(messages) > budget {
		messages = messages[1:]
	}
	return messages
}
