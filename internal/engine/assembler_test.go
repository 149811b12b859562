package engine

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo/internal/llm"
	"github.com/mnemo-ai/mnemo/internal/model"
)

func TestBuildSystemPromptEmptyStore(t *testing.T) {
	srv := httptest.NewServer(&stubBackend{})
	defer srv.Close()
	e := newTestEngine(t, testConfig(t, srv.URL))

	prompt, err := e.BuildSystemPrompt(context.Background(), "default")
	require.NoError(t, err)

	assert.Contains(t, prompt, `memory node "test-node"`)
	assert.Equal(t, 4, strings.Count(prompt, "- None recorded."),
		"facts, desires, opinions and backlog blocks all render")
	assert.NotContains(t, prompt, "Summary of earlier conversation")
	assert.NotContains(t, prompt, "Recent conversation")
}

func TestBuildSystemPromptWithContent(t *testing.T) {
	srv := httptest.NewServer(&stubBackend{})
	defer srv.Close()
	e := newTestEngine(t, testConfig(t, srv.URL))
	ctx := context.Background()

	_, err := e.Remember(ctx, "fact", "likes tea")
	require.NoError(t, err)
	turns := addTurns(t, e, "work", "hello", "hi there")
	_, err = e.store.ReplaceSessionSummary(ctx, model.ChatSummary{
		Session: "work", StartID: turns[0].ID, EndID: turns[0].ID, Summary: "- greeted politely",
	})
	require.NoError(t, err)

	prompt, err := e.BuildSystemPrompt(ctx, "work")
	require.NoError(t, err)

	assert.Contains(t, prompt, "- likes tea (test-node)")
	assert.Contains(t, prompt, "Summary of earlier conversation:\n- greeted politely")
	assert.Contains(t, prompt, "user: hello")
	assert.Contains(t, prompt, "assistant: hi there")
}

func TestBuildMessagesAppendsNewUserTurnLast(t *testing.T) {
	srv := httptest.NewServer(&stubBackend{})
	defer srv.Close()
	e := newTestEngine(t, testConfig(t, srv.URL))
	ctx := context.Background()

	addTurns(t, e, "work", "q1", "a1", "q2", "a2")

	msgs, err := e.BuildMessages(ctx, "work", "q3", nil)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	assert.Equal(t, "q3", msgs[len(msgs)-1].Content)
	assert.Equal(t, "user", msgs[len(msgs)-1].Role)
}

func TestBuildMessagesDoesNotDuplicatePersistedUserTurn(t *testing.T) {
	// The ask flow persists the user turn before assembly; the assembler
	// must still emit it exactly once, as the final message.
	srv := httptest.NewServer(&stubBackend{})
	defer srv.Close()
	e := newTestEngine(t, testConfig(t, srv.URL))
	ctx := context.Background()

	addTurns(t, e, "work", "q1", "a1", "q2")

	msgs, err := e.BuildMessages(ctx, "work", "q2", nil)
	require.NoError(t, err)

	count := 0
	for _, m := range msgs {
		if m.Content == "q2" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, "q2", msgs[len(msgs)-1].Content)
}

func TestBuildMessagesPrependsRAGContext(t *testing.T) {
	srv := httptest.NewServer(&stubBackend{})
	defer srv.Close()
	e := newTestEngine(t, testConfig(t, srv.URL))

	hits := []Scored{{Kind: model.EmbedStatement, Content: "likes tea", Score: 0.91}}
	msgs, err := e.BuildMessages(context.Background(), "work", "tea?", hits)
	require.NoError(t, err)

	require.NotEmpty(t, msgs)
	assert.Equal(t, "system", msgs[0].Role)
	assert.True(t, strings.HasPrefix(msgs[0].Content, "RAG CONTEXT:\n"))
	assert.Contains(t, msgs[0].Content, "likes tea")
	assert.Contains(t, msgs[0].Content, "0.91")
}

func TestTokenBudgetLaw(t *testing.T) {
	long := strings.Repeat("x", 100) // 25 heuristic tokens

	msgs := []llm.Message{
		{Role: "user", Content: long},
		{Role: "assistant", Content: long},
		{Role: "user", Content: long},
		{Role: "assistant", Content: long},
		{Role: "user", Content: long + "-newest"},
	}

	trimmed := trimToBudget(msgs, 60)
	assert.LessOrEqual(t, totalTokens(trimmed), 60)
	assert.Equal(t, long+"-newest", trimmed[len(trimmed)-1].Content, "oldest are dropped first")

	// A lone over-budget newest message is never dropped.
	trimmed = trimToBudget(msgs, 10)
	require.Len(t, trimmed, 1)
	assert.Equal(t, long+"-newest", trimmed[0].Content)
	assert.Greater(t, totalTokens(trimmed), 10)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("abc"))
	assert.Equal(t, 1, estimateTokens("abcd"))
	assert.Equal(t, 2, estimateTokens("abcde"))
}

func TestBuildMessagesHonorsBudgetEndToEnd(t *testing.T) {
	srv := httptest.NewServer(&stubBackend{})
	defer srv.Close()
	cfg := testConfig(t, srv.URL)
	cfg.TokenBudget = 30
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	long := strings.Repeat("y", 80)
	addTurns(t, e, "work", long, long, long, long)

	msgs, err := e.BuildMessages(ctx, "work", "short question", nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, totalTokens(msgs), 30)
	assert.Equal(t, "short question", msgs[len(msgs)-1].Content)
}
