package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"), "test-node")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addTurn(t *testing.T, s *Store, session string, role model.Role, content string) *model.ChatMessage {
	t.Helper()
	m, err := model.NewChatMessage(role, content, session, "")
	require.NoError(t, err)
	saved, err := s.AddChat(context.Background(), m)
	require.NoError(t, err)
	return saved
}

func TestAddAndListStatements(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	st, err := model.NewStatement("fact", "likes tea", "")
	require.NoError(t, err)
	saved, err := s.AddStatement(ctx, st)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "test-node", saved.SourceNode, "source_node defaults to the store's node")

	st2, _ := model.NewStatement("backlog", "fix the bike", "")
	s.AddStatement(ctx, st2)

	all, err := s.Statements(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	facts, err := s.Statements(ctx, model.KindFact, "")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "likes tea", facts[0].Text)

	matched, err := s.Statements(ctx, "", "bike")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, model.KindBacklog, matched[0].Kind)
}

func TestChatHistoryOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	addTurn(t, s, "work", model.RoleUser, "first")
	addTurn(t, s, "work", model.RoleAssistant, "second")
	addTurn(t, s, "work", model.RoleUser, "third")
	addTurn(t, s, "other", model.RoleUser, "elsewhere")

	history, err := s.ChatHistory(ctx, "work")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "first", history[0].Content)
	assert.Equal(t, "third", history[2].Content)

	recent, err := s.RecentChat(ctx, "work", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "second", recent[0].Content, "recent window is chronological")
	assert.Equal(t, "third", recent[1].Content)

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "work"}, sessions)
}

func TestReplaceSessionSummary(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := addTurn(t, s, "work", model.RoleUser, "a")
	last := addTurn(t, s, "work", model.RoleAssistant, "b")

	_, err := s.ReplaceSessionSummary(ctx, model.ChatSummary{
		Session: "work", StartID: first.ID, EndID: last.ID, Summary: "- old",
	})
	require.NoError(t, err)

	_, err = s.ReplaceSessionSummary(ctx, model.ChatSummary{
		Session: "work", StartID: first.ID, EndID: last.ID, Summary: "- new",
	})
	require.NoError(t, err)

	// Replace semantics: exactly one row survives
	n, err := s.SessionSummaryCount(ctx, "work")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sum, err := s.SessionSummary(ctx, "work")
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, "- new", sum.Summary)

	none, err := s.SessionSummary(ctx, "idle")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestPutEmbeddingAtMostOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := model.EmbeddingRecord{
		Kind:      model.EmbedChatUser,
		RowID:     "row-1",
		Session:   "work",
		Content:   "hello",
		Embedding: []float32{1, 0},
	}
	require.NoError(t, s.PutEmbedding(ctx, rec))

	// Same (kind, row_id, session) tuple is silently ignored
	rec.Embedding = []float32{0, 1}
	require.NoError(t, s.PutEmbedding(ctx, rec))

	all, err := s.Embeddings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []float32{1, 0}, all[0].Embedding, "the first write wins")

	// Different row id is a new row
	rec.RowID = "row-2"
	require.NoError(t, s.PutEmbedding(ctx, rec))
	all, _ = s.Embeddings(ctx)
	assert.Len(t, all, 2)
}

func TestGlobalSummarySingleton(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	none, err := s.GlobalSummary(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = s.ReplaceGlobalSummary(ctx, "- everything v1")
	require.NoError(t, err)
	_, err = s.ReplaceGlobalSummary(ctx, "- everything v2")
	require.NoError(t, err)

	g, err := s.GlobalSummary(ctx)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "- everything v2", g.Summary)
}

func TestRespondedAtRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m := addTurn(t, s, "work", model.RoleUser, "question")
	assert.Nil(t, m.RespondedAt)

	reply, err := model.NewChatMessage(model.RoleAssistant, "answer", "work", "")
	require.NoError(t, err)
	reply.Model = "test-model"
	now := m.CreatedAt
	reply.RespondedAt = &now
	_, err = s.AddChat(ctx, reply)
	require.NoError(t, err)

	history, err := s.ChatHistory(ctx, "work")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "test-model", history[1].Model)
	require.NotNil(t, history[1].RespondedAt)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	st, _ := model.NewStatement("fact", "likes tea", "")
	s.AddStatement(ctx, st)
	addTurn(t, s, "work", model.RoleUser, "hello")

	require.NoError(t, s.Reset(ctx))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Statements)
	assert.Zero(t, stats.ChatTurns)
}

func TestExportSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	st, _ := model.NewStatement("desire", "learn sailing", "")
	s.AddStatement(ctx, st)
	first := addTurn(t, s, "work", model.RoleUser, "hello")
	addTurn(t, s, "work", model.RoleAssistant, "hi")
	s.ReplaceSessionSummary(ctx, model.ChatSummary{
		Session: "work", StartID: first.ID, EndID: first.ID, Summary: "- greeted",
	})

	snap, err := s.Export(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Statements, 1)
	assert.Len(t, snap.Chat, 2)
	assert.Len(t, snap.Summaries, 1)
	assert.Nil(t, snap.GlobalSummary)
}
