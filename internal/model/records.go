// Package model defines the persisted record types and their invariants.
package model

import (
	"fmt"
	"strings"
	"time"
)

// StatementKind classifies a durable user statement.
type StatementKind string

const (
	KindFact    StatementKind = "fact"
	KindDesire  StatementKind = "desire"
	KindOpinion StatementKind = "opinion"
	KindBacklog StatementKind = "backlog"
)

// StatementKinds lists all valid kinds in display order.
var StatementKinds = []StatementKind{KindFact, KindDesire, KindOpinion, KindBacklog}

// ParseStatementKind validates a kind string.
func ParseStatementKind(s string) (StatementKind, error) {
	k := StatementKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindFact, KindDesire, KindOpinion, KindBacklog:
		return k, nil
	}
	return "", fmt.Errorf("invalid statement kind %q (use fact, desire, opinion or backlog)", s)
}

// Statement is a durable user statement. Statements are never mutated and
// never deleted except by a full store reset.
type Statement struct {
	ID         string        `json:"id"`
	Kind       StatementKind `json:"kind"`
	Text       string        `json:"text"`
	CreatedAt  time.Time     `json:"created_at"`
	SourceNode string        `json:"source_node"`
}

// NewStatement builds a validated statement. Text is trimmed and must be
// non-blank.
func NewStatement(kind, text, sourceNode string) (Statement, error) {
	k, err := ParseStatementKind(kind)
	if err != nil {
		return Statement{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Statement{}, fmt.Errorf("statement text is required")
	}
	return Statement{Kind: k, Text: text, SourceNode: sourceNode}, nil
}

// Role identifies who produced a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one persisted conversation turn. The user row is written
// before the backend call; the assistant row is written after generation
// succeeds, with RespondedAt set.
type ChatMessage struct {
	ID          string     `json:"id"`
	Role        Role       `json:"role"`
	Model       string     `json:"model,omitempty"`
	Content     string     `json:"content"`
	Session     string     `json:"session"`
	CreatedAt   time.Time  `json:"created_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	SourceNode  string     `json:"source_node"`
}

// NewChatMessage builds a validated chat turn.
func NewChatMessage(role Role, content, session, sourceNode string) (ChatMessage, error) {
	if role != RoleUser && role != RoleAssistant {
		return ChatMessage{}, fmt.Errorf("invalid chat role %q", role)
	}
	if strings.TrimSpace(content) == "" {
		return ChatMessage{}, fmt.Errorf("chat content is required")
	}
	if session == "" {
		return ChatMessage{}, fmt.Errorf("chat session is required")
	}
	return ChatMessage{Role: role, Content: content, Session: session, SourceNode: sourceNode}, nil
}

// ChatSummary is the rolling summary of a session's older history. At most
// one row per session is authoritative at a time; StartID/EndID span the
// contiguous id range of the summarized turns.
type ChatSummary struct {
	ID         string    `json:"id"`
	Session    string    `json:"session"`
	StartID    string    `json:"start_id"`
	EndID      string    `json:"end_id"`
	Summary    string    `json:"summary"`
	CreatedAt  time.Time `json:"created_at"`
	SourceNode string    `json:"source_node"`
}

// EmbedKind tags what an embedding row indexes.
type EmbedKind string

const (
	EmbedStatement     EmbedKind = "statement"
	EmbedChatUser      EmbedKind = "chat_user"
	EmbedChatAssistant EmbedKind = "chat_assistant"
	EmbedChatSummary   EmbedKind = "chat_summary"
)

// EmbeddingRecord stores one vector alongside the text it indexes. At most
// one row exists per (kind, row_id, session) tuple.
type EmbeddingRecord struct {
	ID         string    `json:"id"`
	Kind       EmbedKind `json:"kind"`
	RowID      string    `json:"row_id,omitempty"`
	Session    string    `json:"session,omitempty"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding"`
	CreatedAt  time.Time `json:"created_at"`
	SourceNode string    `json:"source_node"`
}

// GlobalSummary is the singleton whole-history summary produced by merge
// consolidation.
type GlobalSummary struct {
	ID         string    `json:"id"`
	Summary    string    `json:"summary"`
	CreatedAt  time.Time `json:"created_at"`
	SourceNode string    `json:"source_node"`
}
