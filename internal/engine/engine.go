// Package engine implements the memory core: the ask flow, rolling
// summarization, retrieval-augmented context assembly and the merge
// consolidation driver.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mnemo-ai/mnemo/internal/config"
	"github.com/mnemo-ai/mnemo/internal/llm"
	"github.com/mnemo-ai/mnemo/internal/model"
	"github.com/mnemo-ai/mnemo/internal/store"
)

// ErrInvalidRequest is returned for bad caller input such as a blank prompt.
var ErrInvalidRequest = errors.New("invalid request")

// AskError wraps any backend or storage failure on the primary ask path
// with the session it happened in.
type AskError struct {
	Session string
	Err     error
}

func (e *AskError) Error() string { return fmt.Sprintf("ask failed (session %q): %v", e.Session, e.Err) }
func (e *AskError) Unwrap() error { return e.Err }

// Engine ties the store, the generation client and the configuration
// together. Concurrent asks against the same session are serialized by a
// per-session mutex; different sessions proceed independently.
type Engine struct {
	cfg    config.Config
	store  *store.Store
	client *llm.Client
	log    *logrus.Logger

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

// New builds an engine over an open store and client.
func New(cfg config.Config, st *store.Store, client *llm.Client, log *logrus.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    st,
		client:   client,
		log:      log,
		sessions: make(map[string]*sync.Mutex),
	}
}

// Store exposes the underlying store for the CLI surface.
func (e *Engine) Store() *store.Store { return e.store }

func (e *Engine) sessionLock(session string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.sessions[session]
	if !ok {
		l = &sync.Mutex{}
		e.sessions[session] = l
	}
	return l
}

// Remember validates and persists a durable statement, then embeds it
// best-effort.
func (e *Engine) Remember(ctx context.Context, kind, text string) (*model.Statement, error) {
	st, err := model.NewStatement(kind, text, e.cfg.NodeName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	saved, err := e.store.AddStatement(ctx, st)
	if err != nil {
		return nil, err
	}
	e.embedText(ctx, model.EmbedStatement, saved.ID, "", saved.Text)
	return saved, nil
}

// Ask persists the user turn, ensures the session summary, assembles the
// bounded context, calls the backend and persists the assistant turn.
// A failure after the user turn is written leaves that turn in place.
func (e *Engine) Ask(ctx context.Context, prompt, modelName, session string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	if modelName == "" {
		modelName = e.cfg.Model
	}
	if session == "" {
		session = e.cfg.Session
	}

	lock := e.sessionLock(session)
	lock.Lock()
	defer lock.Unlock()

	userMsg, err := model.NewChatMessage(model.RoleUser, prompt, session, e.cfg.NodeName)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	savedUser, err := e.store.AddChat(ctx, userMsg)
	if err != nil {
		return "", &AskError{Session: session, Err: err}
	}
	e.embedText(ctx, model.EmbedChatUser, savedUser.ID, session, savedUser.Content)

	if err := e.EnsureSummary(ctx, session, modelName); err != nil {
		return "", &AskError{Session: session, Err: err}
	}

	rag := e.Retrieve(ctx, prompt)

	system, err := e.BuildSystemPrompt(ctx, session)
	if err != nil {
		return "", &AskError{Session: session, Err: err}
	}
	messages, err := e.BuildMessages(ctx, session, prompt, rag)
	if err != nil {
		return "", &AskError{Session: session, Err: err}
	}

	answer, err := e.client.Chat(ctx, modelName, system, messages)
	if err != nil {
		return "", &AskError{Session: session, Err: err}
	}

	now := time.Now().UTC()
	assistantMsg, err := model.NewChatMessage(model.RoleAssistant, answer, session, e.cfg.NodeName)
	if err != nil {
		return "", &AskError{Session: session, Err: err}
	}
	assistantMsg.Model = modelName
	assistantMsg.RespondedAt = &now

	savedAssistant, err := e.store.AddChat(ctx, assistantMsg)
	if err != nil {
		return "", &AskError{Session: session, Err: err}
	}
	e.embedText(ctx, model.EmbedChatAssistant, savedAssistant.ID, session, savedAssistant.Content)

	if err := e.EnsureSummary(ctx, session, modelName); err != nil {
		return "", &AskError{Session: session, Err: err}
	}

	return answer, nil
}
