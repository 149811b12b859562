// Package llm is the retry-wrapped client for the Ollama-style generation
// and embedding backend.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mnemo-ai/mnemo/internal/config"
	"github.com/mnemo-ai/mnemo/internal/embedding"
)

// Message is one chat turn sent to the backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client talks to the generation backend. It holds no mutable state;
// concurrent callers are not serialized here.
type Client struct {
	baseURL     string
	keepAlive   string
	numCtx      int
	attempts    int
	delay       time.Duration
	logRequests bool
	httpClient  *http.Client
	log         *logrus.Logger
}

// NewClient builds a client from config. The HTTP timeout is generous
// because local models can be slow on first request.
func NewClient(cfg config.Config, log *logrus.Logger) *Client {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		baseURL:     cfg.OllamaURL,
		keepAlive:   cfg.KeepAlive,
		numCtx:      cfg.NumCtx,
		attempts:    attempts,
		delay:       cfg.RetryDelay,
		logRequests: cfg.LogRequests,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		log:         log,
	}
}

type chatRequest struct {
	Model     string         `json:"model"`
	Messages  []Message      `json:"messages"`
	Stream    bool           `json:"stream"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason"`
	Error      string `json:"error"`
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error"`
}

// Chat sends a system prompt plus message list and returns the reply text.
// Transport failures, HTTP errors and model-load states are retried with a
// fixed delay up to the configured attempt count; on exhaustion the last
// error is returned.
func (c *Client) Chat(ctx context.Context, model, system string, messages []Message) (string, error) {
	msgs := messages
	if system != "" {
		msgs = append([]Message{{Role: "system", Content: system}}, messages...)
	}
	req := chatRequest{
		Model:     model,
		Messages:  msgs,
		Stream:    false,
		KeepAlive: c.keepAlive,
	}
	if c.numCtx > 0 {
		req.Options = map[string]any{"num_ctx": c.numCtx}
	}

	var out string
	err := c.withRetry(ctx, "chat", func() error {
		var err error
		out, err = c.chatOnce(ctx, req)
		return err
	})
	return out, err
}

func (c *Client) chatOnce(ctx context.Context, req chatRequest) (string, error) {
	var resp chatResponse
	if err := c.post(ctx, "/api/chat", req, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrMalformedResponse, resp.Error)
	}
	if resp.DoneReason == "load" {
		return "", ErrModelLoading
	}
	if resp.Message.Content == "" {
		return "", fmt.Errorf("%w: no message content", ErrMalformedResponse)
	}
	return resp.Message.Content, nil
}

// Embed returns the embedding vector for text, under the same retry policy
// as Chat.
func (c *Client) Embed(ctx context.Context, model, text string) (embedding.Vector, error) {
	req := embedRequest{Model: model, Prompt: text}

	var out embedding.Vector
	err := c.withRetry(ctx, "embed", func() error {
		var resp embedResponse
		if err := c.post(ctx, "/api/embeddings", req, &resp); err != nil {
			return err
		}
		if resp.Error != "" {
			return fmt.Errorf("%w: %s", ErrMalformedResponse, resp.Error)
		}
		if len(resp.Embedding) == 0 {
			return fmt.Errorf("%w: no embedding returned", ErrMalformedResponse)
		}
		out = resp.Embedding
		return nil
	})
	return out, err
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	if c.logRequests {
		c.log.WithFields(logrus.Fields{"path": path, "payload": string(b)}).Debug("backend request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{Status: resp.StatusCode, Body: string(data)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// withRetry runs fn up to c.attempts times with a fixed inter-attempt
// delay. Only retryable errors trigger another attempt; the last error is
// surfaced on exhaustion. The sleep honors ctx cancellation.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
		if attempt == c.attempts {
			break
		}
		c.log.WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"error":   err.Error(),
		}).Warn("backend call failed, retrying")

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(c.delay):
		}
	}
	return lastErr
}
