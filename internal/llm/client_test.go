package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo/internal/config"
)

func testClient(t *testing.T, url string, attempts int) *Client {
	t.Helper()
	cfg := config.Default()
	cfg.OllamaURL = url
	cfg.RetryAttempts = attempts
	cfg.RetryDelay = time.Millisecond
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewClient(cfg, log)
}

func chatReply(w http.ResponseWriter, content string) {
	json.NewEncoder(w).Encode(map[string]any{
		"message": map[string]any{"role": "assistant", "content": content},
		"done":    true,
	})
}

func TestChat(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		chatReply(w, "hello there")
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 1)
	out, err := c.Chat(context.Background(), "test-model", "be terse", []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)

	assert.Equal(t, "test-model", gotBody["model"])
	assert.Equal(t, false, gotBody["stream"])
	msgs := gotBody["messages"].([]any)
	require.Len(t, msgs, 2, "system prompt should be prepended")
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestChatRetryExhaustionSurfacesModelLoading(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"done": true, "done_reason": "load"})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 4)
	_, err := c.Chat(context.Background(), "m", "", []Message{{Role: "user", Content: "hi"}})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelLoading, "the last error must be surfaced, not a generic failure")
	assert.Equal(t, int64(4), calls.Load(), "exactly the configured attempt count")
}

func TestChatRecoversAfterHTTPError(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
			return
		}
		chatReply(w, "recovered")
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 3)
	out, err := c.Chat(context.Background(), "m", "", []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, int64(2), calls.Load())
}

func TestChatHTTPErrorExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 2)
	_, err := c.Chat(context.Background(), "m", "", []Message{{Role: "user", Content: "hi"}})

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.Status)
}

func TestChatMalformedResponseNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"done": true})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 5)
	_, err := c.Chat(context.Background(), "m", "", []Message{{Role: "user", Content: "hi"}})

	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, int64(1), calls.Load(), "malformed responses are not retryable")
}

func TestChatBackendUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening any more

	c := testClient(t, srv.URL, 2)
	_, err := c.Chat(context.Background(), "m", "", []Message{{Role: "user", Content: "hi"}})
	assert.ErrorIs(t, err, ErrBackendUnreachable)
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "embed-model", body["model"])
		assert.Equal(t, "some text", body["prompt"])
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2}})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 1)
	vec, err := c.Embed(context.Background(), "embed-model", "some text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}

func TestEmbedEmptyVectorIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{}})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 3)
	_, err := c.Embed(context.Background(), "m", "text")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestRetrySleepHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"done": true, "done_reason": "load"})
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.OllamaURL = srv.URL
	cfg.RetryAttempts = 1000
	cfg.RetryDelay = time.Hour
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	c := NewClient(cfg, log)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Chat(ctx, "m", "", []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelLoading), "last error surfaces even on cancellation")
	assert.Less(t, time.Since(start), time.Second)
}
