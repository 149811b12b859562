// Package config holds the runtime configuration passed into every core
// component. There is no ambient global state: each Engine, Client and
// Store receives its Config explicitly so tests can run isolated nodes
// with distinct identities in one process.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Config controls the memory core. Zero values are filled by Default.
type Config struct {
	DBPath    string
	OllamaURL string

	Model      string // default chat model
	EmbedModel string
	Session    string // default session name
	NodeName   string // provenance tag written as source_node

	HistoryWindow int // newest turns kept verbatim, excluded from summarization
	TokenBudget   int // heuristic token cap for assembled messages

	RetrievalEnabled  bool
	RetrievalTopK     int
	RetrievalMinScore float64

	RetryAttempts int
	RetryDelay    time.Duration
	KeepAlive     string
	NumCtx        int

	LogRequests bool
}

// Default returns the stock configuration. Retry defaults tolerate a
// multi-minute cold model load (90 attempts x 2s).
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DBPath:            filepath.Join(home, ".mnemo", "memory.db"),
		OllamaURL:         "http://localhost:11434",
		Model:             "llama3.2",
		EmbedModel:        "nomic-embed-text",
		Session:           "default",
		NodeName:          defaultNodeName(),
		HistoryWindow:     5,
		TokenBudget:       2048,
		RetrievalEnabled:  true,
		RetrievalTopK:     3,
		RetrievalMinScore: 0.35,
		RetryAttempts:     90,
		RetryDelay:        2 * time.Second,
		KeepAlive:         "10m",
		NumCtx:            8192,
	}
}

// FromEnv returns Default overridden by MNEMO_* environment variables.
func FromEnv() Config {
	c := Default()
	setStr(&c.DBPath, "MNEMO_DB")
	setStr(&c.OllamaURL, "MNEMO_OLLAMA_URL")
	setStr(&c.Model, "MNEMO_MODEL")
	setStr(&c.EmbedModel, "MNEMO_EMBED_MODEL")
	setStr(&c.Session, "MNEMO_SESSION")
	setStr(&c.NodeName, "MNEMO_NODE")
	setStr(&c.KeepAlive, "MNEMO_KEEP_ALIVE")
	setInt(&c.HistoryWindow, "MNEMO_HISTORY_WINDOW")
	setInt(&c.TokenBudget, "MNEMO_TOKEN_BUDGET")
	setInt(&c.RetrievalTopK, "MNEMO_RAG_TOP_K")
	setInt(&c.RetryAttempts, "MNEMO_RETRY_ATTEMPTS")
	setInt(&c.NumCtx, "MNEMO_NUM_CTX")
	setFloat(&c.RetrievalMinScore, "MNEMO_RAG_MIN_SCORE")
	setBool(&c.RetrievalEnabled, "MNEMO_RAG")
	setBool(&c.LogRequests, "MNEMO_LOG_REQUESTS")
	if v := os.Getenv("MNEMO_RETRY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RetryDelay = d
		}
	}
	return c
}

func defaultNodeName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "node-" + uuid.NewString()[:8]
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
