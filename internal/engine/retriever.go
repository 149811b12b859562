package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mnemo-ai/mnemo/internal/embedding"
	"github.com/mnemo-ai/mnemo/internal/model"
)

// Scored is one retrieval hit.
type Scored struct {
	Kind    model.EmbedKind `json:"kind"`
	RowID   string          `json:"row_id,omitempty"`
	Session string          `json:"session,omitempty"`
	Content string          `json:"content"`
	Score   float64         `json:"score"`
}

// Retrieve embeds the query and linearly scans every stored embedding,
// returning the top-K hits at or above the configured minimum score,
// highest first. Retrieval is best-effort context: any failure degrades
// to an empty result and never aborts the caller.
func (e *Engine) Retrieve(ctx context.Context, query string) []Scored {
	if !e.cfg.RetrievalEnabled || strings.TrimSpace(query) == "" {
		return nil
	}

	queryVec, err := e.client.Embed(ctx, e.cfg.EmbedModel, query)
	if err != nil {
		e.log.WithError(err).Warn("retrieval disabled for this ask: query embedding failed")
		return nil
	}

	recs, err := e.store.Embeddings(ctx)
	if err != nil {
		e.log.WithError(err).Warn("retrieval disabled for this ask: embedding scan failed")
		return nil
	}

	var hits []Scored
	for _, rec := range recs {
		score := embedding.CosineSimilarity(queryVec, rec.Embedding)
		if score < e.cfg.RetrievalMinScore {
			continue
		}
		hits = append(hits, Scored{
			Kind:    rec.Kind,
			RowID:   rec.RowID,
			Session: rec.Session,
			Content: rec.Content,
			Score:   score,
		})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > e.cfg.RetrievalTopK {
		hits = hits[:e.cfg.RetrievalTopK]
	}
	return hits
}

// embedText opportunistically embeds and stores one record's text,
// at most once per (kind, rowID, session). Failures are logged and
// swallowed so the primary write path never blocks on embeddings.
func (e *Engine) embedText(ctx context.Context, kind model.EmbedKind, rowID, session, content string) {
	if !e.cfg.RetrievalEnabled {
		return
	}
	vec, err := e.client.Embed(ctx, e.cfg.EmbedModel, content)
	if err != nil {
		e.log.WithFields(logrus.Fields{"kind": kind, "row_id": rowID}).
			WithError(err).Warn("embedding skipped")
		return
	}
	err = e.store.PutEmbedding(ctx, model.EmbeddingRecord{
		Kind:      kind,
		RowID:     rowID,
		Session:   session,
		Content:   content,
		Embedding: vec,
	})
	if err != nil {
		e.log.WithFields(logrus.Fields{"kind": kind, "row_id": rowID}).
			WithError(err).Warn("embedding write failed")
	}
}
