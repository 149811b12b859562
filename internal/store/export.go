package store

import (
	"context"

	"github.com/mnemo-ai/mnemo/internal/model"
)

// Snapshot is a full dump of the durable record tables, used by the
// export command for backup and inspection.
type Snapshot struct {
	Statements    []model.Statement    `json:"statements"`
	Chat          []model.ChatMessage  `json:"chat"`
	Summaries     []model.ChatSummary  `json:"summaries"`
	GlobalSummary *model.GlobalSummary `json:"global_summary,omitempty"`
}

// Export returns everything except embeddings (vectors are derived data
// and re-created lazily on the importing side).
func (s *Store) Export(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	var err error
	if snap.Statements, err = s.Statements(ctx, "", ""); err != nil {
		return nil, err
	}
	if snap.Chat, err = s.AllChat(ctx); err != nil {
		return nil, err
	}
	if snap.Summaries, err = s.allSummaries(ctx); err != nil {
		return nil, err
	}
	if snap.GlobalSummary, err = s.GlobalSummary(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) allSummaries(ctx context.Context) ([]model.ChatSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session, start_id, end_id, summary, created_at, source_node
		 FROM chat_summaries ORDER BY session`)
	if err != nil {
		return nil, storageErr("list summaries", err)
	}
	defer rows.Close()

	var out []model.ChatSummary
	for rows.Next() {
		var sum model.ChatSummary
		var createdAt string
		if err := rows.Scan(&sum.ID, &sum.Session, &sum.StartID, &sum.EndID, &sum.Summary, &createdAt, &sum.SourceNode); err != nil {
			return nil, storageErr("scan summary", err)
		}
		sum.CreatedAt = parseTime(createdAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}
