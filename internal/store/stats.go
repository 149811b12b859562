package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath      string         `json:"db_path"`
	Node        string         `json:"node"`
	DBSizeBytes int64          `json:"db_size_bytes"`
	Statements  int            `json:"statements"`
	ChatTurns   int            `json:"chat_turns"`
	Summaries   int            `json:"summaries"`
	Embeddings  int            `json:"embeddings"`
	HasGlobal   bool           `json:"has_global_summary"`
	Sessions    []SessionStats `json:"sessions"`
}

// SessionStats holds per-session turn counts.
type SessionStats struct {
	Session string `json:"session"`
	Turns   int    `json:"turns"`
}

// Stats returns database statistics.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path, Node: s.sourceNode}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM statements`).Scan(&st.Statements)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat`).Scan(&st.ChatTurns)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_summaries`).Scan(&st.Summaries)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&st.Embeddings)

	var globals int
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM global_summary`).Scan(&globals)
	st.HasGlobal = globals > 0

	rows, err := s.db.QueryContext(ctx, `
		SELECT session, COUNT(*) as cnt
		FROM chat GROUP BY session ORDER BY cnt DESC`)
	if err != nil {
		return st, storageErr("session stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ss SessionStats
		rows.Scan(&ss.Session, &ss.Turns)
		st.Sessions = append(st.Sessions, ss)
	}

	return st, nil
}
