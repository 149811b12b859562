// Package store provides SQLite persistence for statements, chat turns,
// rolling summaries, embeddings and the merged global summary. The store
// is the only shared mutable resource in the core; every other component
// reads and writes memory through it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/mnemo-ai/mnemo/internal/embedding"
	"github.com/mnemo-ai/mnemo/internal/model"
)

// StorageError wraps any persistence failure with the failing operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error { return &StorageError{Op: op, Err: err} }

// Store is the SQLite-backed memory store for one node.
type Store struct {
	db         *sql.DB
	path       string
	sourceNode string
	mu         sync.Mutex
	entropy    *ulid.MonotonicEntropy
}

// New opens or creates the database at dbPath and ensures the schema.
// sourceNode is stamped onto every row written through this handle.
func New(dbPath, sourceNode string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storageErr("create db dir", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, storageErr("open db", err)
	}

	s := &Store{
		db:         db,
		path:       dbPath,
		sourceNode: sourceNode,
		entropy:    ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, storageErr("migrate", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// SourceNode returns the provenance tag this handle writes.
func (s *Store) SourceNode() string { return s.sourceNode }

// newID returns a monotonic ULID so ids created by this handle sort in
// creation order even within one millisecond.
func (s *Store) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS statements (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		text        TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		source_node TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_statements_kind ON statements(kind);

	CREATE TABLE IF NOT EXISTS chat (
		id           TEXT PRIMARY KEY,
		role         TEXT NOT NULL,
		model        TEXT,
		content      TEXT NOT NULL,
		session      TEXT NOT NULL,
		created_at   TEXT NOT NULL,
		responded_at TEXT,
		source_node  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_session ON chat(session, id);

	CREATE TABLE IF NOT EXISTS chat_summaries (
		id          TEXT PRIMARY KEY,
		session     TEXT NOT NULL,
		start_id    TEXT NOT NULL,
		end_id      TEXT NOT NULL,
		summary     TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		source_node TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_summaries_session ON chat_summaries(session);

	CREATE TABLE IF NOT EXISTS embeddings (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		row_id      TEXT,
		session     TEXT,
		content     TEXT NOT NULL,
		embedding   TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		source_node TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_embeddings_key
		ON embeddings(kind, IFNULL(row_id, ''), IFNULL(session, ''));

	CREATE TABLE IF NOT EXISTS global_summary (
		id          TEXT PRIMARY KEY,
		summary     TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		source_node TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Add responded_at column if missing (upgrade from older schema)
	s.db.Exec(`ALTER TABLE chat ADD COLUMN responded_at TEXT`)

	return nil
}

// --- statements ---

// AddStatement persists a validated statement and returns it with id and
// timestamp filled in.
func (s *Store) AddStatement(ctx context.Context, st model.Statement) (*model.Statement, error) {
	st.ID = s.newID()
	st.CreatedAt = time.Now().UTC()
	if st.SourceNode == "" {
		st.SourceNode = s.sourceNode
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO statements (id, kind, text, created_at, source_node) VALUES (?, ?, ?, ?, ?)`,
		st.ID, string(st.Kind), st.Text, st.CreatedAt.Format(time.RFC3339), st.SourceNode)
	if err != nil {
		return nil, storageErr("insert statement", err)
	}
	return &st, nil
}

// Statements lists statements, oldest first, optionally filtered by kind
// and a substring query.
func (s *Store) Statements(ctx context.Context, kind model.StatementKind, query string) ([]model.Statement, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	if kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(kind))
	}
	if query != "" {
		where = append(where, "text LIKE ?")
		args = append(args, "%"+query+"%")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, text, created_at, source_node FROM statements
		 WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, storageErr("list statements", err)
	}
	defer rows.Close()

	var out []model.Statement
	for rows.Next() {
		var st model.Statement
		var kindStr, createdAt string
		if err := rows.Scan(&st.ID, &kindStr, &st.Text, &createdAt, &st.SourceNode); err != nil {
			return nil, storageErr("scan statement", err)
		}
		st.Kind = model.StatementKind(kindStr)
		st.CreatedAt = parseTime(createdAt)
		out = append(out, st)
	}
	return out, rows.Err()
}

// --- chat ---

// AddChat persists a validated chat turn and returns it with id and
// timestamp filled in.
func (s *Store) AddChat(ctx context.Context, m model.ChatMessage) (*model.ChatMessage, error) {
	m.ID = s.newID()
	m.CreatedAt = time.Now().UTC()
	if m.SourceNode == "" {
		m.SourceNode = s.sourceNode
	}

	var modelPtr, respondedPtr *string
	if m.Model != "" {
		modelPtr = &m.Model
	}
	if m.RespondedAt != nil {
		v := m.RespondedAt.Format(time.RFC3339)
		respondedPtr = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat (id, role, model, content, session, created_at, responded_at, source_node)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, string(m.Role), modelPtr, m.Content, m.Session,
		m.CreatedAt.Format(time.RFC3339), respondedPtr, m.SourceNode)
	if err != nil {
		return nil, storageErr("insert chat", err)
	}
	return &m, nil
}

// ChatHistory returns all turns for a session in creation order.
func (s *Store) ChatHistory(ctx context.Context, session string) ([]model.ChatMessage, error) {
	return s.queryChat(ctx,
		`SELECT id, role, model, content, session, created_at, responded_at, source_node
		 FROM chat WHERE session = ? ORDER BY id`, session)
}

// RecentChat returns the newest n turns of a session in chronological order.
func (s *Store) RecentChat(ctx context.Context, session string, n int) ([]model.ChatMessage, error) {
	msgs, err := s.queryChat(ctx,
		`SELECT id, role, model, content, session, created_at, responded_at, source_node
		 FROM chat WHERE session = ? ORDER BY id DESC LIMIT ?`, session, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// AllChat returns every turn across all sessions ordered by creation time.
func (s *Store) AllChat(ctx context.Context) ([]model.ChatMessage, error) {
	return s.queryChat(ctx,
		`SELECT id, role, model, content, session, created_at, responded_at, source_node
		 FROM chat ORDER BY created_at, id`)
}

// Sessions returns the distinct session names present in the chat table.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT session FROM chat ORDER BY session`)
	if err != nil {
		return nil, storageErr("list sessions", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, storageErr("scan session", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) queryChat(ctx context.Context, query string, args ...interface{}) ([]model.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query chat", err)
	}
	defer rows.Close()

	var out []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		var roleStr, createdAt string
		var modelStr, respondedAt sql.NullString
		if err := rows.Scan(&m.ID, &roleStr, &modelStr, &m.Content, &m.Session, &createdAt, &respondedAt, &m.SourceNode); err != nil {
			return nil, storageErr("scan chat", err)
		}
		m.Role = model.Role(roleStr)
		m.CreatedAt = parseTime(createdAt)
		if modelStr.Valid {
			m.Model = modelStr.String
		}
		if respondedAt.Valid {
			t := parseTime(respondedAt.String)
			m.RespondedAt = &t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- summaries ---

// SessionSummary returns the session's rolling summary, or nil when the
// session has none.
func (s *Store) SessionSummary(ctx context.Context, session string) (*model.ChatSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session, start_id, end_id, summary, created_at, source_node
		 FROM chat_summaries WHERE session = ? ORDER BY created_at DESC LIMIT 1`, session)

	var sum model.ChatSummary
	var createdAt string
	err := row.Scan(&sum.ID, &sum.Session, &sum.StartID, &sum.EndID, &sum.Summary, &createdAt, &sum.SourceNode)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("read summary", err)
	}
	sum.CreatedAt = parseTime(createdAt)
	return &sum, nil
}

// ReplaceSessionSummary atomically deletes every summary row for the
// session and inserts the new one, so no reader observes a gap.
func (s *Store) ReplaceSessionSummary(ctx context.Context, sum model.ChatSummary) (*model.ChatSummary, error) {
	sum.ID = s.newID()
	sum.CreatedAt = time.Now().UTC()
	if sum.SourceNode == "" {
		sum.SourceNode = s.sourceNode
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin summary tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_summaries WHERE session = ?`, sum.Session); err != nil {
		return nil, storageErr("delete old summaries", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO chat_summaries (id, session, start_id, end_id, summary, created_at, source_node)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sum.ID, sum.Session, sum.StartID, sum.EndID, sum.Summary,
		sum.CreatedAt.Format(time.RFC3339), sum.SourceNode)
	if err != nil {
		return nil, storageErr("insert summary", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit summary", err)
	}
	return &sum, nil
}

// SessionSummaryCount returns the number of summary rows for a session.
func (s *Store) SessionSummaryCount(ctx context.Context, session string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_summaries WHERE session = ?`, session).Scan(&n)
	if err != nil {
		return 0, storageErr("count summaries", err)
	}
	return n, nil
}

// --- embeddings ---

// PutEmbedding stores a vector at most once per (kind, row_id, session)
// tuple. Re-inserting the same tuple is a silent no-op.
func (s *Store) PutEmbedding(ctx context.Context, rec model.EmbeddingRecord) error {
	rec.ID = s.newID()
	rec.CreatedAt = time.Now().UTC()
	if rec.SourceNode == "" {
		rec.SourceNode = s.sourceNode
	}

	enc, err := embedding.Encode(rec.Embedding)
	if err != nil {
		return storageErr("encode embedding", err)
	}

	var rowID, session *string
	if rec.RowID != "" {
		rowID = &rec.RowID
	}
	if rec.Session != "" {
		session = &rec.Session
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO embeddings (id, kind, row_id, session, content, embedding, created_at, source_node)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Kind), rowID, session, rec.Content, enc,
		rec.CreatedAt.Format(time.RFC3339), rec.SourceNode)
	if err != nil {
		return storageErr("insert embedding", err)
	}
	return nil
}

// Embeddings returns every stored embedding row. Retrieval is a linear
// scan by design; this is not a vector index.
func (s *Store) Embeddings(ctx context.Context) ([]model.EmbeddingRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, row_id, session, content, embedding, created_at, source_node
		 FROM embeddings ORDER BY id`)
	if err != nil {
		return nil, storageErr("list embeddings", err)
	}
	defer rows.Close()

	var out []model.EmbeddingRecord
	for rows.Next() {
		var rec model.EmbeddingRecord
		var kindStr, enc, createdAt string
		var rowID, session sql.NullString
		if err := rows.Scan(&rec.ID, &kindStr, &rowID, &session, &rec.Content, &enc, &createdAt, &rec.SourceNode); err != nil {
			return nil, storageErr("scan embedding", err)
		}
		rec.Kind = model.EmbedKind(kindStr)
		rec.RowID = rowID.String
		rec.Session = session.String
		rec.CreatedAt = parseTime(createdAt)
		vec, err := embedding.Decode(enc)
		if err != nil {
			return nil, storageErr("decode embedding", err)
		}
		rec.Embedding = vec
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- global summary ---

// ReplaceGlobalSummary replaces the singleton whole-history summary.
func (s *Store) ReplaceGlobalSummary(ctx context.Context, summary string) (*model.GlobalSummary, error) {
	g := model.GlobalSummary{
		ID:         s.newID(),
		Summary:    summary,
		CreatedAt:  time.Now().UTC(),
		SourceNode: s.sourceNode,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin global summary tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM global_summary`); err != nil {
		return nil, storageErr("delete global summary", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO global_summary (id, summary, created_at, source_node) VALUES (?, ?, ?, ?)`,
		g.ID, g.Summary, g.CreatedAt.Format(time.RFC3339), g.SourceNode)
	if err != nil {
		return nil, storageErr("insert global summary", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit global summary", err)
	}
	return &g, nil
}

// GlobalSummary returns the singleton merged-history summary, or nil when
// no merge has produced one yet.
func (s *Store) GlobalSummary(ctx context.Context) (*model.GlobalSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, summary, created_at, source_node FROM global_summary LIMIT 1`)

	var g model.GlobalSummary
	var createdAt string
	err := row.Scan(&g.ID, &g.Summary, &createdAt, &g.SourceNode)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("read global summary", err)
	}
	g.CreatedAt = parseTime(createdAt)
	return &g, nil
}

// Reset deletes every row in every table. This is the only way statements
// are ever removed.
func (s *Store) Reset(ctx context.Context) error {
	for _, table := range []string{"statements", "chat", "chat_summaries", "embeddings", "global_summary"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return storageErr("reset "+table, err)
		}
	}
	return nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}
