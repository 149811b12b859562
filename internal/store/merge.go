package store

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrInvalidMergePath is returned when a merge destination collides with a
// source path, or a source database does not exist.
var ErrInvalidMergePath = errors.New("invalid merge path")

// MergeStores creates a brand-new store at dest and unions the contents of
// a then b into it, deduplicating by content identity. A pre-existing
// destination is deleted first: this is a destructive create, never an
// update-in-place. Source stores are only ever read.
func MergeStores(ctx context.Context, dest, a, b, sourceNode string) (*Store, error) {
	if dest == a || dest == b {
		return nil, fmt.Errorf("%w: destination %q collides with a source", ErrInvalidMergePath, dest)
	}
	for _, src := range []string{a, b} {
		if _, err := os.Stat(src); err != nil {
			return nil, fmt.Errorf("%w: source %q: %v", ErrInvalidMergePath, src, err)
		}
	}

	// Drop any stale destination, including WAL leftovers.
	for _, suffix := range []string{"", "-wal", "-shm"} {
		os.Remove(dest + suffix)
	}

	s, err := New(dest, sourceNode)
	if err != nil {
		return nil, err
	}

	for _, src := range []string{a, b} {
		if err := s.MergeFrom(ctx, src); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// MergeFrom attaches the database at srcPath and folds its statements,
// chat and chat_summaries tables into this store. Each table is one
// set-based insert of the rows whose dedup tuple is not already present.
// Ids are synthetic and not part of any dedup key; they ride along only
// because ULIDs are unique across replicas.
func (s *Store) MergeFrom(ctx context.Context, srcPath string) error {
	if _, err := os.Stat(srcPath); err != nil {
		return fmt.Errorf("%w: source %q: %v", ErrInvalidMergePath, srcPath, err)
	}

	if _, err := s.db.ExecContext(ctx, `ATTACH DATABASE ? AS src`, srcPath); err != nil {
		return storageErr("attach source", err)
	}
	defer s.db.ExecContext(ctx, `DETACH DATABASE src`)

	// Dedup key: (kind, text, created_at, source_node).
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO statements (id, kind, text, created_at, source_node)
		SELECT r.id, r.kind, r.text, r.created_at, r.source_node
		FROM src.statements r
		WHERE NOT EXISTS (
			SELECT 1 FROM statements d
			WHERE d.kind = r.kind AND d.text = r.text
			  AND d.created_at = r.created_at AND d.source_node = r.source_node
		)`)
	if err != nil {
		return storageErr("merge statements", err)
	}

	// Dedup key: (role, model, content, session, created_at, responded_at,
	// source_node) with NULLs coalesced to empty strings.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat (id, role, model, content, session, created_at, responded_at, source_node)
		SELECT r.id, r.role, r.model, r.content, r.session, r.created_at, r.responded_at, r.source_node
		FROM src.chat r
		WHERE NOT EXISTS (
			SELECT 1 FROM chat d
			WHERE d.role = r.role
			  AND IFNULL(d.model, '') = IFNULL(r.model, '')
			  AND d.content = r.content
			  AND d.session = r.session
			  AND d.created_at = r.created_at
			  AND IFNULL(d.responded_at, '') = IFNULL(r.responded_at, '')
			  AND d.source_node = r.source_node
		)`)
	if err != nil {
		return storageErr("merge chat", err)
	}

	// Dedup key: (session, start_id, end_id, summary, source_node).
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_summaries (id, session, start_id, end_id, summary, created_at, source_node)
		SELECT r.id, r.session, r.start_id, r.end_id, r.summary, r.created_at, r.source_node
		FROM src.chat_summaries r
		WHERE NOT EXISTS (
			SELECT 1 FROM chat_summaries d
			WHERE d.session = r.session
			  AND d.start_id = r.start_id AND d.end_id = r.end_id
			  AND d.summary = r.summary AND d.source_node = r.source_node
		)`)
	if err != nil {
		return storageErr("merge summaries", err)
	}

	return nil
}
