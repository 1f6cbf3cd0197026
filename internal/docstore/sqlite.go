package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteEngine is the persistent store engine. Documents live in a single
// keyed table so range scans map directly onto the primary key index.
type SQLiteEngine struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the sqlite-backed store at
// dataDir/name.db and runs pending migrations.
func OpenSQLite(dataDir, name string) (*SQLiteEngine, error) {
	path := filepath.Join(dataDir, name+".db")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(path); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteEngine{db: db, path: path}, nil
}

// probe verifies the engine actually works; some sqlite failures only
// surface on the first real statement.
func (s *SQLiteEngine) probe(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return fmt.Errorf("probe documents table: %w", err)
	}
	return nil
}

func (s *SQLiteEngine) Name() string { return "sqlite" }

func (s *SQLiteEngine) Get(ctx context.Context, id string) (Document, error) {
	var doc Document
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, rev, body FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Rev, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	doc.Body = []byte(body)
	return doc, nil
}

func (s *SQLiteEngine) Put(ctx context.Context, doc Document) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin put: %w", err)
	}
	defer tx.Rollback()

	rev, err := putInTx(ctx, tx, doc)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit put: %w", err)
	}
	return rev, nil
}

func putInTx(ctx context.Context, tx *sql.Tx, doc Document) (string, error) {
	var currentRev string
	err := tx.QueryRowContext(ctx,
		`SELECT rev FROM documents WHERE id = ?`, doc.ID,
	).Scan(&currentRev)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if doc.Rev != "" {
			return "", ErrConflict
		}
	case err != nil:
		return "", fmt.Errorf("read current revision of %s: %w", doc.ID, err)
	default:
		if currentRev != doc.Rev {
			return "", ErrConflict
		}
	}

	rev := nextRev(doc.Rev)
	body, err := withRev(doc.Body, doc.ID, rev)
	if err != nil {
		return "", err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, rev, body) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET rev = excluded.rev, body = excluded.body`,
		doc.ID, rev, string(body),
	)
	if err != nil {
		return "", fmt.Errorf("write document %s: %w", doc.ID, err)
	}
	return rev, nil
}

func (s *SQLiteEngine) Remove(ctx context.Context, doc Document) error {
	var currentRev string
	err := s.db.QueryRowContext(ctx,
		`SELECT rev FROM documents WHERE id = ?`, doc.ID,
	).Scan(&currentRev)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read current revision of %s: %w", doc.ID, err)
	}
	if currentRev != doc.Rev {
		return ErrConflict
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, doc.ID); err != nil {
		return fmt.Errorf("remove document %s: %w", doc.ID, err)
	}
	return nil
}

// BulkWrite applies each write independently so one conflict never aborts
// the batch. Outcomes come back in input order.
func (s *SQLiteEngine) BulkWrite(ctx context.Context, docs []Document) []WriteResult {
	results := make([]WriteResult, 0, len(docs))
	for _, doc := range docs {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			results = append(results, WriteResult{ID: doc.ID, Err: fmt.Errorf("begin bulk write: %w", err)})
			continue
		}
		rev, err := putInTx(ctx, tx, doc)
		if err != nil {
			tx.Rollback()
			results = append(results, WriteResult{ID: doc.ID, Err: err})
			continue
		}
		if err := tx.Commit(); err != nil {
			results = append(results, WriteResult{ID: doc.ID, Err: fmt.Errorf("commit bulk write: %w", err)})
			continue
		}
		results = append(results, WriteResult{ID: doc.ID, Rev: rev})
	}
	return results
}

func (s *SQLiteEngine) RangeScan(ctx context.Context, startKey, endKey string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rev, body FROM documents WHERE id >= ? AND id <= ? ORDER BY id ASC`,
		startKey, endKey,
	)
	if err != nil {
		return nil, fmt.Errorf("range scan [%s, %s]: %w", startKey, endKey, err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *SQLiteEngine) AllDocs(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rev, body FROM documents ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("scan all documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	var out []Document
	for rows.Next() {
		var doc Document
		var body string
		if err := rows.Scan(&doc.ID, &doc.Rev, &body); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		doc.Body = []byte(body)
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

// Destroy drops every document. The engine stays open and usable, which is
// what the import flow relies on when it replaces the store wholesale.
func (s *SQLiteEngine) Destroy(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("destroy documents: %w", err)
	}
	return nil
}

func (s *SQLiteEngine) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
