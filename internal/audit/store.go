// Package audit implements the operation history log described in
// SPEC_FULL.md §10: a small embedded-SQLite append-only trail of
// dispatched operations, plus the ContextSave listing it enables. It is pure
// ambient tooling — every SPEC_FULL.md invariant holds with a nil *Store.
package audit

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a single SQLite database file holding the operation log and
// the context-save index, grounded in the teacher's store.Open/migrate
// embed.FS migration runner.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at dsn and applies
// any migrations not yet recorded in schema_migrations.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}

// OperationRow is one row of the operation history log.
type OperationRow struct {
	ID        int64
	ThreadID  string
	Operation string
	Summary   string
	Outcome   string
	Seq       int64
	LoggedAt  time.Time
}

// AppendOperation records one dispatched operation. summary must never
// contain full file contents or command output — a short description
// (command text, file path, or context id) only.
func (s *Store) AppendOperation(threadID, operation, summary, outcome string, seq int64) error {
	_, err := s.db.Exec(
		"INSERT INTO operation_log (thread_id, operation, summary, outcome, seq) VALUES (?, ?, ?, ?, ?)",
		threadID, operation, summary, outcome, seq,
	)
	if err != nil {
		return fmt.Errorf("append operation: %w", err)
	}
	return nil
}

// ListOperations returns threadID's operation history, oldest first.
func (s *Store) ListOperations(threadID string) ([]OperationRow, error) {
	rows, err := s.db.Query(`SELECT id, thread_id, operation, summary, outcome, seq, logged_at
		FROM operation_log WHERE thread_id = ? ORDER BY seq`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()
	var out []OperationRow
	for rows.Next() {
		var r OperationRow
		if err := rows.Scan(&r.ID, &r.ThreadID, &r.Operation, &r.Summary, &r.Outcome, &r.Seq, &r.LoggedAt); err != nil {
			return nil, fmt.Errorf("scan operation row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ContextSaveRow is one ContextSave record.
type ContextSaveRow struct {
	ID              string
	ThreadID        string
	ProjectRootPath string
	Description     string
	RelevantGlobs   string
	SavedPath       string
	SavedAt         time.Time
}

// RecordContextSave indexes a ContextSave write so a later session can list
// prior saved contexts for a project root (SPEC_FULL.md §6).
func (s *Store) RecordContextSave(id, threadID, projectRoot, description, globsCSV, savedPath string) error {
	_, err := s.db.Exec(
		`INSERT INTO context_saves (id, thread_id, project_root_path, description, relevant_globs, saved_path)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET description=excluded.description, relevant_globs=excluded.relevant_globs,
			saved_path=excluded.saved_path, saved_at=CURRENT_TIMESTAMP`,
		id, threadID, projectRoot, description, globsCSV, savedPath,
	)
	if err != nil {
		return fmt.Errorf("record context save: %w", err)
	}
	return nil
}

// ListContextSaves returns every saved context for projectRoot, newest first.
func (s *Store) ListContextSaves(projectRoot string) ([]ContextSaveRow, error) {
	rows, err := s.db.Query(`SELECT id, thread_id, project_root_path, description, relevant_globs, saved_path, saved_at
		FROM context_saves WHERE project_root_path = ? ORDER BY saved_at DESC`, projectRoot)
	if err != nil {
		return nil, fmt.Errorf("list context saves: %w", err)
	}
	defer rows.Close()
	var out []ContextSaveRow
	for rows.Next() {
		var r ContextSaveRow
		if err := rows.Scan(&r.ID, &r.ThreadID, &r.ProjectRootPath, &r.Description, &r.RelevantGlobs, &r.SavedPath, &r.SavedAt); err != nil {
			return nil, fmt.Errorf("scan context save row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
