package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcliao/sofie/internal/liveness"
	"github.com/rcliao/sofie/internal/model"
)

// SQLiteBackend implements Backend and LivenessBackend using SQLite.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// NewSQLiteBackend opens or creates a SQLite database at the given path.
// ":memory:" opens a private in-memory database.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	dsn := ":memory:"
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		dsn = dbPath + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	b := &SQLiteBackend{db: db, path: dbPath}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return b, nil
}

// Path returns the database path.
func (b *SQLiteBackend) Path() string {
	return b.path
}

func (b *SQLiteBackend) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id           TEXT PRIMARY KEY,
		seq          INTEGER NOT NULL,
		kind         TEXT NOT NULL,
		content      TEXT NOT NULL,
		chamber      INTEGER NOT NULL DEFAULT 0,
		tone         TEXT,
		significance REAL NOT NULL,
		created_at   TEXT NOT NULL,
		metadata     TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_memories_seq ON memories(seq);
	CREATE INDEX IF NOT EXISTS idx_memories_kind ON memories(kind);

	CREATE TABLE IF NOT EXISTS liveness (
		id              INTEGER PRIMARY KEY CHECK (id = 1),
		active          INTEGER NOT NULL,
		last_checkin    TEXT,
		validated_count INTEGER NOT NULL,
		window_days     REAL NOT NULL
	);
	`
	_, err := b.db.Exec(schema)
	return err
}

// LoadAll returns every stored memory in insertion order.
func (b *SQLiteBackend) LoadAll(ctx context.Context) ([]model.Memory, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, kind, content, chamber, tone, significance, created_at, metadata
		 FROM memories ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var memories []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return memories, nil
}

// SaveAll replaces the stored memories with records in one transaction.
func (b *SQLiteBackend) SaveAll(ctx context.Context, records []model.Memory) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memories`); err != nil {
		return fmt.Errorf("clear memories: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO memories (id, seq, kind, content, chamber, tone, significance, created_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range records {
		var tone *string
		if m.Tone != "" {
			tone = &m.Tone
		}
		var meta *string
		if len(m.Metadata) > 0 {
			raw, err := json.Marshal(m.Metadata)
			if err != nil {
				return fmt.Errorf("encode metadata: %w", err)
			}
			s := string(raw)
			meta = &s
		}
		_, err := stmt.ExecContext(ctx, m.ID, i, string(m.Kind), m.Content, m.Chamber, tone,
			m.Significance, m.CreatedAt.UTC().Format(time.RFC3339Nano), meta)
		if err != nil {
			return fmt.Errorf("insert memory: %w", err)
		}
	}

	return tx.Commit()
}

// LoadLiveness returns the saved liveness state.
func (b *SQLiteBackend) LoadLiveness(ctx context.Context) (liveness.State, bool, error) {
	var st liveness.State
	var active int
	var lastCheckin sql.NullString
	err := b.db.QueryRowContext(ctx,
		`SELECT active, last_checkin, validated_count, window_days FROM liveness WHERE id = 1`).
		Scan(&active, &lastCheckin, &st.ValidatedCount, &st.WindowDays)
	if errors.Is(err, sql.ErrNoRows) {
		return st, false, nil
	}
	if err != nil {
		return st, false, fmt.Errorf("query liveness: %w", err)
	}
	st.Active = active != 0
	if lastCheckin.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastCheckin.String)
		if err != nil {
			return st, false, fmt.Errorf("parse last_checkin: %w", err)
		}
		st.LastCheckin = &t
	}
	return st, true, nil
}

// SaveLiveness overwrites the saved liveness state.
func (b *SQLiteBackend) SaveLiveness(ctx context.Context, st liveness.State) error {
	var last *string
	if st.LastCheckin != nil {
		s := st.LastCheckin.UTC().Format(time.RFC3339Nano)
		last = &s
	}
	active := 0
	if st.Active {
		active = 1
	}
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO liveness (id, active, last_checkin, validated_count, window_days)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   active = excluded.active,
		   last_checkin = excluded.last_checkin,
		   validated_count = excluded.validated_count,
		   window_days = excluded.window_days`,
		active, last, st.ValidatedCount, st.WindowDays)
	if err != nil {
		return fmt.Errorf("save liveness: %w", err)
	}
	return nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (model.Memory, error) {
	var m model.Memory
	var kind, createdAt string
	var tone, meta sql.NullString

	err := row.Scan(&m.ID, &kind, &m.Content, &m.Chamber, &tone, &m.Significance, &createdAt, &meta)
	if err != nil {
		return m, fmt.Errorf("scan memory: %w", err)
	}

	m.Kind = model.Kind(kind)
	m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return m, fmt.Errorf("parse created_at for %s: %w", m.ID, err)
	}
	if tone.Valid {
		m.Tone = tone.String
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &m.Metadata); err != nil {
			return m, fmt.Errorf("decode metadata for %s: %w", m.ID, err)
		}
	}
	return m, nil
}
