package interaction

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markhodierne/curriculum-agent/core"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists interactions in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the interactions database in dataDir and runs
// pending migrations. Pass ":memory:" as dataDir for an in-memory
// database (used by tests).
func Open(dataDir string) (*SQLiteStore, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "interactions.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection avoids "database is locked" under concurrent
	// writers; the busy timeout makes waiters back off instead of failing.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// Create inserts a new interaction in the Created state and returns its id.
func (s *SQLiteStore) Create(ctx context.Context, draft core.Draft) (string, error) {
	id := uuid.New().String()
	createdAt := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, created_at, query, model, temperature, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, createdAt.Format(time.RFC3339), draft.Query, draft.Model, draft.Temperature,
		string(core.StatusCreated),
	)
	if err != nil {
		return "", &core.StorageError{Op: "create interaction", Err: err}
	}
	return id, nil
}

// Update writes the completion payload. Re-applying the same payload is a
// no-op observable-state-wise: the same values are written again and the
// status CASE leaves any already-advanced lifecycle state alone.
func (s *SQLiteStore) Update(ctx context.Context, id string, c core.Completion) error {
	cypher, err := marshalJSON(c.CypherQueries)
	if err != nil {
		return &core.StorageError{Op: "encode cypher queries", Err: err}
	}
	results, err := marshalJSON(c.GraphResults)
	if err != nil {
		return &core.StorageError{Op: "encode graph results", Err: err}
	}
	evidence, err := marshalJSON(c.EvidenceNodeIDs)
	if err != nil {
		return &core.StorageError{Op: "encode evidence node ids", Err: err}
	}
	memories, err := marshalJSON(c.MemoriesUsed)
	if err != nil {
		return &core.StorageError{Op: "encode memories used", Err: err}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE interactions SET
			answer = ?, cypher_queries = ?, graph_results = ?, evidence_node_ids = ?,
			confidence = ?, grounding_rate = ?, step_count = ?, latency_ms = ?, memories_used = ?,
			status = CASE WHEN status = 'created' THEN 'completed' ELSE status END
		WHERE id = ?`,
		c.Answer, cypher, results, evidence,
		c.Confidence, c.GroundingRate, c.StepCount, c.LatencyMs, memories,
		id,
	)
	if err != nil {
		return &core.StorageError{Op: "update interaction", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &core.StorageError{Op: "update interaction", Err: err}
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// SetStatus advances the lifecycle status inside a transaction so
// concurrent advances for the same id cannot interleave illegally.
func (s *SQLiteStore) SetStatus(ctx context.Context, id string, status core.Status) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &core.StorageError{Op: "set status", Err: err}
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM interactions WHERE id = ?", id).Scan(&current)
	if err == sql.ErrNoRows {
		return core.ErrNotFound
	}
	if err != nil {
		return &core.StorageError{Op: "set status", Err: err}
	}

	if !core.Status(current).CanTransitionTo(status) {
		return fmt.Errorf("illegal status transition %s -> %s for %s", current, status, id)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE interactions SET status = ? WHERE id = ?", string(status), id); err != nil {
		return &core.StorageError{Op: "set status", Err: err}
	}
	return tx.Commit()
}

// Get returns the interaction with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (core.Interaction, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM interactions WHERE id = ?", id)
	i, err := scanInteraction(row)
	if err == sql.ErrNoRows {
		return core.Interaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Interaction{}, &core.StorageError{Op: "get interaction", Err: err}
	}
	return i, nil
}

// Recent returns up to limit interactions, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]core.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		FROM interactions ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, &core.StorageError{Op: "list interactions", Err: err}
	}
	defer rows.Close()

	var results []core.Interaction
	for rows.Next() {
		i, err := scanInteraction(rows)
		if err != nil {
			return nil, &core.StorageError{Op: "list interactions", Err: err}
		}
		results = append(results, i)
	}
	return results, rows.Err()
}

const selectColumns = `SELECT id, created_at, query, answer, model, temperature,
	cypher_queries, graph_results, evidence_node_ids,
	confidence, grounding_rate, step_count, latency_ms, memories_used, status`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInteraction(row rowScanner) (core.Interaction, error) {
	var i core.Interaction
	var createdAt, cypher, results, evidence, memories, status string
	err := row.Scan(
		&i.ID, &createdAt, &i.Query, &i.Answer, &i.Model, &i.Temperature,
		&cypher, &results, &evidence,
		&i.Confidence, &i.GroundingRate, &i.StepCount, &i.LatencyMs, &memories, &status,
	)
	if err != nil {
		return core.Interaction{}, err
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return core.Interaction{}, fmt.Errorf("parsing created_at: %w", err)
	}
	i.CreatedAt = t
	i.Status = core.Status(status)

	if err := json.Unmarshal([]byte(cypher), &i.CypherQueries); err != nil {
		return core.Interaction{}, fmt.Errorf("decoding cypher_queries: %w", err)
	}
	if err := json.Unmarshal([]byte(results), &i.GraphResults); err != nil {
		return core.Interaction{}, fmt.Errorf("decoding graph_results: %w", err)
	}
	if err := json.Unmarshal([]byte(evidence), &i.EvidenceNodeIDs); err != nil {
		return core.Interaction{}, fmt.Errorf("decoding evidence_node_ids: %w", err)
	}
	if err := json.Unmarshal([]byte(memories), &i.MemoriesUsed); err != nil {
		return core.Interaction{}, fmt.Errorf("decoding memories_used: %w", err)
	}
	return i, nil
}

// marshalJSON encodes a slice column, storing nil as the empty array so
// the column is always valid JSON.
func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	s := string(b)
	if s == "null" {
		s = "[]"
	}
	return s, nil
}
