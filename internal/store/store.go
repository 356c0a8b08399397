// Package store persists completed analysis runs in a SQLite database:
// run metadata, the thread forest, and the full decision log. Runs are
// expensive to produce, so everything needed to re-inspect one later is
// kept.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/matsen/lineage/internal/explore"
	"github.com/matsen/lineage/internal/paper"
)

// DB wraps a SQLite database connection.
type DB struct {
	db *sql.DB
}

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			seeds_json TEXT NOT NULL,
			config_json TEXT NOT NULL
		);

		-- One row per thread, root or nested. parent_id is NULL for
		-- roots; position preserves sibling order.
		CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			parent_id TEXT,
			position INTEGER NOT NULL,
			theme TEXT NOT NULL,
			spawn_year INTEGER NOT NULL,
			papers_json TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_threads_run ON threads(run_id);

		CREATE TABLE IF NOT EXISTS decisions (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			message TEXT NOT NULL,
			data_json TEXT,
			PRIMARY KEY (run_id, seq)
		);
	`
	_, err := db.Exec(schema)
	return err
}

// Run is a persisted analysis run.
type Run struct {
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"createdAt"`
	Status    explore.Status     `json:"status"`
	Err       string             `json:"error,omitempty"`
	Seeds     []paper.Paper      `json:"seeds"`
	Config    explore.Config     `json:"config"`
	Threads   []paper.Thread     `json:"threads"`
	Log       []explore.Decision `json:"log"`
}

// RunSummary is the listing row for a run.
type RunSummary struct {
	ID         string         `json:"id"`
	CreatedAt  time.Time      `json:"createdAt"`
	Status     explore.Status `json:"status"`
	SeedTitles []string       `json:"seedTitles"`
	Threads    int            `json:"threads"`
	Papers     int            `json:"papers"`
}

// SaveRun persists a run and returns its assigned ID.
func (d *DB) SaveRun(res *explore.Result, seeds []paper.Paper, cfg explore.Config) (string, error) {
	runID := uuid.NewString()
	createdAt := time.Now().UTC().Format(time.RFC3339)

	seedsJSON, err := json.Marshal(seeds)
	if err != nil {
		return "", fmt.Errorf("marshaling seeds: %w", err)
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshaling config: %w", err)
	}

	tx, err := d.db.Begin()
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, created_at, status, error, seeds_json, config_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, createdAt, string(res.Status), nullableStringValue(res.Err),
		string(seedsJSON), string(cfgJSON))
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}

	threadStmt, err := tx.Prepare(`
		INSERT INTO threads (id, run_id, parent_id, position, theme, spawn_year, papers_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("preparing thread insert: %w", err)
	}
	defer threadStmt.Close()

	var insertThread func(t paper.Thread, parentID string, pos int) error
	insertThread = func(t paper.Thread, parentID string, pos int) error {
		papersJSON, err := json.Marshal(t.Papers)
		if err != nil {
			return fmt.Errorf("marshaling papers for thread %s: %w", t.ID, err)
		}
		_, err = threadStmt.Exec(t.ID, runID, nullableStringValue(parentID), pos,
			t.Theme, t.SpawnYear, string(papersJSON))
		if err != nil {
			return fmt.Errorf("inserting thread %s: %w", t.ID, err)
		}
		for i, sub := range t.SubThreads {
			if err := insertThread(*sub, t.ID, i); err != nil {
				return err
			}
		}
		return nil
	}
	for i, t := range res.Threads {
		if err := insertThread(t, "", i); err != nil {
			return "", err
		}
	}

	decisionStmt, err := tx.Prepare(`
		INSERT INTO decisions (run_id, seq, type, message, data_json)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("preparing decision insert: %w", err)
	}
	defer decisionStmt.Close()

	for i, dec := range res.Log {
		var dataJSON []byte
		if len(dec.Data) > 0 {
			if dataJSON, err = json.Marshal(dec.Data); err != nil {
				return "", fmt.Errorf("marshaling decision data: %w", err)
			}
		}
		_, err = decisionStmt.Exec(runID, i, string(dec.Type), dec.Message,
			nullableString(dataJSON))
		if err != nil {
			return "", fmt.Errorf("inserting decision %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing run: %w", err)
	}
	return runID, nil
}

// GetRun retrieves one run with its thread forest and decision log.
// Returns nil with no error when the run does not exist.
func (d *DB) GetRun(id string) (*Run, error) {
	var run Run
	var createdAt string
	var status string
	var errText sql.NullString
	var seedsJSON, cfgJSON string

	err := d.db.QueryRow(`
		SELECT id, created_at, status, error, seeds_json, config_json
		FROM runs WHERE id = ?
	`, id).Scan(&run.ID, &createdAt, &status, &errText, &seedsJSON, &cfgJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("reading run %s: %w", id, err)
	}

	run.Status = explore.Status(status)
	run.Err = errText.String
	if run.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(seedsJSON), &run.Seeds); err != nil {
		return nil, fmt.Errorf("parsing seeds for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(cfgJSON), &run.Config); err != nil {
		return nil, fmt.Errorf("parsing config for %s: %w", id, err)
	}

	if run.Threads, err = d.loadThreads(id); err != nil {
		return nil, err
	}
	if run.Log, err = d.loadDecisions(id); err != nil {
		return nil, err
	}
	return &run, nil
}

func (d *DB) loadThreads(runID string) ([]paper.Thread, error) {
	rows, err := d.db.Query(`
		SELECT id, parent_id, position, theme, spawn_year, papers_json
		FROM threads WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("reading threads for %s: %w", runID, err)
	}
	defer rows.Close()

	byID := make(map[string]*paper.Thread)
	parents := make(map[string]string)
	var rootIDs []string
	for rows.Next() {
		var t paper.Thread
		var parentID sql.NullString
		var position int
		var papersJSON string
		if err := rows.Scan(&t.ID, &parentID, &position, &t.Theme, &t.SpawnYear, &papersJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(papersJSON), &t.Papers); err != nil {
			return nil, fmt.Errorf("parsing papers for thread %s: %w", t.ID, err)
		}
		if len(t.Papers) > 0 {
			t.SpawnPaper = t.Papers[0]
		}
		byID[t.ID] = &t
		if parentID.Valid {
			parents[t.ID] = parentID.String
		} else {
			rootIDs = append(rootIDs, t.ID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rebuild the forest. Rows arrive ordered by sibling position, so
	// appends reconstruct the original sub-thread order.
	for id, parentID := range parents {
		parent, ok := byID[parentID]
		if !ok {
			return nil, fmt.Errorf("thread %s references missing parent %s", id, parentID)
		}
		parent.SubThreads = append(parent.SubThreads, byID[id])
	}

	threads := make([]paper.Thread, 0, len(rootIDs))
	for _, id := range rootIDs {
		threads = append(threads, *byID[id])
	}
	return threads, nil
}

func (d *DB) loadDecisions(runID string) ([]explore.Decision, error) {
	rows, err := d.db.Query(`
		SELECT type, message, data_json
		FROM decisions WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("reading decisions for %s: %w", runID, err)
	}
	defer rows.Close()

	var log []explore.Decision
	for rows.Next() {
		var dec explore.Decision
		var typ string
		var dataJSON sql.NullString
		if err := rows.Scan(&typ, &dec.Message, &dataJSON); err != nil {
			return nil, err
		}
		dec.Type = explore.DecisionType(typ)
		if dataJSON.Valid && dataJSON.String != "" {
			if err := json.Unmarshal([]byte(dataJSON.String), &dec.Data); err != nil {
				return nil, fmt.Errorf("parsing decision data: %w", err)
			}
		}
		log = append(log, dec)
	}
	return log, rows.Err()
}

// ListRuns returns run summaries, most recent first, optionally limited.
func (d *DB) ListRuns(limit int) ([]RunSummary, error) {
	query := `
		SELECT r.id, r.created_at, r.status, r.seeds_json,
			COUNT(t.id),
			COALESCE(SUM(json_array_length(t.papers_json)), 0)
		FROM runs r
		LEFT JOIN threads t ON t.run_id = r.id
		GROUP BY r.id
		ORDER BY r.created_at DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = []interface{}{limit}
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var s RunSummary
		var createdAt, status, seedsJSON string
		if err := rows.Scan(&s.ID, &createdAt, &status, &seedsJSON, &s.Threads, &s.Papers); err != nil {
			return nil, err
		}
		s.Status = explore.Status(status)
		if s.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for %s: %w", s.ID, err)
		}
		var seeds []paper.Paper
		if err := json.Unmarshal([]byte(seedsJSON), &seeds); err != nil {
			return nil, fmt.Errorf("parsing seeds for %s: %w", s.ID, err)
		}
		for _, p := range seeds {
			s.SeedTitles = append(s.SeedTitles, p.Title)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// DeleteRun removes a run and its threads and decisions. Reports whether
// a run was deleted.
func (d *DB) DeleteRun(id string) (bool, error) {
	// Cascades are not enforced without the foreign_keys pragma, so
	// delete children explicitly.
	tx, err := d.db.Begin()
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM decisions WHERE run_id = ?", id); err != nil {
		return false, fmt.Errorf("deleting decisions: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM threads WHERE run_id = ?", id); err != nil {
		return false, fmt.Errorf("deleting threads: %w", err)
	}
	res, err := tx.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("deleting run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing delete: %w", err)
	}
	return n > 0, nil
}

// Count returns the total number of stored runs.
func (d *DB) Count() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count)
	return count, err
}

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

// nullableStringValue converts a string to sql.NullString, treating empty as NULL.
func nullableStringValue(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
