package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/netmerge/internal/model"
	"github.com/sells-group/netmerge/internal/network"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	network_a  TEXT NOT NULL,
	network_b  TEXT NOT NULL,
	input      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS merge_records (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	kind           TEXT NOT NULL,
	merged_id      TEXT NOT NULL,
	primary_id     TEXT NOT NULL,
	secondary_id   TEXT NOT NULL,
	sources        TEXT NOT NULL,
	confidence     REAL NOT NULL,
	similar_fields TEXT NOT NULL,
	manual         INTEGER NOT NULL DEFAULT 0,
	geometry       BLOB,
	generated_at   DATETIME NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_network_a ON runs(network_a);
CREATE INDEX IF NOT EXISTS idx_runs_network_b ON runs(network_b);
CREATE INDEX IF NOT EXISTS idx_merge_records_run_id ON merge_records(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, input model.RunInput) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal input")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, network_a, network_b, input, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, input.NetworkA.ID, input.NetworkB.ID, string(inputJSON), string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Input:     input,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET error = ?, status = ?, updated_at = ? WHERE id = ?`,
		reason, string(model.RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

const sqliteRunColumns = `id, input, status, result, error, created_at, updated_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Network != "" {
		query += ` AND (network_a = ? OR network_b = ?)`
		args = append(args, filter.Network, filter.Network)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limitOf(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// SaveMergeRecords replaces the merge records of a run.
func (s *SQLiteStore) SaveMergeRecords(ctx context.Context, runID string, records []model.MergeRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM merge_records WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: clear merge records of run %s", runID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO merge_records (run_id, kind, merged_id, primary_id, secondary_id, sources, confidence,
		 similar_fields, manual, geometry, generated_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare merge record insert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, rec := range records {
		sources, similar, err := marshalLists(rec)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			runID, string(rec.Kind), rec.MergedID, rec.PrimaryID, rec.SecondaryID, string(sources),
			rec.Confidence, string(similar), rec.Manual, rec.Geometry, rec.GeneratedAt.UTC(), now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert merge record %s", rec.MergedID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit merge records")
}

func (s *SQLiteStore) ListMergeRecords(ctx context.Context, runID string) ([]model.MergeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, kind, merged_id, primary_id, secondary_id, sources, confidence, similar_fields,
		 manual, geometry, generated_at, created_at
		 FROM merge_records WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list merge records of run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.MergeRecord
	for rows.Next() {
		var rec model.MergeRecord
		var kind, sources, similar string
		if err := rows.Scan(&rec.ID, &rec.RunID, &kind, &rec.MergedID, &rec.PrimaryID, &rec.SecondaryID,
			&sources, &rec.Confidence, &similar, &rec.Manual, &rec.Geometry, &rec.GeneratedAt, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan merge record")
		}
		rec.Kind = network.Kind(kind)
		if err := unmarshalLists(&rec, []byte(sources), []byte(similar)); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list merge records iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var inputJSON string
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &inputJSON, &r.Status, &resultJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if err := decodeRun(&r, []byte(inputJSON), resultJSON.Valid, []byte(resultJSON.String)); err != nil {
		return nil, err
	}
	return &r, nil
}

func decodeRun(r *model.Run, input []byte, hasResult bool, result []byte) error {
	if err := json.Unmarshal(input, &r.Input); err != nil {
		return eris.Wrap(err, "store: unmarshal run input")
	}
	if hasResult {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(result, r.Result); err != nil {
			return eris.Wrap(err, "store: unmarshal run result")
		}
	}
	return nil
}

func marshalLists(rec model.MergeRecord) (sources, similar []byte, err error) {
	if sources, err = json.Marshal(nonNil(rec.Sources)); err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal sources")
	}
	if similar, err = json.Marshal(nonNil(rec.SimilarFields)); err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal similar fields")
	}
	return sources, similar, nil
}

func unmarshalLists(rec *model.MergeRecord, sources, similar []byte) error {
	if err := json.Unmarshal(sources, &rec.Sources); err != nil {
		return eris.Wrap(err, "store: unmarshal sources")
	}
	if err := json.Unmarshal(similar, &rec.SimilarFields); err != nil {
		return eris.Wrap(err, "store: unmarshal similar fields")
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
