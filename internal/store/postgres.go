package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/netmerge/internal/db"
	"github.com/sells-group/netmerge/internal/model"
	"github.com/sells-group/netmerge/internal/network"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	network_a  TEXT NOT NULL,
	network_b  TEXT NOT NULL,
	input      JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     JSONB,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS merge_records (
	id             BIGSERIAL PRIMARY KEY,
	run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	kind           TEXT NOT NULL,
	merged_id      TEXT NOT NULL,
	primary_id     TEXT NOT NULL,
	secondary_id   TEXT NOT NULL,
	sources        JSONB NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	similar_fields JSONB NOT NULL,
	manual         BOOLEAN NOT NULL DEFAULT false,
	geometry       BYTEA,
	generated_at   TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_network_a ON runs(network_a);
CREATE INDEX IF NOT EXISTS idx_runs_network_b ON runs(network_b);
CREATE INDEX IF NOT EXISTS idx_merge_records_run_id ON merge_records(run_id);
`

// mergeRecordColumns are the columns written by SaveMergeRecords.
var mergeRecordColumns = []string{
	"run_id", "kind", "merged_id", "primary_id", "secondary_id", "sources",
	"confidence", "similar_fields", "manual", "geometry", "generated_at", "created_at",
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, input model.RunInput) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal input")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, network_a, network_b, input, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, input.NetworkA.ID, input.NetworkB.ID, inputJSON, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Input:     input,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET error = $1, status = $2, updated_at = $3 WHERE id = $4`,
		reason, string(model.RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

const postgresRunColumns = `id, input, status, result, error, created_at, updated_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPostgresRun(s.pool.QueryRow(ctx,
		`SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`,
		runID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Network != "" {
		query += fmt.Sprintf(` AND (network_a = $%d OR network_b = $%d)`, argIdx, argIdx)
		args = append(args, filter.Network)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, limitOf(filter))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var inputJSON []byte
	var resultNull *[]byte

	if err := row.Scan(&r.ID, &inputJSON, &r.Status, &resultNull, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	var result []byte
	if resultNull != nil {
		result = *resultNull
	}
	if err := decodeRun(&r, inputJSON, resultNull != nil, result); err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveMergeRecords replaces the merge records of a run in one transaction,
// copying the new rows in bulk.
func (s *PostgresStore) SaveMergeRecords(ctx context.Context, runID string, records []model.MergeRecord) error {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		sources, similar, err := marshalLists(rec)
		if err != nil {
			return err
		}
		rows = append(rows, []any{
			runID, string(rec.Kind), rec.MergedID, rec.PrimaryID, rec.SecondaryID, sources,
			rec.Confidence, similar, rec.Manual, rec.Geometry, rec.GeneratedAt.UTC(), now,
		})
	}

	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM merge_records WHERE run_id = $1`, runID); err != nil {
			return eris.Wrapf(err, "postgres: clear merge records of run %s", runID)
		}
		_, err := db.CopyRows(ctx, tx, pgx.Identifier{"merge_records"}, mergeRecordColumns, rows)
		return eris.Wrapf(err, "postgres: copy merge records of run %s", runID)
	})
}

func (s *PostgresStore) ListMergeRecords(ctx context.Context, runID string) ([]model.MergeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, kind, merged_id, primary_id, secondary_id, sources, confidence, similar_fields,
		 manual, geometry, generated_at, created_at
		 FROM merge_records WHERE run_id = $1 ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list merge records of run %s", runID)
	}
	defer rows.Close()

	var out []model.MergeRecord
	for rows.Next() {
		var rec model.MergeRecord
		var kind string
		var sources, similar []byte
		if err := rows.Scan(&rec.ID, &rec.RunID, &kind, &rec.MergedID, &rec.PrimaryID, &rec.SecondaryID,
			&sources, &rec.Confidence, &similar, &rec.Manual, &rec.Geometry, &rec.GeneratedAt, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan merge record")
		}
		rec.Kind = network.Kind(kind)
		if err := unmarshalLists(&rec, sources, similar); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list merge records iterate")
}
