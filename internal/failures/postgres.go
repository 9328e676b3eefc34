package failures

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createFailuresTable = `
CREATE TABLE IF NOT EXISTS decode_failures (
    id          BIGSERIAL PRIMARY KEY,
    run_id      TEXT        NOT NULL,
    source      TEXT        NOT NULL,
    line        INTEGER     NOT NULL,
    measurement TEXT        NOT NULL,
    kind        TEXT        NOT NULL,
    path        TEXT,
    message     TEXT        NOT NULL,
    raw         TEXT        NOT NULL,
    observed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS decode_failures_run_idx ON decode_failures (run_id);
`

// PostgresSink stores failures in the decode_failures table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to PostgreSQL and creates the table when missing.
func NewPostgresSink(ctx context.Context, connString string) (*PostgresSink, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createFailuresTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create decode_failures: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

func (p *PostgresSink) Close() {
	p.pool.Close()
}

func (p *PostgresSink) Record(ctx context.Context, f Failure) error {
	const insert = `
INSERT INTO decode_failures (
    run_id, source, line, measurement, kind, path, message, raw, observed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);
`
	observed := f.ObservedAt
	if observed.IsZero() {
		observed = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx, insert,
		f.RunID,
		f.Source,
		f.Line,
		f.Type,
		f.Kind,
		nullString(f.Path),
		f.Message,
		f.Raw,
		observed,
	)
	if err != nil {
		return fmt.Errorf("insert failure %s:%d: %w", f.Source, f.Line, err)
	}
	return nil
}

// List returns the failures of one run in input order.
func (p *PostgresSink) List(ctx context.Context, runID string, limit int) ([]Failure, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
SELECT run_id, source, line, measurement, kind, COALESCE(path, ''), message, raw, observed_at
  FROM decode_failures
 WHERE run_id = $1
 ORDER BY source, line
 LIMIT $2;
`
	rows, err := p.pool.Query(ctx, query, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.RunID, &f.Source, &f.Line, &f.Type, &f.Kind, &f.Path, &f.Message, &f.Raw, &f.ObservedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func nullString(val string) any {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	return val
}
