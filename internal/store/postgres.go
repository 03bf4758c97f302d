package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/internal/db"
	"github.com/sells-group/prospector/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
	opts Options
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig, opts Options) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, opts: opts}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool, opts Options) *PostgresStore {
	return &PostgresStore{pool: pool, opts: opts}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS records (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	external_key     TEXT NOT NULL,
	name             TEXT NOT NULL DEFAULT '',
	title            TEXT NOT NULL DEFAULT '',
	organization     TEXT NOT NULL DEFAULT '',
	location         TEXT NOT NULL DEFAULT '',
	email            TEXT,
	phone            TEXT,
	industry         TEXT NOT NULL DEFAULT '',
	connection_level TEXT NOT NULL DEFAULT '',
	summary          TEXT NOT NULL DEFAULT '',
	experience       TEXT NOT NULL DEFAULT '',
	education        TEXT NOT NULL DEFAULT '',
	skills           TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL DEFAULT '',
	verified         BOOLEAN NOT NULL DEFAULT false,
	segment          TEXT NOT NULL DEFAULT '',
	priority         TEXT NOT NULL DEFAULT 'Low',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_records_external_key ON records(external_key);
CREATE INDEX IF NOT EXISTS idx_records_verified ON records(verified, created_at);
CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at DESC);
`

const postgresUniqueKey = `CREATE UNIQUE INDEX IF NOT EXISTS uq_records_external_key ON records(external_key)`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	if s.opts.UniqueExternalKey {
		if _, err := s.pool.Exec(ctx, postgresUniqueKey); err != nil {
			return eris.Wrap(err, "postgres: migrate unique external_key")
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, r *model.Record) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if _, err := s.pool.Exec(ctx, insertSQL(dollarN), recordValues(r)...); err != nil {
		return eris.Wrapf(err, "postgres: insert record %s", r.ExternalKey)
	}
	return nil
}

func (s *PostgresStore) UpdateByKey(ctx context.Context, externalKey string, fields Fields) error {
	q := newQuery(dollarN)
	set, err := q.setSQL(fields)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, "UPDATE records SET "+set+" WHERE external_key = "+q.arg(externalKey), q.args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update record %s", externalKey)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update record %s", externalKey)
	}
	return nil
}

func (s *PostgresStore) FindByKey(ctx context.Context, externalKey string) (*model.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectColumns()+` FROM records WHERE external_key = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		externalKey,
	)
	r, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find record %s", externalKey)
	}
	return r, nil
}

func (s *PostgresStore) SelectPage(ctx context.Context, filter RecordFilter, order Order, limit, offset int) ([]model.Record, error) {
	q := newQuery(dollarN)
	orderBy, err := orderSQL(order)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + selectColumns() + ` FROM records` + q.where(filter) + orderBy +
		` LIMIT ` + q.arg(limit) + ` OFFSET ` + q.arg(max(offset, 0))

	rows, err := s.pool.Query(ctx, query, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select records")
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: select records iterate")
}

func (s *PostgresStore) Count(ctx context.Context, filter RecordFilter) (int, error) {
	q := newQuery(dollarN)
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM records`+q.where(filter), q.args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count records")
	}
	return n, nil
}

func (s *PostgresStore) BulkAssign(ctx context.Context, filter RecordFilter, a Assignment) (int64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	q := newQuery(dollarN)
	query := `UPDATE records SET ` + a.Column + ` = ` + q.caseSQL(a)
	query += q.where(filter)

	tag, err := s.pool.Exec(ctx, query, q.args...)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: bulk assign %s", a.Column)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM records WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete records")
	}
	return tag.RowsAffected(), nil
}
