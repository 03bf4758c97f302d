package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospector/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db   *sql.DB
	opts Options
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, opts Options) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, opts: opts}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS records (
	id               TEXT PRIMARY KEY,
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
	verified         INTEGER NOT NULL DEFAULT 0,
	segment          TEXT NOT NULL DEFAULT '',
	priority         TEXT NOT NULL DEFAULT 'Low',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_external_key ON records(external_key);
CREATE INDEX IF NOT EXISTS idx_records_verified ON records(verified, created_at);
CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at);
`

const sqliteUniqueKey = `CREATE UNIQUE INDEX IF NOT EXISTS uq_records_external_key ON records(external_key);`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	if s.opts.UniqueExternalKey {
		if _, err := s.db.ExecContext(ctx, sqliteUniqueKey); err != nil {
			return eris.Wrap(err, "sqlite: migrate unique external_key")
		}
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Insert(ctx context.Context, r *model.Record) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if _, err := s.db.ExecContext(ctx, insertSQL(questionMark), recordValues(r)...); err != nil {
		return eris.Wrapf(err, "sqlite: insert record %s", r.ExternalKey)
	}
	return nil
}

func (s *SQLiteStore) UpdateByKey(ctx context.Context, externalKey string, fields Fields) error {
	q := newQuery(questionMark)
	set, err := q.setSQL(fields)
	if err != nil {
		return err
	}
	query := "UPDATE records SET " + set + " WHERE external_key = " + q.arg(externalKey)
	res, err := s.db.ExecContext(ctx, query, q.args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update record %s", externalKey)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: update record %s", externalKey)
	}
	return nil
}

func (s *SQLiteStore) FindByKey(ctx context.Context, externalKey string) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns()+` FROM records WHERE external_key = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		externalKey,
	)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find record %s", externalKey)
	}
	return r, nil
}

func (s *SQLiteStore) SelectPage(ctx context.Context, filter RecordFilter, order Order, limit, offset int) ([]model.Record, error) {
	q := newQuery(questionMark)
	orderBy, err := orderSQL(order)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + selectColumns() + ` FROM records` + q.where(filter) + orderBy +
		` LIMIT ` + q.arg(limit) + ` OFFSET ` + q.arg(max(offset, 0))

	rows, err := s.db.QueryContext(ctx, query, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select records")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: select records iterate")
}

func (s *SQLiteStore) Count(ctx context.Context, filter RecordFilter) (int, error) {
	q := newQuery(questionMark)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM records`+q.where(filter), q.args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count records")
	}
	return n, nil
}

func (s *SQLiteStore) BulkAssign(ctx context.Context, filter RecordFilter, a Assignment) (int64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	q := newQuery(questionMark)
	query := `UPDATE records SET ` + a.Column + ` = ` + q.caseSQL(a)
	query += q.where(filter)

	res, err := s.db.ExecContext(ctx, query, q.args...)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: bulk assign %s", a.Column)
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id IN (`+marks+`)`, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete records")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}
