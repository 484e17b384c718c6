package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know about
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sqlx.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:viva.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/viva?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	raw, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// one writer; sqlite serialises anyway and shared-cache memory DBs lock per table
		raw.SetMaxOpenConns(1)
	}
	if err := raw.PingContext(ctx); err != nil {
		raw.Close()
		return nil, err
	}

	if err := ensureSchema(ctx, raw, driver); err != nil {
		raw.Close()
		return nil, err
	}
	return sqlx.NewDb(raw, drvName), nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  seq INTEGER NOT NULL,
  kind TEXT NOT NULL,
  text TEXT NOT NULL,
  level TEXT NOT NULL DEFAULT '',
  data_json TEXT NOT NULL DEFAULT '',
  child_of_aggregate INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_questions_seq ON questions(seq);

CREATE TABLE IF NOT EXISTS question_edges (
  parent_id TEXT NOT NULL,
  child_id TEXT PRIMARY KEY,  -- one parent per child
  position INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_question_edges_parent ON question_edges(parent_id, position);

CREATE TABLE IF NOT EXISTS question_keywords (
  question_id TEXT NOT NULL,
  keyword TEXT NOT NULL,
  PRIMARY KEY (question_id, keyword)
);

CREATE TABLE IF NOT EXISTS question_subjects (
  question_id TEXT NOT NULL,
  subject TEXT NOT NULL,
  PRIMARY KEY (question_id, subject)
);

CREATE TABLE IF NOT EXISTS question_images (
  question_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  filename TEXT NOT NULL,
  alt_text TEXT NOT NULL DEFAULT '',
  blob_key TEXT NOT NULL,
  PRIMARY KEY (question_id, position)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,                         -- e.g., QuestionsImported
  key TEXT NOT NULL,
  data TEXT NOT NULL,                        -- JSON payload
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  seq BIGINT NOT NULL,
  kind TEXT NOT NULL,
  text TEXT NOT NULL,
  level TEXT NOT NULL DEFAULT '',
  data_json TEXT NOT NULL DEFAULT '',
  child_of_aggregate BOOLEAN NOT NULL DEFAULT FALSE,
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_questions_seq ON questions(seq);

CREATE TABLE IF NOT EXISTS question_edges (
  parent_id TEXT NOT NULL,
  child_id TEXT PRIMARY KEY,
  position INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_question_edges_parent ON question_edges(parent_id, position);

CREATE TABLE IF NOT EXISTS question_keywords (
  question_id TEXT NOT NULL,
  keyword TEXT NOT NULL,
  PRIMARY KEY (question_id, keyword)
);

CREATE TABLE IF NOT EXISTS question_subjects (
  question_id TEXT NOT NULL,
  subject TEXT NOT NULL,
  PRIMARY KEY (question_id, subject)
);

CREATE TABLE IF NOT EXISTS question_images (
  question_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  filename TEXT NOT NULL,
  alt_text TEXT NOT NULL DEFAULT '',
  blob_key TEXT NOT NULL,
  PRIMARY KEY (question_id, position)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
