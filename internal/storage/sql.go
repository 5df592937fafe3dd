package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectlab/internal/errors"
	"github.com/rohankatakam/defectlab/internal/walkforward"
)

// Supported SQL drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres" // lib/pq
	DriverPgx      = "pgx"      // jackc/pgx stdlib
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	project TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS dataset_rows (
	run_id TEXT NOT NULL REFERENCES runs(id),
	project TEXT NOT NULL,
	iteration INTEGER NOT NULL,
	role TEXT NOT NULL,
	release_index INTEGER NOT NULL,
	release_name TEXT NOT NULL,
	class_path TEXT NOT NULL,
	class_name TEXT NOT NULL,
	method TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	loc INTEGER NOT NULL,
	revisions INTEGER NOT NULL,
	authors INTEGER NOT NULL,
	cumulative_authors INTEGER NOT NULL,
	churn INTEGER NOT NULL,
	max_churn INTEGER NOT NULL,
	age_releases INTEGER NOT NULL,
	buggy BOOLEAN NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dataset_rows_snapshot ON dataset_rows(run_id, iteration, role);
`

const insertRow = `
	INSERT INTO dataset_rows (run_id, project, iteration, role, release_index, release_name,
		class_path, class_name, method, start_line, end_line, loc, revisions, authors,
		cumulative_authors, churn, max_churn, age_releases, buggy)
	VALUES (:run_id, :project, :iteration, :role, :release_index, :release_name,
		:class_path, :class_name, :method, :start_line, :end_line, :loc, :revisions, :authors,
		:cumulative_authors, :churn, :max_churn, :age_releases, :buggy)
`

// rowRecord is a dataset row tagged with its run and snapshot
type rowRecord struct {
	RunID     string `db:"run_id"`
	Project   string `db:"project"`
	Iteration int    `db:"iteration"`
	Role      string `db:"role"`
	walkforward.Row
}

// SQLSink stores every snapshot of one run in a SQL database
type SQLSink struct {
	db      *sqlx.DB
	runID   string
	project string
	logger  logrus.FieldLogger
}

// OpenSQLSink connects with driver, creates the schema and registers a new
// run for project
func OpenSQLSink(ctx context.Context, driver, dsn, project string, logger logrus.FieldLogger) (*SQLSink, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	case DriverPostgres, DriverPgx:
	default:
		return nil, errors.ConfigErrorf("unsupported sql driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.StorageError(err, "connect to "+driver)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.Exec("PRAGMA foreign_keys = ON")
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	sink := &SQLSink{db: db, runID: uuid.NewString(), project: project, logger: logger}
	_, err = db.NamedExecContext(ctx,
		`INSERT INTO runs (id, project, started_at) VALUES (:id, :project, :started_at)`,
		map[string]interface{}{"id": sink.runID, "project": project, "started_at": time.Now().UTC()})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("register run: %w", err)
	}

	logger.WithFields(logrus.Fields{"driver": driver, "run_id": sink.runID}).Info("sql sink opened")
	return sink, nil
}

// RunID identifies the rows written by this sink
func (s *SQLSink) RunID() string {
	return s.runID
}

// Write inserts every row of snap in one transaction
func (s *SQLSink) Write(ctx context.Context, snap *walkforward.Snapshot) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.StorageError(err, "begin transaction")
	}
	defer tx.Rollback()

	for _, r := range snap.Rows {
		rec := rowRecord{
			RunID:     s.runID,
			Project:   snap.Project,
			Iteration: snap.Iteration,
			Role:      string(snap.Role),
			Row:       r,
		}
		if _, err := tx.NamedExecContext(ctx, insertRow, rec); err != nil {
			return errors.StorageError(err, "save row")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StorageError(err, "commit snapshot")
	}

	s.logger.WithFields(logrus.Fields{
		"iteration": snap.Iteration,
		"role":      snap.Role,
		"rows":      len(snap.Rows),
	}).Debug("snapshot stored")
	return nil
}

// Rows returns the stored rows of one snapshot of this run
func (s *SQLSink) Rows(ctx context.Context, iteration int, role walkforward.Role) ([]walkforward.Row, error) {
	query := s.db.Rebind(`
		SELECT run_id, project, iteration, role, release_index, release_name, class_path,
			class_name, method, start_line, end_line, loc, revisions, authors,
			cumulative_authors, churn, max_churn, age_releases, buggy
		FROM dataset_rows
		WHERE run_id = ? AND iteration = ? AND role = ?
		ORDER BY release_index, class_path, start_line`)

	var recs []rowRecord
	if err := s.db.SelectContext(ctx, &recs, query, s.runID, iteration, string(role)); err != nil {
		return nil, fmt.Errorf("get rows: %w", err)
	}

	rows := make([]walkforward.Row, len(recs))
	for i, rec := range recs {
		rows[i] = rec.Row
	}
	return rows, nil
}

// Close closes the database connection
func (s *SQLSink) Close() error {
	return s.db.Close()
}
