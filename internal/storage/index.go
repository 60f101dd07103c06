package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const IndexFileName = "index.db"

// BatchRow is one batch invocation as recorded in the index.
type BatchRow struct {
	ID         int64
	Infile     string
	Parts      int
	Outdir     string
	Runs       int
	Frames     int
	Seed       int64
	Movie      bool
	BlendFile  bool
	Engine     string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Completed  int
}

// Index keeps a local SQLite record of batches and their runs so they can be
// listed later without walking output directories.
type Index struct {
	db *sql.DB
}

func OpenIndex(dataDir string) (*Index, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("empty data dir")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, IndexFileName))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Index{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS batches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			infile TEXT NOT NULL,
			parts INTEGER NOT NULL,
			outdir TEXT NOT NULL,
			runs INTEGER NOT NULL,
			frames INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			movie INTEGER NOT NULL,
			blendfile INTEGER NOT NULL,
			engine TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'running'
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			batch_id INTEGER NOT NULL REFERENCES batches(id),
			run INTEGER NOT NULL,
			angle REAL NOT NULL,
			axis_x REAL NOT NULL,
			axis_y REAL NOT NULL,
			axis_z REAL NOT NULL,
			lift REAL NOT NULL,
			min_z REAL NOT NULL,
			movie TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (batch_id, run)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (x *Index) Close() error {
	return x.db.Close()
}

// BeginBatch inserts a batch in the running state and returns its id.
func (x *Index) BeginBatch(ctx context.Context, b BatchRow) (int64, error) {
	if b.StartedAt.IsZero() {
		b.StartedAt = time.Now()
	}
	res, err := x.db.ExecContext(ctx,
		`INSERT INTO batches (infile, parts, outdir, runs, frames, seed, movie, blendfile, engine, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Infile, b.Parts, b.Outdir, b.Runs, b.Frames, b.Seed,
		boolInt(b.Movie), boolInt(b.BlendFile), b.Engine, b.StartedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert batch: %w", err)
	}
	return res.LastInsertId()
}

func (x *Index) RecordRun(ctx context.Context, batchID int64, rec RunRecord) error {
	_, err := x.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (batch_id, run, angle, axis_x, axis_y, axis_z, lift, min_z, movie)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		batchID, rec.Run, rec.Angle, rec.Axis[0], rec.Axis[1], rec.Axis[2], rec.Offset, rec.BoundsMin[2], rec.Movie,
	)
	if err != nil {
		return fmt.Errorf("insert run %d: %w", rec.Run, err)
	}
	return nil
}

func (x *Index) FinishBatch(ctx context.Context, batchID int64, status string) error {
	_, err := x.db.ExecContext(ctx,
		`UPDATE batches SET finished_at = ?, status = ? WHERE id = ?`,
		time.Now().UnixMilli(), status, batchID,
	)
	return err
}

// Batches lists recorded batches, newest first, with their completed run count.
func (x *Index) Batches(ctx context.Context) ([]BatchRow, error) {
	rows, err := x.db.QueryContext(ctx, `
		SELECT b.id, b.infile, b.parts, b.outdir, b.runs, b.frames, b.seed, b.movie, b.blendfile,
		       b.engine, b.started_at, b.finished_at, b.status,
		       (SELECT COUNT(*) FROM runs r WHERE r.batch_id = b.id)
		FROM batches b ORDER BY b.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]BatchRow, 0)
	for rows.Next() {
		var (
			b                 BatchRow
			movie, blend      int
			started, finished int64
		)
		if err := rows.Scan(&b.ID, &b.Infile, &b.Parts, &b.Outdir, &b.Runs, &b.Frames, &b.Seed,
			&movie, &blend, &b.Engine, &started, &finished, &b.Status, &b.Completed); err != nil {
			return nil, err
		}
		b.Movie = movie != 0
		b.BlendFile = blend != 0
		b.StartedAt = time.UnixMilli(started)
		if finished != 0 {
			b.FinishedAt = time.UnixMilli(finished)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Runs returns the recorded runs of one batch in run order.
func (x *Index) Runs(ctx context.Context, batchID int64) ([]RunRecord, error) {
	rows, err := x.db.QueryContext(ctx,
		`SELECT run, angle, axis_x, axis_y, axis_z, lift, min_z, movie FROM runs WHERE batch_id = ? ORDER BY run`,
		batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]RunRecord, 0)
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.Run, &rec.Angle, &rec.Axis[0], &rec.Axis[1], &rec.Axis[2],
			&rec.Offset, &rec.BoundsMin[2], &rec.Movie); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
