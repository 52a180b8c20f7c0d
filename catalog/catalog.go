// Package catalog records completed output files in an SQLite database.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pipelined/psrpipe/psrfits"
)

const (
	createTableTmpl = `CREATE TABLE IF NOT EXISTS psrfits_files (
		"ID"        INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"Run"       TEXT NOT NULL,
		"Path"      TEXT NOT NULL,
		"Beam"      INTEGER,
		"Tuning"    INTEGER,
		"FileNum"   INTEGER,
		"Rows"      INTEGER,
		"MJD"       REAL,
		"Source"    TEXT,
		"PolOrder"  TEXT,
		"Created"   INTEGER
	);`
	insertFileTmpl = `INSERT INTO psrfits_files(
		Run,
		Path,
		Beam,
		Tuning,
		FileNum,
		Rows,
		MJD,
		Source,
		PolOrder,
		Created
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	selectRunTmpl = `SELECT Path, Beam, Tuning, FileNum, Rows, MJD, Source, PolOrder
		FROM psrfits_files WHERE Run = ? ORDER BY ID;`
	selectAllTmpl = `SELECT Path, Beam, Tuning, FileNum, Rows, MJD, Source, PolOrder
		FROM psrfits_files ORDER BY ID;`
)

// Catalog is an SQLite index of output files.
type Catalog struct {
	db     *sql.DB
	insert *sql.Stmt
}

// Open opens or creates the catalog database.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite DB %q: %w", path, err)
	}
	if _, err := db.Exec(createTableTmpl); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to create table: %w", err)
	}
	insert, err := db.Prepare(insertFileTmpl)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Catalog{db: db, insert: insert}, nil
}

// Record stores a completed file of run.
func (c *Catalog) Record(ctx context.Context, run string, fi psrfits.FileInfo) error {
	_, err := c.insert.ExecContext(ctx, run, fi.Path, fi.Beam, fi.Tuning, fi.Num, fi.Rows, fi.MJD, fi.Source, fi.PolOrder, time.Now().UnixMilli())
	return err
}

// Files returns the files recorded for run in insertion order.
func (c *Catalog) Files(ctx context.Context, run string) ([]psrfits.FileInfo, error) {
	return c.query(ctx, selectRunTmpl, run)
}

// All returns every recorded file in insertion order.
func (c *Catalog) All(ctx context.Context) ([]psrfits.FileInfo, error) {
	return c.query(ctx, selectAllTmpl)
}

func (c *Catalog) query(ctx context.Context, query string, args ...any) ([]psrfits.FileInfo, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var files []psrfits.FileInfo
	for rows.Next() {
		var fi psrfits.FileInfo
		if err := rows.Scan(&fi.Path, &fi.Beam, &fi.Tuning, &fi.Num, &fi.Rows, &fi.MJD, &fi.Source, &fi.PolOrder); err != nil {
			return nil, err
		}
		files = append(files, fi)
	}
	return files, rows.Err()
}

// Close closes the database.
func (c *Catalog) Close() error {
	c.insert.Close()
	return c.db.Close()
}
