// Package namemap caches the conda/import/PyPI package name mapping in a
// local SQLite database, refreshed from the regro cf-graph mapping file.
package namemap

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/asof-dev/asof/client"
)

// DefaultMappingURL is the upstream conda↔PyPI name mapping maintained by
// the conda-forge graph project.
const DefaultMappingURL = "https://github.com/regro/cf-graph-countyfair/raw/refs/heads/master/mappings/pypi/name_mapping.json"

// DB is the cache database. Open it at process start and Close it at exit;
// it is passed explicitly, never held as package state.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache database at path and ensures
// the schema exists.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	stmts := []string{
		"CREATE TABLE IF NOT EXISTS download(url TEXT, downloaded_at TEXT, content TEXT) STRICT",
		"CREATE TABLE IF NOT EXISTS name_mapping(conda_name TEXT, import_name TEXT, pypi_name TEXT) STRICT",
		"CREATE INDEX IF NOT EXISTS conda_name_index ON name_mapping(conda_name)",
		"CREATE INDEX IF NOT EXISTS import_name_index ON name_mapping(import_name)",
		"CREATE INDEX IF NOT EXISTS pypi_name_index ON name_mapping(pypi_name)",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initializing cache db: %w", err)
		}
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Refresh downloads url into the cache unless a copy newer than lifetime
// already exists. It reports whether a fresh download happened.
func (d *DB) Refresh(ctx context.Context, c *client.Client, url string, lifetime time.Duration) (bool, error) {
	cutoff := time.Now().Add(-lifetime).UTC().Format(time.RFC3339)

	var downloadedAt string
	err := d.db.QueryRowContext(ctx,
		"SELECT downloaded_at FROM download WHERE url = ? AND downloaded_at >= ? ORDER BY downloaded_at DESC LIMIT 1",
		url, cutoff).Scan(&downloadedAt)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	var content json.RawMessage
	if err := c.GetJSON(ctx, url, &content); err != nil {
		return false, fmt.Errorf("downloading %s: %w", url, err)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM download WHERE url = ?", url); err != nil {
		return false, err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, "INSERT INTO download VALUES (?, ?, ?)", url, now, string(content)); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// mappingEntry matches one record of the cf-graph name_mapping.json file.
type mappingEntry struct {
	CondaName  string `json:"conda_name"`
	ImportName string `json:"import_name"`
	PyPIName   string `json:"pypi_name"`
}

// PopulateNameMapping rebuilds the name_mapping table from the most recent
// cached download of url.
func (d *DB) PopulateNameMapping(ctx context.Context, url string) error {
	var content string
	err := d.db.QueryRowContext(ctx,
		"SELECT content FROM download WHERE url = ? ORDER BY downloaded_at DESC LIMIT 1",
		url).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("missing download: %s", url)
	}
	if err != nil {
		return err
	}

	var entries []mappingEntry
	if err := json.Unmarshal([]byte(content), &entries); err != nil {
		return fmt.Errorf("parsing name mapping: %w", err)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM name_mapping"); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO name_mapping VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.CondaName, e.ImportName, e.PyPIName); err != nil {
			return err
		}
	}
	return tx.Commit()
}
