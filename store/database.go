// Package store database for slideshow settings, mutation activity, and folder imports
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const DefaultSlideshowIntervalMs = 4000

type Database struct {
	db *sql.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	// Create directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &Database{db: db}

	// Create table if it doesn't exist
	if err := database.createTable(); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return database, nil
}

func (d *Database) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS app_settings (
		singleton INTEGER NOT NULL DEFAULT 1 CHECK (singleton = 1),
		slideshow_interval_ms INTEGER NOT NULL,
		PRIMARY KEY (singleton)
	);
	CREATE TABLE IF NOT EXISTS activity (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		ref TEXT NOT NULL,
		success INTEGER NOT NULL,
		message TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_activity_created_at ON activity(created_at);
	CREATE TABLE IF NOT EXISTS imports (
		file_name TEXT NOT NULL,
		ref TEXT NOT NULL,
		imported_at INTEGER NOT NULL,
		PRIMARY KEY (file_name)
	);
	`
	_, err := d.db.Exec(query)
	return err
}

func (d *Database) GetAppSettings() (*AppSettings, error) {
	const query = `
		SELECT slideshow_interval_ms
		FROM app_settings
		WHERE singleton = 1
	`

	var interval int
	err := d.db.QueryRow(query).Scan(&interval)
	if err == sql.ErrNoRows {
		// Bootstrap defaults if no settings row exists yet
		defaults := &AppSettings{
			SlideshowIntervalMs: DefaultSlideshowIntervalMs,
		}
		if err := d.UpsertAppSettings(defaults); err != nil {
			return nil, err
		}
		return defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get app settings: %w", err)
	}

	return &AppSettings{SlideshowIntervalMs: interval}, nil
}

func (d *Database) UpsertAppSettings(s *AppSettings) error {
	const stmt = `
		INSERT INTO app_settings (
			singleton,
			slideshow_interval_ms
		) VALUES (1, ?)
		ON CONFLICT(singleton) DO UPDATE SET
			slideshow_interval_ms = excluded.slideshow_interval_ms
	`

	if _, err := d.db.Exec(stmt, s.SlideshowIntervalMs); err != nil {
		return fmt.Errorf("upsert app settings: %w", err)
	}
	return nil
}

func (d *Database) InsertActivity(action, ref string, success bool, message string) error {
	query := `INSERT INTO activity (action, ref, success, message, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := d.db.Exec(query, action, ref, boolToInt(success), message, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

// GetActivity returns the most recent activity first.
func (d *Database) GetActivity(limit int) ([]Activity, error) {
	query := `
		SELECT id, action, ref, success, message, created_at
		FROM activity
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := d.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	var activity []Activity
	for rows.Next() {
		var a Activity
		var success int
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.Action, &a.Ref, &success, &a.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.Success = success != 0
		a.CreatedAt = time.UnixMilli(createdAt)
		activity = append(activity, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return activity, nil
}

func (d *Database) InsertImport(fileName, ref string) error {
	query := `
		INSERT INTO imports (file_name, ref, imported_at) VALUES (?, ?, ?)
		ON CONFLICT(file_name) DO UPDATE SET
			ref         = excluded.ref,
			imported_at = excluded.imported_at
	`
	_, err := d.db.Exec(query, fileName, ref, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert import: %w", err)
	}
	return nil
}

// GetImports lists every imported file, oldest first.
func (d *Database) GetImports() ([]Import, error) {
	rows, err := d.db.Query(`SELECT file_name, ref, imported_at FROM imports ORDER BY imported_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query imports: %w", err)
	}
	defer rows.Close()

	var imports []Import
	for rows.Next() {
		var im Import
		var importedAt int64
		if err := rows.Scan(&im.FileName, &im.Ref, &importedAt); err != nil {
			return nil, fmt.Errorf("failed to scan import: %w", err)
		}
		im.ImportedAt = time.UnixMilli(importedAt)
		imports = append(imports, im)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return imports, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (d *Database) Close() error {
	return d.db.Close()
}
