// Package fetchcache keeps a SQLite journal of fetched document pages so an
// interrupted fetch run can resume instead of starting over.
package fetchcache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Cache is the fetch journal.
type Cache struct {
	db *sql.DB
}

// Open creates or opens the journal at the given path.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open fetch cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	c := &Cache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate fetch cache: %w", err)
	}
	return c, nil
}

func (c *Cache) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		ark TEXT PRIMARY KEY,
		pages INTEGER NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pages (
		ark TEXT NOT NULL,
		view INTEGER NOT NULL,
		path TEXT NOT NULL,
		fetched_at DATETIME NOT NULL,
		PRIMARY KEY (ark, view)
	);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// PageCount returns the recorded number of views for a document, with ok
// false when the document was never seen.
func (c *Cache) PageCount(ark string) (int, bool, error) {
	var n int
	err := c.db.QueryRow(`SELECT pages FROM documents WHERE ark = ?`, ark).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query page count: %w", err)
	}
	return n, true, nil
}

// SetPageCount records the number of views of a document.
func (c *Cache) SetPageCount(ark string, pages int) error {
	_, err := c.db.Exec(`
		INSERT INTO documents (ark, pages, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(ark) DO UPDATE SET pages = excluded.pages, updated_at = excluded.updated_at
	`, ark, pages, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record page count: %w", err)
	}
	return nil
}

// Fetched reports whether a page of a document was already downloaded.
func (c *Cache) Fetched(ark string, view int) (bool, error) {
	var one int
	err := c.db.QueryRow(`SELECT 1 FROM pages WHERE ark = ? AND view = ?`, ark, view).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query fetched page: %w", err)
	}
	return true, nil
}

// MarkFetched records a downloaded page and where it was stored.
func (c *Cache) MarkFetched(ark string, view int, path string) error {
	_, err := c.db.Exec(`
		INSERT INTO pages (ark, view, path, fetched_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(ark, view) DO UPDATE SET path = excluded.path, fetched_at = excluded.fetched_at
	`, ark, view, path, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record fetched page: %w", err)
	}
	return nil
}

// FetchedCount returns how many pages of a document are already journaled.
func (c *Cache) FetchedCount(ark string) (int, error) {
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM pages WHERE ark = ?`, ark).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count fetched pages: %w", err)
	}
	return n, nil
}
