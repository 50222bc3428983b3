// Package favorites persists named URL bookmarks, including the search engine
// templates the operator expands with a keyword.
package favorites

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// Favorite is one named bookmark. The URL may contain {keyword},
// {timestamp_s} and {timestamp_ms} placeholders expanded at visit time.
type Favorite struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Store persists favorites in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the favorites database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open favorites db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS favorites (
			name TEXT PRIMARY KEY,
			url  TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create favorites table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Set inserts or replaces a favorite.
func (s *Store) Set(name, url string) error {
	_, err := s.db.Exec(
		"INSERT INTO favorites (name, url) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET url = excluded.url",
		name, url,
	)
	if err != nil {
		return fmt.Errorf("save favorite %q: %w", name, err)
	}
	return nil
}

// Get looks a favorite up by name. Reports whether it exists.
func (s *Store) Get(name string) (string, bool, error) {
	var url string
	err := s.db.QueryRow("SELECT url FROM favorites WHERE name = ?", name).Scan(&url)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load favorite %q: %w", name, err)
	}
	return url, true, nil
}

// Remove deletes a favorite by name. Reports whether it existed.
func (s *Store) Remove(name string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM favorites WHERE name = ?", name)
	if err != nil {
		return false, fmt.Errorf("remove favorite %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Names lists favorite names in insertion order.
func (s *Store) Names() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM favorites ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// List returns all favorites in insertion order.
func (s *Store) List() ([]Favorite, error) {
	rows, err := s.db.Query("SELECT name, url FROM favorites ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	var favorites []Favorite
	for rows.Next() {
		var f Favorite
		if err := rows.Scan(&f.Name, &f.URL); err != nil {
			return nil, err
		}
		favorites = append(favorites, f)
	}
	return favorites, rows.Err()
}

// Clear removes every favorite.
func (s *Store) Clear() error {
	if _, err := s.db.Exec("DELETE FROM favorites"); err != nil {
		return fmt.Errorf("clear favorites: %w", err)
	}
	return nil
}

// Seed inserts defaults for any name not already present.
func (s *Store) Seed(defaults []Favorite) error {
	for _, f := range defaults {
		_, err := s.db.Exec(
			"INSERT INTO favorites (name, url) VALUES (?, ?) ON CONFLICT(name) DO NOTHING",
			f.Name, f.URL,
		)
		if err != nil {
			return fmt.Errorf("seed favorite %q: %w", f.Name, err)
		}
	}
	return nil
}
