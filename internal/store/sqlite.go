package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Yoriyari/e621-Tags-by-Year/internal/domain"
)

//go:embed schema.sql
var schema string

// SQLite is the indexed result store, keyed by lowercased tag text. It
// carries the same semantics as the CSV table: first-seen casing is
// retained, missing tags are appended, an upsert replaces a record's
// year counts wholesale.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) a sqlite-backed store.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Known reports whether a tag already has a record.
func (s *SQLite) Known(tag string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(1) FROM tags WHERE tag_key = ?",
		strings.ToLower(tag),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("look up tag: %w", err)
	}
	return n > 0, nil
}

// Upsert merges one tag record. An existing row keeps its stored tag
// text; its year counts are replaced with the given ones.
func (s *SQLite) Upsert(rec domain.Record, years []int) error {
	key := strings.ToLower(rec.Tag)
	now := time.Now()

	var id string
	err := s.db.QueryRow("SELECT id FROM tags WHERE tag_key = ?", key).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.New().String()
		_, err = s.db.Exec(
			"INSERT INTO tags (id, tag, tag_key, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			id, rec.Tag, key, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
	case err != nil:
		return fmt.Errorf("find tag: %w", err)
	default:
		if _, err := s.db.Exec("UPDATE tags SET updated_at = ? WHERE id = ?", now, id); err != nil {
			return fmt.Errorf("touch tag: %w", err)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM year_counts WHERE tag_id = ?", id); err != nil {
		return fmt.Errorf("clear year counts: %w", err)
	}
	for _, year := range years {
		_, err := tx.Exec(
			"INSERT INTO year_counts (tag_id, year, count) VALUES (?, ?, ?)",
			id, year, rec.Counts[year],
		)
		if err != nil {
			return fmt.Errorf("insert year count: %w", err)
		}
	}

	return tx.Commit()
}

// Record returns a tag's stored record, matched case-insensitively, or
// nil when the tag is unknown.
func (s *SQLite) Record(tag string) (*domain.Record, error) {
	var id, stored string
	err := s.db.QueryRow(
		"SELECT id, tag FROM tags WHERE tag_key = ?",
		strings.ToLower(tag),
	).Scan(&id, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tag: %w", err)
	}

	rows, err := s.db.Query("SELECT year, count FROM year_counts WHERE tag_id = ? ORDER BY year", id)
	if err != nil {
		return nil, fmt.Errorf("get year counts: %w", err)
	}
	defer rows.Close()

	rec := &domain.Record{Tag: stored, Counts: make(map[int]int)}
	for rows.Next() {
		var year, count int
		if err := rows.Scan(&year, &count); err != nil {
			return nil, fmt.Errorf("scan year count: %w", err)
		}
		rec.Counts[year] = count
	}
	return rec, rows.Err()
}
