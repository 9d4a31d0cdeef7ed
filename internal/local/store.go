// Package local is the Local contact store: records with plain named fields
// plus typed sub-entries grouped in collections (emails, phones, ...).
package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/dirsync/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS contacts (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS contact_fields (
    contact_id INTEGER NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
    name       TEXT NOT NULL,
    value      TEXT NOT NULL,
    CONSTRAINT contact_fields_pk PRIMARY KEY (contact_id, name)
);
CREATE INDEX IF NOT EXISTS idx_contact_fields_lookup ON contact_fields (name, value);

CREATE TABLE IF NOT EXISTS contact_items (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    contact_id INTEGER NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
    collection TEXT NOT NULL,
    name       TEXT NOT NULL,
    value      TEXT NOT NULL,
    type       TEXT NOT NULL DEFAULT '',
    kind       TEXT NOT NULL DEFAULT '',
    label      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_contact_items_contact ON contact_items (contact_id, collection);
`

var (
	ErrStoreClosed    = errors.New("local store not open")
	ErrRecordNotFound = errors.New("record not found")
)

// Record is one contact with its plain fields. Empty fields are not stored.
type Record struct {
	ID     int64
	Fields map[string]string
}

// Item is one sub-entry of a record's collection.
type Item struct {
	ID         int64  `db:"id"`
	ContactID  int64  `db:"contact_id"`
	Collection string `db:"collection"`
	Name       string `db:"name"`
	Value      string `db:"value"`
	Type       string `db:"type"`
	Kind       string `db:"kind"`
	Label      string `db:"label"`
}

type Store struct {
	db   *sqlx.DB
	path string
}

func Open(path string) (*Store, error) {
	conn, err := db.Open(db.WithPath(path), db.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("open local store %s: %w", path, err)
	}
	return &Store{db: conn, path: path}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

type fieldRow struct {
	ContactID int64          `db:"contact_id"`
	Name      sql.NullString `db:"name"`
	Value     sql.NullString `db:"value"`
}

// QueryAll returns every record ordered by id.
func (s *Store) QueryAll(ctx context.Context) ([]Record, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	var rows []fieldRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT c.id AS contact_id, f.name, f.value
		FROM contacts c LEFT JOIN contact_fields f ON f.contact_id = c.id
		ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("query all: %w", err)
	}
	return groupRecords(rows), nil
}

// QueryByIdentifier returns the records whose field idField equals id,
// ordered by record id.
func (s *Store) QueryByIdentifier(ctx context.Context, idField, id string) ([]Record, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	var rows []fieldRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT f.contact_id, f.name, f.value
		FROM contact_fields f
		WHERE f.contact_id IN (SELECT contact_id FROM contact_fields WHERE name = ? AND value = ?)
		ORDER BY f.contact_id`, idField, id)
	if err != nil {
		return nil, fmt.Errorf("query %s=%q: %w", idField, id, err)
	}
	return groupRecords(rows), nil
}

func groupRecords(rows []fieldRow) []Record {
	var out []Record
	for _, r := range rows {
		if len(out) == 0 || out[len(out)-1].ID != r.ContactID {
			out = append(out, Record{ID: r.ContactID, Fields: map[string]string{}})
		}
		if r.Name.Valid {
			out[len(out)-1].Fields[r.Name.String] = r.Value.String
		}
	}
	return out
}

// Get returns a single record.
func (s *Store) Get(ctx context.Context, id int64) (Record, error) {
	if s.db == nil {
		return Record{}, ErrStoreClosed
	}
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM contacts WHERE id = ?", id); err != nil {
		return Record{}, fmt.Errorf("get %d: %w", id, err)
	}
	if n == 0 {
		return Record{}, fmt.Errorf("get %d: %w", id, ErrRecordNotFound)
	}
	var rows []fieldRow
	err := s.db.SelectContext(ctx, &rows, "SELECT contact_id, name, value FROM contact_fields WHERE contact_id = ?", id)
	if err != nil {
		return Record{}, fmt.Errorf("get %d: %w", id, err)
	}
	rec := Record{ID: id, Fields: map[string]string{}}
	for _, r := range rows {
		rec.Fields[r.Name.String] = r.Value.String
	}
	return rec, nil
}

// InsertRecord creates a record with its fields and sub-entries in one
// transaction and returns the new record id.
func (s *Store) InsertRecord(ctx context.Context, fields map[string]string, items []Item) (int64, error) {
	if s.db == nil {
		return 0, ErrStoreClosed
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "INSERT INTO contacts DEFAULT VALUES")
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	if err := setFields(ctx, tx, id, fields); err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	for _, it := range items {
		it.ContactID = id
		if _, err := insertItem(ctx, tx, it); err != nil {
			return 0, fmt.Errorf("insert record: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert record: commit: %w", err)
	}
	slog.Debug("local insert", "record", id, "fields", len(fields), "items", len(items))
	return id, nil
}

// UpdateRecord sets the given fields. An empty value removes the field.
func (s *Store) UpdateRecord(ctx context.Context, id int64, fields map[string]string) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update record %d: %w", id, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "UPDATE contacts SET updated_at = CURRENT_TIMESTAMP WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("update record %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update record %d: %w", id, ErrRecordNotFound)
	}
	if err := setFields(ctx, tx, id, fields); err != nil {
		return fmt.Errorf("update record %d: %w", id, err)
	}
	return tx.Commit()
}

func setFields(ctx context.Context, tx *sqlx.Tx, id int64, fields map[string]string) error {
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		value := fields[name]
		if value == "" {
			if _, err := tx.ExecContext(ctx, "DELETE FROM contact_fields WHERE contact_id = ? AND name = ?", id, name); err != nil {
				return err
			}
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO contact_fields (contact_id, name, value) VALUES (?, ?, ?)
			ON CONFLICT (contact_id, name) DO UPDATE SET value = excluded.value`, id, name, value)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteRecord removes a record with its fields and sub-entries.
func (s *Store) DeleteRecord(ctx context.Context, id int64) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete record %d: %w", id, err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM contact_items WHERE contact_id = ?",
		"DELETE FROM contact_fields WHERE contact_id = ?",
		"DELETE FROM contacts WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete record %d: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete record %d: commit: %w", id, err)
	}
	slog.Debug("local delete", "record", id)
	return nil
}

// ListItems returns the sub-entries of one collection ordered by item id.
func (s *Store) ListItems(ctx context.Context, recordID int64, collection string) ([]Item, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	var items []Item
	err := s.db.SelectContext(ctx, &items, `
		SELECT id, contact_id, collection, name, value, type, kind, label
		FROM contact_items WHERE contact_id = ? AND collection = ?
		ORDER BY id`, recordID, collection)
	if err != nil {
		return nil, fmt.Errorf("list items %d/%s: %w", recordID, collection, err)
	}
	return items, nil
}

func (s *Store) InsertItem(ctx context.Context, item Item) (int64, error) {
	if s.db == nil {
		return 0, ErrStoreClosed
	}
	id, err := insertItem(ctx, s.db, item)
	if err != nil {
		return 0, fmt.Errorf("insert item %d/%s: %w", item.ContactID, item.Collection, err)
	}
	return id, nil
}

func (s *Store) DeleteItem(ctx context.Context, itemID int64) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM contact_items WHERE id = ?", itemID); err != nil {
		return fmt.Errorf("delete item %d: %w", itemID, err)
	}
	return nil
}

// ReplaceItems deletes the items in remove and inserts add, atomically.
func (s *Store) ReplaceItems(ctx context.Context, remove []int64, add []Item) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace items: %w", err)
	}
	defer tx.Rollback()

	for _, id := range remove {
		if _, err := tx.ExecContext(ctx, "DELETE FROM contact_items WHERE id = ?", id); err != nil {
			return fmt.Errorf("replace items: delete %d: %w", id, err)
		}
	}
	for _, it := range add {
		if _, err := insertItem(ctx, tx, it); err != nil {
			return fmt.Errorf("replace items: insert: %w", err)
		}
	}
	return tx.Commit()
}

// Count returns the number of records.
func (s *Store) Count(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, ErrStoreClosed
	}
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM contacts"); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func insertItem(ctx context.Context, ext sqlx.ExtContext, it Item) (int64, error) {
	res, err := sqlx.NamedExecContext(ctx, ext, `
		INSERT INTO contact_items (contact_id, collection, name, value, type, kind, label)
		VALUES (:contact_id, :collection, :name, :value, :type, :kind, :label)`, it)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
