// Package ledger persists the fingerprint of every synced (entity, field)
// pair as of the last pass that agreed on it.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/dirsync/internal/db"
	"github.com/openmined/dirsync/internal/field"
)

const schema = `
CREATE TABLE IF NOT EXISTS checksum (
    entity_id   TEXT NOT NULL,
    field       TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    updated_at  TEXT NOT NULL, -- RFC3339
    CONSTRAINT checksum_pk PRIMARY KEY (entity_id, field)
);
`

const dropSchema = `DROP TABLE IF EXISTS checksum;`

var ErrLedgerClosed = errors.New("ledger not open")

// Entry is one ledger row.
type Entry struct {
	EntityID    string            `db:"entity_id"`
	Field       string            `db:"field"`
	Fingerprint field.Fingerprint `db:"fingerprint"`
	UpdatedAt   string            `db:"updated_at"`
}

// Ledger is the SQLite backed checksum store. Every mutation is a single
// autocommitted statement.
type Ledger struct {
	db     *sqlx.DB
	dbPath string
}

// Open opens or creates the ledger at dbPath. db.MemoryPath gives a
// throwaway ledger.
func Open(dbPath string) (*Ledger, error) {
	conn, err := db.Open(db.WithPath(dbPath), db.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", dbPath, err)
	}
	slog.Debug("ledger open", "path", dbPath)
	return &Ledger{db: conn, dbPath: dbPath}, nil
}

func (l *Ledger) Path() string { return l.dbPath }

// Close releases the database handle. Closing twice is a no-op.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	if err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	slog.Debug("ledger closed", "path", l.dbPath)
	return nil
}

// Has reports whether any field of entityID has been recorded.
func (l *Ledger) Has(ctx context.Context, entityID string) (bool, error) {
	if l.db == nil {
		return false, ErrLedgerClosed
	}
	var n int
	err := l.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM checksum WHERE entity_id = ?", entityID)
	if err != nil {
		return false, fmt.Errorf("ledger has %q: %w", entityID, err)
	}
	return n > 0, nil
}

// Get returns the recorded fingerprint or field.Absent.
func (l *Ledger) Get(ctx context.Context, entityID, fieldName string) (field.Fingerprint, error) {
	if l.db == nil {
		return field.Absent, ErrLedgerClosed
	}
	var fp string
	err := l.db.GetContext(ctx, &fp, "SELECT fingerprint FROM checksum WHERE entity_id = ? AND field = ?", entityID, fieldName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return field.Absent, nil
		}
		return field.Absent, fmt.Errorf("ledger get %q/%q: %w", entityID, fieldName, err)
	}
	return field.Fingerprint(fp), nil
}

// Put upserts the fingerprint. Putting field.Absent removes the row, an
// absent value is never stored.
func (l *Ledger) Put(ctx context.Context, entityID, fieldName string, fp field.Fingerprint) error {
	if fp.IsAbsent() {
		return l.Remove(ctx, entityID, fieldName)
	}
	if l.db == nil {
		return ErrLedgerClosed
	}

	row := map[string]any{
		"entity_id":   entityID,
		"field":       fieldName,
		"fingerprint": string(fp),
		"updated_at":  time.Now().UTC().Format(time.RFC3339),
	}
	query := `INSERT INTO checksum (entity_id, field, fingerprint, updated_at)
	          VALUES (:entity_id, :field, :fingerprint, :updated_at)
	          ON CONFLICT (entity_id, field) DO UPDATE SET
	              fingerprint = excluded.fingerprint,
	              updated_at = excluded.updated_at`
	if _, err := l.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("ledger put %q/%q: %w", entityID, fieldName, err)
	}
	slog.Debug("ledger put", "id", entityID, "field", fieldName, "fingerprint", fp.Short())
	return nil
}

// Remove deletes one field row.
func (l *Ledger) Remove(ctx context.Context, entityID, fieldName string) error {
	if l.db == nil {
		return ErrLedgerClosed
	}
	_, err := l.db.ExecContext(ctx, "DELETE FROM checksum WHERE entity_id = ? AND field = ?", entityID, fieldName)
	if err != nil {
		return fmt.Errorf("ledger remove %q/%q: %w", entityID, fieldName, err)
	}
	return nil
}

// RemoveAll purges every row of entityID.
func (l *Ledger) RemoveAll(ctx context.Context, entityID string) error {
	if l.db == nil {
		return ErrLedgerClosed
	}
	_, err := l.db.ExecContext(ctx, "DELETE FROM checksum WHERE entity_id = ?", entityID)
	if err != nil {
		return fmt.Errorf("ledger remove all %q: %w", entityID, err)
	}
	slog.Debug("ledger purge", "id", entityID)
	return nil
}

// Entries lists the rows of one entity ordered by field.
func (l *Ledger) Entries(ctx context.Context, entityID string) ([]Entry, error) {
	if l.db == nil {
		return nil, ErrLedgerClosed
	}
	var rows []Entry
	err := l.db.SelectContext(ctx, &rows,
		"SELECT entity_id, field, fingerprint, updated_at FROM checksum WHERE entity_id = ? ORDER BY field", entityID)
	if err != nil {
		return nil, fmt.Errorf("ledger entries %q: %w", entityID, err)
	}
	return rows, nil
}

// Stats summarizes the ledger content.
type Stats struct {
	Entities int `db:"entities" json:"entities"`
	Rows     int `db:"row_count" json:"rows"`
}

func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if l.db == nil {
		return st, ErrLedgerClosed
	}
	err := l.db.GetContext(ctx, &st, "SELECT COUNT(DISTINCT entity_id) AS entities, COUNT(*) AS row_count FROM checksum")
	if err != nil {
		return st, fmt.Errorf("ledger stats: %w", err)
	}
	return st, nil
}

// Clean drops and recreates the table. The next pass then treats every
// entity as never synced; neither live store is touched.
func (l *Ledger) Clean(ctx context.Context) error {
	if l.db == nil {
		return ErrLedgerClosed
	}
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger clean: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, dropSchema); err != nil {
		return fmt.Errorf("ledger clean: drop: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ledger clean: create: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger clean: commit: %w", err)
	}
	slog.Info("ledger cleaned", "path", l.dbPath)
	return nil
}
