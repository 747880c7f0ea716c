// This file implements change persistence and seeding for the SQLite store.

package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// PersistChanges writes a change set in one transaction: new objects first,
// then foreign keys, then collection orders, then deletions. Either all of
// it is stored or none.
func (s *Store) PersistChanges(changes types.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return types.ErrDetached
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning persist transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, id := range changes.NewObjects {
		if err := insertObject(tx, id, now); err != nil {
			return err
		}
	}
	for _, fk := range changes.ForeignKeys {
		if err := setForeignKey(tx, fk.ObjectID, fk.Property, fk.NewRelated); err != nil {
			return err
		}
	}
	for _, order := range changes.Orders {
		if err := s.writeOrder(tx, order); err != nil {
			return err
		}
	}
	for _, id := range changes.DeletedObjects {
		if err := deleteObject(tx, id); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing persist transaction: %w", err)
	}
	s.logger.Debug("sqlite changes persisted",
		"new", len(changes.NewObjects),
		"deleted", len(changes.DeletedObjects),
		"foreign_keys", len(changes.ForeignKeys),
		"orders", len(changes.Orders))
	return nil
}

// Seed inserts records that are not stored yet, together with their foreign
// keys, and returns how many objects it added. Foreign keys get ordinals in
// record order. Records already present are left untouched.
func (s *Store) Seed(records []types.ObjectRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return 0, types.ErrDetached
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning seed transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	var added []types.ObjectRecord
	for _, r := range records {
		if r.ID.IsZero() {
			return 0, fmt.Errorf("seeding record: %w", types.ErrInvalidID)
		}
		res, err := tx.Exec(
			"INSERT OR IGNORE INTO objects (object_id, class_id, created_at) VALUES (?, ?, ?)",
			r.ID.String(), r.ID.Class, now,
		)
		if err != nil {
			return 0, fmt.Errorf("seeding object %s: %w", r.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			added = append(added, r)
		}
	}
	// Foreign keys go in after every object so records may point forward.
	for _, r := range added {
		for property, related := range r.ForeignKeys {
			if err := setForeignKey(tx, r.ID, property, related); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing seed transaction: %w", err)
	}
	return len(added), nil
}

func insertObject(tx *sql.Tx, id types.ObjectID, createdAt string) error {
	_, err := tx.Exec(
		"INSERT INTO objects (object_id, class_id, created_at) VALUES (?, ?, ?)",
		id.String(), id.Class, createdAt,
	)
	if err != nil {
		return fmt.Errorf("inserting object %s: %w", id, err)
	}
	return nil
}

// setForeignKey stores object.property = related. A moved foreign key is
// appended at the end of its new collection; the zero id removes the row.
func setForeignKey(tx *sql.Tx, object types.ObjectID, property string, related types.ObjectID) error {
	if related.IsZero() {
		if _, err := tx.Exec("DELETE FROM foreign_keys WHERE object_id = ? AND property = ?", object.String(), property); err != nil {
			return fmt.Errorf("clearing %s.%s: %w", object, property, err)
		}
		return nil
	}

	var current string
	err := tx.QueryRow(
		"SELECT related_id FROM foreign_keys WHERE object_id = ? AND property = ?",
		object.String(), property,
	).Scan(&current)
	switch {
	case err == nil && current == related.String():
		return nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("reading %s.%s: %w", object, property, err)
	}

	var next int
	if err := tx.QueryRow(
		"SELECT COALESCE(MAX(ordinal) + 1, 0) FROM foreign_keys WHERE property = ? AND related_id = ?",
		property, related.String(),
	).Scan(&next); err != nil {
		return fmt.Errorf("computing ordinal for %s.%s: %w", object, property, err)
	}

	_, err = tx.Exec(
		`INSERT INTO foreign_keys (object_id, property, related_id, ordinal) VALUES (?, ?, ?, ?)
         ON CONFLICT(object_id, property) DO UPDATE SET related_id = excluded.related_id, ordinal = excluded.ordinal`,
		object.String(), property, related.String(), next,
	)
	if err != nil {
		return fmt.Errorf("setting %s.%s: %w", object, property, err)
	}
	return nil
}

// writeOrder renumbers the foreign keys of a collection to match its
// committed order.
func (s *Store) writeOrder(tx *sql.Tx, order types.CollectionOrder) error {
	def, err := s.mapping.EndPoint(order.EndPoint.Property)
	if err != nil {
		return fmt.Errorf("writing order of %s: %w", order.EndPoint, err)
	}
	property := def.OppositeProperty()
	owner := order.EndPoint.ObjectID.String()
	for i, item := range order.Items {
		if _, err := tx.Exec(
			"UPDATE foreign_keys SET ordinal = ? WHERE object_id = ? AND property = ? AND related_id = ?",
			i, item.String(), property, owner,
		); err != nil {
			return fmt.Errorf("writing ordinal of %s in %s: %w", item, order.EndPoint, err)
		}
	}
	return nil
}

// deleteObject removes an object, the foreign keys it holds, and any foreign
// keys still pointing at it.
func deleteObject(tx *sql.Tx, id types.ObjectID) error {
	raw := id.String()
	if _, err := tx.Exec("DELETE FROM foreign_keys WHERE object_id = ? OR related_id = ?", raw, raw); err != nil {
		return fmt.Errorf("deleting foreign keys of %s: %w", id, err)
	}
	if _, err := tx.Exec("DELETE FROM objects WHERE object_id = ?", raw); err != nil {
		return fmt.Errorf("deleting object %s: %w", id, err)
	}
	return nil
}
