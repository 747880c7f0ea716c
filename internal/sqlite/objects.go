// This file implements object and collection reads for the SQLite store.

package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// queryer is the part of *sql.DB and *sql.Tx the read helpers need.
type queryer interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
}

// LoadObject reads one object and all foreign keys it holds.
func (s *Store) LoadObject(id types.ObjectID) (types.ObjectRecord, error) {
	if id.IsZero() {
		return types.ObjectRecord{}, types.ErrInvalidID
	}
	db, release, err := s.readDB()
	if err != nil {
		return types.ObjectRecord{}, err
	}
	defer release()
	return loadRecord(db, id)
}

// LoadRelatedObjects returns every object whose foreign key points at the
// owner of id, in stored ordinal order. It fails with ErrNotFound when the
// owner is not stored.
func (s *Store) LoadRelatedObjects(id types.RelationEndPointID, def *types.EndPointDefinition) ([]types.ObjectRecord, error) {
	if !def.IsCollection() {
		return nil, fmt.Errorf("property %s is not a collection: %w", def.Property(), types.ErrUnknownProperty)
	}
	db, release, err := s.readDB()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := checkExists(db, id.ObjectID); err != nil {
		return nil, err
	}

	rows, err := db.Query(
		"SELECT object_id FROM foreign_keys WHERE property = ? AND related_id = ? ORDER BY ordinal, object_id",
		def.OppositeProperty(), id.ObjectID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", id, err)
	}
	var ids []types.ObjectID
	for rows.Next() {
		itemID, err := scanObjectID(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, itemID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating %s: %w", id, err)
	}
	rows.Close()

	records := make([]types.ObjectRecord, 0, len(ids))
	for _, itemID := range ids {
		record, err := loadRecord(db, itemID)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// ListObjects returns the ids of all stored objects of class, oldest first.
// An empty class lists every object.
func (s *Store) ListObjects(class string) ([]types.ObjectID, error) {
	db, release, err := s.readDB()
	if err != nil {
		return nil, err
	}
	defer release()

	query := "SELECT object_id FROM objects ORDER BY created_at, object_id"
	args := []any{}
	if class != "" {
		query = "SELECT object_id FROM objects WHERE class_id = ? ORDER BY created_at, object_id"
		args = append(args, class)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing objects: %w", err)
	}
	defer rows.Close()

	var ids []types.ObjectID
	for rows.Next() {
		id, err := scanObjectID(rows)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func checkExists(q queryer, id types.ObjectID) error {
	var one int
	err := q.QueryRow("SELECT 1 FROM objects WHERE object_id = ?", id.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("object %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking object %s: %w", id, err)
	}
	return nil
}

// loadRecord hydrates an ObjectRecord from the objects and foreign_keys rows.
func loadRecord(q queryer, id types.ObjectID) (types.ObjectRecord, error) {
	if err := checkExists(q, id); err != nil {
		return types.ObjectRecord{}, err
	}
	rows, err := q.Query("SELECT property, related_id FROM foreign_keys WHERE object_id = ?", id.String())
	if err != nil {
		return types.ObjectRecord{}, fmt.Errorf("querying foreign keys of %s: %w", id, err)
	}
	defer rows.Close()

	record := types.ObjectRecord{ID: id, ForeignKeys: make(map[string]types.ObjectID)}
	for rows.Next() {
		var property, related string
		if err := rows.Scan(&property, &related); err != nil {
			return types.ObjectRecord{}, fmt.Errorf("scanning foreign key of %s: %w", id, err)
		}
		relatedID, err := types.ParseObjectID(related)
		if err != nil {
			return types.ObjectRecord{}, err
		}
		record.ForeignKeys[property] = relatedID
	}
	if err := rows.Err(); err != nil {
		return types.ObjectRecord{}, fmt.Errorf("iterating foreign keys of %s: %w", id, err)
	}
	return record, nil
}

func scanObjectID(rows *sql.Rows) (types.ObjectID, error) {
	var raw string
	if err := rows.Scan(&raw); err != nil {
		return types.ObjectID{}, fmt.Errorf("scanning object id: %w", err)
	}
	return types.ParseObjectID(raw)
}
