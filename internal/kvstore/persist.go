// This file implements change persistence and seeding for the Badger store.

package kvstore

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// PersistChanges applies a change set in one badger transaction, in the
// order new objects, foreign keys, collection orders, deletions.
func (s *Store) PersistChanges(changes types.ChangeSet) error {
	now := time.Now().UTC().UnixNano()
	err := s.update(func(txn *badger.Txn) error {
		for _, id := range changes.NewObjects {
			if err := insertObject(txn, id, now); err != nil {
				return err
			}
		}
		for _, fk := range changes.ForeignKeys {
			if err := setForeignKey(txn, fk.ObjectID, fk.Property, fk.NewRelated); err != nil {
				return err
			}
		}
		for _, order := range changes.Orders {
			if err := s.writeOrder(txn, order); err != nil {
				return err
			}
		}
		for _, id := range changes.DeletedObjects {
			if err := s.deleteObject(txn, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("badger changes persisted",
		"new", len(changes.NewObjects),
		"deleted", len(changes.DeletedObjects),
		"foreign_keys", len(changes.ForeignKeys),
		"orders", len(changes.Orders))
	return nil
}

// Seed stores the records that are not present yet and returns how many it
// added. Foreign keys are written after all objects, in record order.
func (s *Store) Seed(records []types.ObjectRecord) (int, error) {
	now := time.Now().UTC().UnixNano()
	var added int
	err := s.update(func(txn *badger.Txn) error {
		var fresh []types.ObjectRecord
		for _, r := range records {
			if r.ID.IsZero() {
				return fmt.Errorf("seeding record: %w", types.ErrInvalidID)
			}
			_, err := getObject(txn, r.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, types.ErrNotFound) {
				return err
			}
			if err := putObject(txn, r.ID, objectValue{Class: r.ID.Class, CreatedAt: now}); err != nil {
				return err
			}
			fresh = append(fresh, r)
		}
		for _, r := range fresh {
			for property, related := range r.ForeignKeys {
				if err := setForeignKey(txn, r.ID, property, related); err != nil {
					return err
				}
			}
		}
		added = len(fresh)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func putObject(txn *badger.Txn, id types.ObjectID, v objectValue) error {
	data, err := encodeObject(v)
	if err != nil {
		return err
	}
	if err := txn.Set(objectKey(id), data); err != nil {
		return fmt.Errorf("writing object %s: %w", id, err)
	}
	return nil
}

func insertObject(txn *badger.Txn, id types.ObjectID, now int64) error {
	_, err := getObject(txn, id)
	if err == nil {
		return fmt.Errorf("inserting object %s: already stored", id)
	}
	if !errors.Is(err, types.ErrNotFound) {
		return err
	}
	return putObject(txn, id, objectValue{Class: id.Class, CreatedAt: now})
}

// setForeignKey moves object.property to related, appending it at the end of
// the related collection. The zero id clears the foreign key.
func setForeignKey(txn *badger.Txn, object types.ObjectID, property string, related types.ObjectID) error {
	v, err := getObject(txn, object)
	if err != nil {
		return fmt.Errorf("setting %s.%s: %w", object, property, err)
	}
	old, had := v.ForeignKeys[property]
	if had && old.Related == related.String() {
		return nil
	}
	if had {
		oldRelated, err := types.ParseObjectID(old.Related)
		if err != nil {
			return err
		}
		if err := txn.Delete(relatedKey(property, oldRelated, old.Ordinal, object)); err != nil {
			return fmt.Errorf("clearing index of %s.%s: %w", object, property, err)
		}
		delete(v.ForeignKeys, property)
	}
	if !related.IsZero() {
		entries, err := scanRelated(txn, property, related)
		if err != nil {
			return err
		}
		next := 0
		for _, e := range entries {
			next = max(next, e.ordinal+1)
		}
		if v.ForeignKeys == nil {
			v.ForeignKeys = make(map[string]fkValue)
		}
		v.ForeignKeys[property] = fkValue{Related: related.String(), Ordinal: next}
		if err := txn.Set(relatedKey(property, related, next, object), nil); err != nil {
			return fmt.Errorf("indexing %s.%s: %w", object, property, err)
		}
	}
	return putObject(txn, object, v)
}

// writeOrder renumbers the members of a collection to match its committed
// order. Items whose foreign key no longer points at the owner are skipped.
func (s *Store) writeOrder(txn *badger.Txn, order types.CollectionOrder) error {
	def, err := s.mapping.EndPoint(order.EndPoint.Property)
	if err != nil {
		return fmt.Errorf("writing order of %s: %w", order.EndPoint, err)
	}
	property := def.OppositeProperty()
	owner := order.EndPoint.ObjectID
	for i, item := range order.Items {
		v, err := getObject(txn, item)
		if err != nil {
			return fmt.Errorf("writing order of %s: %w", order.EndPoint, err)
		}
		fk, ok := v.ForeignKeys[property]
		if !ok || fk.Related != owner.String() || fk.Ordinal == i {
			continue
		}
		if err := txn.Delete(relatedKey(property, owner, fk.Ordinal, item)); err != nil {
			return fmt.Errorf("reindexing %s: %w", item, err)
		}
		if err := txn.Set(relatedKey(property, owner, i, item), nil); err != nil {
			return fmt.Errorf("reindexing %s: %w", item, err)
		}
		v.ForeignKeys[property] = fkValue{Related: fk.Related, Ordinal: i}
		if err := putObject(txn, item, v); err != nil {
			return err
		}
	}
	return nil
}

// deleteObject removes an object, its index entries, and the foreign keys of
// other objects that still point at it.
func (s *Store) deleteObject(txn *badger.Txn, id types.ObjectID) error {
	v, err := getObject(txn, id)
	if err != nil {
		return fmt.Errorf("deleting: %w", err)
	}
	for property := range v.ForeignKeys {
		if err := setForeignKey(txn, id, property, types.ObjectID{}); err != nil {
			return err
		}
	}
	for _, def := range s.mapping.EndPointsOf(id.Class) {
		if !def.IsCollection() {
			continue
		}
		entries, err := scanRelated(txn, def.OppositeProperty(), id)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := setForeignKey(txn, e.object, def.OppositeProperty(), types.ObjectID{}); err != nil {
				return err
			}
		}
	}
	if err := txn.Delete(objectKey(id)); err != nil {
		return fmt.Errorf("deleting object %s: %w", id, err)
	}
	return nil
}
