// Package kvstore stores relgraph objects in BadgerDB. Each object is one
// msgpack value; a reverse index keyed by property, related object and
// ordinal answers collection loads with a single prefix scan.
package kvstore

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/mesh-intelligence/relgraph/internal/endpoint"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// DatabaseDir is the directory of the badger files inside DataDir.
const DatabaseDir = "badger"

var (
	_ endpoint.ObjectSource    = (*Store)(nil)
	_ endpoint.ChangePersister = (*Store)(nil)
)

// Store is a BadgerDB-backed object store. An empty DataDir runs badger in
// memory.
type Store struct {
	mu       sync.RWMutex
	attached bool
	db       *badger.DB
	mapping  *types.Mapping
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for store events and badger's own warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates an unattached store for objects described by m.
func NewStore(m *types.Mapping, opts ...Option) *Store {
	s := &Store{mapping: m, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach opens the badger database under config.DataDir.
func (s *Store) Attach(config types.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	var opts badger.Options
	if config.DataDir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(filepath.Join(config.DataDir, DatabaseDir))
	}
	opts = opts.WithLogger(badgerLogger{s.logger})

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger: %w", err)
	}
	s.db = db
	s.attached = true
	s.logger.Debug("badger store attached", "data_dir", config.DataDir, "in_memory", config.DataDir == "")
	return nil
}

// Detach closes the database. Detach is idempotent.
func (s *Store) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing badger: %w", err)
	}
	s.db = nil
	s.attached = false
	return nil
}

func (s *Store) view(fn func(txn *badger.Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.attached {
		return types.ErrDetached
	}
	return s.db.View(fn)
}

func (s *Store) update(fn func(txn *badger.Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return types.ErrDetached
	}
	return s.db.Update(fn)
}

// LoadObject reads one object and its foreign keys.
func (s *Store) LoadObject(id types.ObjectID) (types.ObjectRecord, error) {
	if id.IsZero() {
		return types.ObjectRecord{}, types.ErrInvalidID
	}
	var record types.ObjectRecord
	err := s.view(func(txn *badger.Txn) error {
		v, err := getObject(txn, id)
		if err != nil {
			return err
		}
		record, err = v.record(id)
		return err
	})
	return record, err
}

// LoadRelatedObjects returns the objects whose foreign key points at the
// owner of id, in ordinal order.
func (s *Store) LoadRelatedObjects(id types.RelationEndPointID, def *types.EndPointDefinition) ([]types.ObjectRecord, error) {
	if !def.IsCollection() {
		return nil, fmt.Errorf("property %s is not a collection: %w", def.Property(), types.ErrUnknownProperty)
	}
	var records []types.ObjectRecord
	err := s.view(func(txn *badger.Txn) error {
		if _, err := getObject(txn, id.ObjectID); err != nil {
			return err
		}
		entries, err := scanRelated(txn, def.OppositeProperty(), id.ObjectID)
		if err != nil {
			return err
		}
		records = make([]types.ObjectRecord, 0, len(entries))
		for _, e := range entries {
			v, err := getObject(txn, e.object)
			if err != nil {
				return err
			}
			r, err := v.record(e.object)
			if err != nil {
				return err
			}
			records = append(records, r)
		}
		return nil
	})
	return records, err
}

// ListObjects returns the ids of stored objects of class in id order. An
// empty class lists every object.
func (s *Store) ListObjects(class string) ([]types.ObjectID, error) {
	var ids []types.ObjectID
	err := s.view(func(txn *badger.Txn) error {
		prefix := objectPrefix()
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := types.ParseObjectID(string(it.Item().Key()[len(prefix):]))
			if err != nil {
				return err
			}
			if class == "" || id.Class == class {
				ids = append(ids, id)
			}
		}
		return nil
	})
	return ids, err
}

func getObject(txn *badger.Txn, id types.ObjectID) (objectValue, error) {
	item, err := txn.Get(objectKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return objectValue{}, fmt.Errorf("object %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return objectValue{}, fmt.Errorf("reading object %s: %w", id, err)
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return objectValue{}, fmt.Errorf("reading object %s: %w", id, err)
	}
	return decodeObject(data)
}

// indexEntry is one decoded reverse-index key.
type indexEntry struct {
	key     []byte
	ordinal int
	object  types.ObjectID
}

// scanRelated lists the index entries of property pointing at related. The
// iterator is closed before it returns so callers may write to txn.
func scanRelated(txn *badger.Txn, property string, related types.ObjectID) ([]indexEntry, error) {
	prefix := relatedPrefix(property, related)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var entries []indexEntry
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().KeyCopy(nil)
		ordinal, object, err := parseRelatedKey(prefix, key)
		if err != nil {
			return nil, err
		}
		entries = append(entries, indexEntry{key: key, ordinal: ordinal, object: object})
	}
	return entries, nil
}

// badgerLogger routes badger's log output to slog. Info and debug chatter
// is dropped.
type badgerLogger struct {
	l *slog.Logger
}

func (b badgerLogger) Errorf(f string, v ...any) { b.l.Error(fmt.Sprintf("badger: "+f, v...)) }

func (b badgerLogger) Warningf(f string, v ...any) { b.l.Warn(fmt.Sprintf("badger: "+f, v...)) }

func (badgerLogger) Infof(string, ...any) {}

func (badgerLogger) Debugf(string, ...any) {}
