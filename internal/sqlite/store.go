// Package sqlite stores relgraph objects and their foreign keys in SQLite.
// A Store is both the object source that fills collection end-points and
// the persister that writes a scope's change set.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/relgraph/internal/endpoint"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// DatabaseFile is the file name of the database inside DataDir.
const DatabaseFile = "relgraph.db"

var (
	_ endpoint.ObjectSource    = (*Store)(nil)
	_ endpoint.ChangePersister = (*Store)(nil)
)

// Store is a SQLite-backed object store.
type Store struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	mapping  *types.Mapping
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for persistence events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a store for objects described by m.
// The store is not attached; call Attach with a Config to open it.
func NewStore(m *types.Mapping, opts ...Option) *Store {
	s := &Store{mapping: m, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach opens DataDir/relgraph.db, creating the directory and the schema
// when missing.
func (s *Store) Attach(config types.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, DatabaseFile))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps transactions and reads on the same file handle.
	db.SetMaxOpenConns(1)

	for _, ddl := range append(append([]string{}, schemaDDL...), indexDDL...) {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	s.db = db
	s.config = config
	s.attached = true
	s.logger.Debug("sqlite store attached", "data_dir", dataDir)
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
		return fmt.Errorf("closing database: %w", err)
	}
	s.db = nil
	s.attached = false
	return nil
}

// readDB returns the open database under a read lock held until release.
func (s *Store) readDB() (*sql.DB, func(), error) {
	s.mu.RLock()
	if !s.attached {
		s.mu.RUnlock()
		return nil, nil, types.ErrDetached
	}
	return s.db, s.mu.RUnlock, nil
}
