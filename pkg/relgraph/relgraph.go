// Package relgraph opens a relation graph: a mapping, a backing store, and
// the change-tracking scopes that edit objects in it.
//
// Example:
//
//	g, err := relgraph.Open(types.Config{
//	    Backend:     types.BackendSQLite,
//	    DataDir:     ".relgraph/data",
//	    MappingFile: ".relgraph/mapping.yaml",
//	})
//	defer g.Close()
//	scope, err := g.NewScope()
//	orders, err := scope.Collection(customer, "Customer.Orders")
//	err = orders.Add(order)
//	err = g.Save(scope)
package relgraph

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/mesh-intelligence/relgraph/internal/endpoint"
	"github.com/mesh-intelligence/relgraph/internal/kvstore"
	"github.com/mesh-intelligence/relgraph/internal/mapping"
	"github.com/mesh-intelligence/relgraph/internal/observe"
	"github.com/mesh-intelligence/relgraph/internal/sqlite"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// Version is the relgraph release.
const Version = "0.3.0"

// Store is a backing store for objects and their foreign keys.
type Store interface {
	Attach(config types.Config) error
	Detach() error
	LoadObject(id types.ObjectID) (types.ObjectRecord, error)
	LoadRelatedObjects(id types.RelationEndPointID, def *types.EndPointDefinition) ([]types.ObjectRecord, error)
	PersistChanges(changes types.ChangeSet) error
	Seed(records []types.ObjectRecord) (int, error)
	ListObjects(class string) ([]types.ObjectID, error)
}

var (
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*kvstore.Store)(nil)
)

// NewStore returns an unattached store for backend.
func NewStore(backend string, m *types.Mapping, logger *slog.Logger) (Store, error) {
	switch backend {
	case types.BackendSQLite:
		return sqlite.NewStore(m, sqlite.WithLogger(logger)), nil
	case types.BackendBadger:
		return kvstore.NewStore(m, kvstore.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("backend %q: %w", backend, types.ErrBackendUnknown)
	}
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	meterProvider metric.MeterProvider
}

// WithLogger sets the logger for stores and end-point events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMeterProvider records end-point and store metrics on mp.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// Graph is an opened mapping plus its attached store.
type Graph struct {
	mapping *types.Mapping
	store   Store
	logger  *slog.Logger
	metrics *observe.Metrics
}

// Open validates config, loads the mapping file, and attaches the store.
func Open(config types.Config, opts ...Option) (*Graph, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	m, err := mapping.LoadFile(config.MappingFile)
	if err != nil {
		return nil, err
	}

	var met *observe.Metrics
	if o.meterProvider != nil {
		if met, err = observe.NewMetrics(o.meterProvider); err != nil {
			return nil, fmt.Errorf("creating metrics: %w", err)
		}
	}

	store, err := NewStore(config.Backend, m, o.logger)
	if err != nil {
		return nil, err
	}
	if err := store.Attach(config); err != nil {
		return nil, fmt.Errorf("attaching %s store: %w", config.Backend, err)
	}
	return &Graph{mapping: m, store: store, logger: o.logger, metrics: met}, nil
}

// Mapping returns the loaded mapping.
func (g *Graph) Mapping() *types.Mapping { return g.mapping }

// Store returns the attached store.
func (g *Graph) Store() Store { return g.store }

// NewScope returns a fresh top-level scope reading from the store.
func (g *Graph) NewScope() (*endpoint.Manager, error) {
	var source endpoint.ObjectSource = g.store
	ll := observe.NewLogListener(g.logger)
	listeners := endpoint.Listeners{ll}
	relations := endpoint.RelationChangeListeners{ll}
	if g.metrics != nil {
		source = observe.InstrumentSource(source, g.metrics)
		ml := observe.NewMetricsListener(g.metrics)
		listeners = append(listeners, ml)
		relations = append(relations, ml)
	}
	return endpoint.NewManager(g.mapping,
		endpoint.WithSource(source),
		endpoint.WithListener(listeners),
		endpoint.WithRelationChangeListener(relations),
	)
}

// Save persists scope's changes and commits it.
func (g *Graph) Save(scope *endpoint.Manager) error {
	return scope.Save(g.store)
}

// Close detaches the store.
func (g *Graph) Close() error {
	return g.store.Detach()
}
