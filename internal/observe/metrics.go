// Package observe reports end-point activity through OpenTelemetry metrics
// and structured logs. Both reporters plug into an endpoint.Manager as
// listeners; InstrumentSource wraps an object source to time store reads.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mesh-intelligence/relgraph/internal/endpoint"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// meterName is the instrumentation scope of all relgraph metrics.
const meterName = "github.com/mesh-intelligence/relgraph"

// Metrics holds the relgraph metric instruments. Instruments are safe for
// concurrent use.
type Metrics struct {
	// Incompletions counts end-points that dropped their loaded data.
	// Attribute: property.
	Incompletions metric.Int64Counter

	// StateUpdates counts cached change-state updates.
	// Attributes: property, state.
	StateUpdates metric.Int64Counter

	// DataReplaced counts collection data replacements.
	// Attribute: property.
	DataReplaced metric.Int64Counter

	// RelationChanges counts completed relation edits.
	// Attribute: property.
	RelationChanges metric.Int64Counter

	// SourceReads counts reads against the backing store.
	// Attributes: op, status.
	SourceReads metric.Int64Counter

	// SourceReadDuration tracks backing store read latency.
	// Attribute: op.
	SourceReadDuration metric.Float64Histogram
}

var readBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1,
}

// NewMetrics creates the instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Incompletions, err = m.Int64Counter("relgraph.endpoint.incompletions",
		metric.WithDescription("End-points that became incomplete."),
	); err != nil {
		return nil, err
	}
	if met.StateUpdates, err = m.Int64Counter("relgraph.endpoint.state_updates",
		metric.WithDescription("Cached change-state updates by property and state."),
	); err != nil {
		return nil, err
	}
	if met.DataReplaced, err = m.Int64Counter("relgraph.endpoint.data_replaced",
		metric.WithDescription("Collection data replacements by property."),
	); err != nil {
		return nil, err
	}
	if met.RelationChanges, err = m.Int64Counter("relgraph.relation.changes",
		metric.WithDescription("Completed relation edits by property."),
	); err != nil {
		return nil, err
	}
	if met.SourceReads, err = m.Int64Counter("relgraph.source.reads",
		metric.WithDescription("Backing store reads by operation and status."),
	); err != nil {
		return nil, err
	}
	if met.SourceReadDuration, err = m.Float64Histogram("relgraph.source.read.duration",
		metric.WithDescription("Backing store read latency by operation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(readBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

func propertyAttr(id types.RelationEndPointID) attribute.KeyValue {
	return attribute.String("property", id.Property)
}

var (
	_ endpoint.Listener               = (*MetricsListener)(nil)
	_ endpoint.RelationChangeListener = (*MetricsListener)(nil)
)

// MetricsListener records end-point events on a Metrics instance.
type MetricsListener struct {
	m *Metrics
}

// NewMetricsListener returns a listener recording on m.
func NewMetricsListener(m *Metrics) *MetricsListener {
	return &MetricsListener{m: m}
}

func (l *MetricsListener) EndPointBecomingIncomplete(id types.RelationEndPointID) {
	l.m.Incompletions.Add(context.Background(), 1, metric.WithAttributes(propertyAttr(id)))
}

func (l *MetricsListener) EndPointStateUpdated(id types.RelationEndPointID, state types.ChangeState) {
	l.m.StateUpdates.Add(context.Background(), 1, metric.WithAttributes(
		propertyAttr(id),
		attribute.String("state", state.String()),
	))
}

func (l *MetricsListener) EndPointDataReplaced(id types.RelationEndPointID) {
	l.m.DataReplaced.Add(context.Background(), 1, metric.WithAttributes(propertyAttr(id)))
}

// RelationChanging never vetoes.
func (l *MetricsListener) RelationChanging(types.RelationEndPointID, types.ObjectID, types.ObjectID) error {
	return nil
}

func (l *MetricsListener) RelationChanged(id types.RelationEndPointID, _, _ types.ObjectID) {
	l.m.RelationChanges.Add(context.Background(), 1, metric.WithAttributes(propertyAttr(id)))
}

// InstrumentSource wraps src so every read is counted and timed on m.
func InstrumentSource(src endpoint.ObjectSource, m *Metrics) endpoint.ObjectSource {
	return &instrumentedSource{next: src, m: m}
}

type instrumentedSource struct {
	next endpoint.ObjectSource
	m    *Metrics
}

func (s *instrumentedSource) LoadObject(id types.ObjectID) (types.ObjectRecord, error) {
	start := time.Now()
	record, err := s.next.LoadObject(id)
	s.record("load_object", start, err)
	return record, err
}

func (s *instrumentedSource) LoadRelatedObjects(id types.RelationEndPointID, def *types.EndPointDefinition) ([]types.ObjectRecord, error) {
	start := time.Now()
	records, err := s.next.LoadRelatedObjects(id, def)
	s.record("load_related", start, err)
	return records, err
}

func (s *instrumentedSource) record(op string, start time.Time, err error) {
	ctx := context.Background()
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.m.SourceReads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status),
	))
	s.m.SourceReadDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("op", op)))
}
