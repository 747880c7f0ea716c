package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/mesh-intelligence/relgraph/internal/endpoint"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counterValue sums the data points of a counter whose attributes include
// every kv in want.
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string, want ...attribute.KeyValue) int64 {
	t.Helper()
	m := findMetric(rm, name)
	require.NotNil(t, m, "metric %s not recorded", name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", name)
	var total int64
	for _, dp := range sum.DataPoints {
		matches := true
		for _, kv := range want {
			v, found := dp.Attributes.Value(kv.Key)
			if !found || v != kv.Value {
				matches = false
				break
			}
		}
		if matches {
			total += dp.Value
		}
	}
	return total
}

var ordersOfC1 = types.RelationEndPointID{
	ObjectID: types.ObjectID{Class: "Customer", Value: "c1"},
	Property: "Customer.Orders",
}

func TestMetricsListener(t *testing.T) {
	m, reader := newTestMetrics(t)
	l := NewMetricsListener(m)

	l.EndPointBecomingIncomplete(ordersOfC1)
	l.EndPointStateUpdated(ordersOfC1, types.Changed)
	l.EndPointStateUpdated(ordersOfC1, types.Changed)
	l.EndPointStateUpdated(ordersOfC1, types.Unchanged)
	l.EndPointDataReplaced(ordersOfC1)
	require.NoError(t, l.RelationChanging(ordersOfC1, types.ObjectID{}, types.ObjectID{}))
	l.RelationChanged(ordersOfC1, types.ObjectID{}, types.ObjectID{})

	rm := collect(t, reader)
	prop := attribute.String("property", "Customer.Orders")
	assert.Equal(t, int64(1), counterValue(t, rm, "relgraph.endpoint.incompletions", prop))
	assert.Equal(t, int64(2), counterValue(t, rm, "relgraph.endpoint.state_updates", prop, attribute.String("state", "changed")))
	assert.Equal(t, int64(1), counterValue(t, rm, "relgraph.endpoint.state_updates", attribute.String("state", "unchanged")))
	assert.Equal(t, int64(1), counterValue(t, rm, "relgraph.endpoint.data_replaced", prop))
	assert.Equal(t, int64(1), counterValue(t, rm, "relgraph.relation.changes", prop))
}

type stubSource struct {
	err error
}

func (s stubSource) LoadObject(id types.ObjectID) (types.ObjectRecord, error) {
	return types.ObjectRecord{ID: id}, s.err
}

func (s stubSource) LoadRelatedObjects(types.RelationEndPointID, *types.EndPointDefinition) ([]types.ObjectRecord, error) {
	return nil, s.err
}

func TestInstrumentSource(t *testing.T) {
	m, reader := newTestMetrics(t)

	ok := InstrumentSource(stubSource{}, m)
	_, err := ok.LoadObject(ordersOfC1.ObjectID)
	require.NoError(t, err)
	_, err = ok.LoadRelatedObjects(ordersOfC1, &types.EndPointDefinition{})
	require.NoError(t, err)

	failing := InstrumentSource(stubSource{err: errors.New("boom")}, m)
	_, err = failing.LoadObject(ordersOfC1.ObjectID)
	require.Error(t, err)

	rm := collect(t, reader)
	assert.Equal(t, int64(1), counterValue(t, rm, "relgraph.source.reads",
		attribute.String("op", "load_object"), attribute.String("status", "ok")))
	assert.Equal(t, int64(1), counterValue(t, rm, "relgraph.source.reads",
		attribute.String("op", "load_object"), attribute.String("status", "error")))
	assert.Equal(t, int64(1), counterValue(t, rm, "relgraph.source.reads",
		attribute.String("op", "load_related")))

	hist := findMetric(rm, "relgraph.source.read.duration")
	require.NotNil(t, hist)
	data, isHist := hist.Data.(metricdata.Histogram[float64])
	require.True(t, isHist)
	var count uint64
	for _, dp := range data.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)
}

func TestLogListener(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := NewLogListener(logger)

	l.EndPointStateUpdated(ordersOfC1, types.Changed)
	l.RelationChanged(ordersOfC1, types.ObjectID{}, types.ObjectID{Class: "Customer", Value: "c2"})

	out := buf.String()
	assert.Contains(t, out, "end-point state updated")
	assert.Contains(t, out, "state=changed")
	assert.Contains(t, out, "property=Customer.Orders")
	assert.Contains(t, out, "component=endpoint")
	assert.Contains(t, out, "new=Customer|c2")
}

func TestLogListener_SilentAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogListener(slog.New(slog.NewTextHandler(&buf, nil)))
	l.EndPointDataReplaced(ordersOfC1)
	assert.Empty(t, buf.String())
}

func TestListenersWireIntoManager(t *testing.T) {
	m, reader := newTestMetrics(t)
	mapping, err := types.NewMapping(nil, []types.RelationDefinition{{
		Class: "Order", Property: "Customer", OppositeClass: "Customer", OppositeProperty: "Orders",
	}})
	require.NoError(t, err)

	metrics := NewMetricsListener(m)
	logs := NewLogListener(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	mgr, err := endpoint.NewManager(mapping,
		endpoint.WithListener(endpoint.Listeners{metrics, logs}),
		endpoint.WithRelationChangeListener(endpoint.RelationChangeListeners{metrics, logs}),
	)
	require.NoError(t, err)

	c1, err := mgr.NewObject("Customer")
	require.NoError(t, err)
	o1, err := mgr.NewObject("Order")
	require.NoError(t, err)
	require.NoError(t, mgr.SetRelated(o1, "Order.Customer", c1))

	rm := collect(t, reader)
	assert.Positive(t, counterValue(t, rm, "relgraph.relation.changes"))
}
