package observe

import (
	"context"
	"log/slog"

	"github.com/mesh-intelligence/relgraph/internal/endpoint"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

var (
	_ endpoint.Listener               = (*LogListener)(nil)
	_ endpoint.RelationChangeListener = (*LogListener)(nil)
)

// LogListener writes end-point events to a slog.Logger at debug level.
type LogListener struct {
	logger *slog.Logger
}

// NewLogListener returns a listener logging to l, or to slog.Default when l
// is nil.
func NewLogListener(l *slog.Logger) *LogListener {
	if l == nil {
		l = slog.Default()
	}
	return &LogListener{logger: l.With("component", "endpoint")}
}

func (l *LogListener) log(msg string, id types.RelationEndPointID, attrs ...slog.Attr) {
	attrs = append([]slog.Attr{
		slog.String("object", id.ObjectID.String()),
		slog.String("property", id.Property),
	}, attrs...)
	l.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
}

func (l *LogListener) EndPointBecomingIncomplete(id types.RelationEndPointID) {
	l.log("end-point becoming incomplete", id)
}

func (l *LogListener) EndPointStateUpdated(id types.RelationEndPointID, state types.ChangeState) {
	l.log("end-point state updated", id, slog.String("state", state.String()))
}

func (l *LogListener) EndPointDataReplaced(id types.RelationEndPointID) {
	l.log("end-point data replaced", id)
}

func (l *LogListener) RelationChanging(types.RelationEndPointID, types.ObjectID, types.ObjectID) error {
	return nil
}

func (l *LogListener) RelationChanged(id types.RelationEndPointID, oldRelated, newRelated types.ObjectID) {
	l.log("relation changed", id,
		slog.String("old", oldRelated.String()),
		slog.String("new", newRelated.String()))
}
