package types

import "strings"

// RelationEndPointID identifies one end of a relation for one object:
// the owning object and the qualified property ("Class.Property").
type RelationEndPointID struct {
	ObjectID ObjectID
	Property string
}

// NewEndPointID returns the end-point id of def for the given owner.
func NewEndPointID(owner ObjectID, def *EndPointDefinition) RelationEndPointID {
	return RelationEndPointID{ObjectID: owner, Property: def.Property()}
}

func (id RelationEndPointID) String() string {
	return id.ObjectID.String() + "/" + id.Property
}

// Cardinality says whether an end-point holds one related object or many.
type Cardinality string

// End-point cardinalities.
const (
	CardinalityOne  Cardinality = "one"
	CardinalityMany Cardinality = "many"
)

// Change detection names accepted in EndPointDefinition.ChangeDetection.
const (
	ChangeDetectionSet     = "set"
	ChangeDetectionOrdered = "ordered"
)

// SortByID orders loaded collections by related object id.
const SortByID = "id"

// EndPointDefinition describes one side of a relation.
type EndPointDefinition struct {
	Class           string
	Name            string
	Cardinality     Cardinality
	Virtual         bool
	OppositeClass   string
	OppositeName    string
	CollectionKind  string
	SortBy          string
	ChangeDetection string
	RelationName    string
}

// Property returns the qualified property name, "Class.Name".
func (d *EndPointDefinition) Property() string { return d.Class + "." + d.Name }

// OppositeProperty returns the qualified name of the opposite end.
func (d *EndPointDefinition) OppositeProperty() string {
	return d.OppositeClass + "." + d.OppositeName
}

// IsCollection reports whether d is the virtual many side of a relation.
func (d *EndPointDefinition) IsCollection() bool {
	return d.Virtual && d.Cardinality == CardinalityMany
}

// SplitProperty splits a qualified property into class and name.
func SplitProperty(property string) (class, name string, ok bool) {
	i := strings.LastIndexByte(property, '.')
	if i <= 0 || i == len(property)-1 {
		return "", "", false
	}
	return property[:i], property[i+1:], true
}
