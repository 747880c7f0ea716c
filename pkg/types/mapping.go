package types

import (
	"fmt"
	"slices"
)

// RelationDefinition declares a one-to-many relation. Class.Property holds
// the foreign key; OppositeClass.OppositeProperty is the collection of all
// Class objects pointing at one OppositeClass object.
type RelationDefinition struct {
	Name             string `yaml:"name"`
	Class            string `yaml:"class"`
	Property         string `yaml:"property"`
	OppositeClass    string `yaml:"opposite_class"`
	OppositeProperty string `yaml:"opposite_property"`
	CollectionKind   string `yaml:"collection_kind"`
	SortBy           string `yaml:"sort_by"`
	ChangeDetection  string `yaml:"change_detection"`
}

// DefaultCollectionKind is used when a relation names no collection kind.
const DefaultCollectionKind = "list"

// Mapping is the validated set of classes and relation end-points.
// It is immutable once built.
type Mapping struct {
	classes   map[string]bool
	endPoints map[string]*EndPointDefinition
	byClass   map[string][]*EndPointDefinition
	relations []RelationDefinition
}

// NewMapping validates relations and builds the end-point definitions for
// both of their sides. Classes named only in classes (without relations) are
// registered too.
func NewMapping(classes []string, relations []RelationDefinition) (*Mapping, error) {
	m := &Mapping{
		classes:   make(map[string]bool),
		endPoints: make(map[string]*EndPointDefinition),
		byClass:   make(map[string][]*EndPointDefinition),
	}
	for _, c := range classes {
		if c == "" {
			return nil, fmt.Errorf("empty class name: %w", ErrInvalidMapping)
		}
		m.classes[c] = true
	}
	for _, r := range relations {
		if err := m.addRelation(r); err != nil {
			return nil, err
		}
	}
	for class := range m.byClass {
		slices.SortFunc(m.byClass[class], func(a, b *EndPointDefinition) int {
			if a.Name < b.Name {
				return -1
			}
			if a.Name > b.Name {
				return 1
			}
			return 0
		})
	}
	return m, nil
}

func (m *Mapping) addRelation(r RelationDefinition) error {
	if r.Class == "" || r.Property == "" || r.OppositeClass == "" || r.OppositeProperty == "" {
		return fmt.Errorf("relation %q: class and property names are required on both sides: %w", r.Name, ErrInvalidMapping)
	}
	switch r.SortBy {
	case "", SortByID:
	default:
		return fmt.Errorf("relation %q: unsupported sort_by %q: %w", r.Name, r.SortBy, ErrInvalidMapping)
	}
	switch r.ChangeDetection {
	case "":
		r.ChangeDetection = ChangeDetectionSet
	case ChangeDetectionSet, ChangeDetectionOrdered:
	default:
		return fmt.Errorf("relation %q: unsupported change_detection %q: %w", r.Name, r.ChangeDetection, ErrInvalidMapping)
	}
	if r.CollectionKind == "" {
		r.CollectionKind = DefaultCollectionKind
	}
	if r.Name == "" {
		r.Name = r.Class + "." + r.Property
	}

	foreign := &EndPointDefinition{
		Class:         r.Class,
		Name:          r.Property,
		Cardinality:   CardinalityOne,
		OppositeClass: r.OppositeClass,
		OppositeName:  r.OppositeProperty,
		RelationName:  r.Name,
	}
	virtual := &EndPointDefinition{
		Class:           r.OppositeClass,
		Name:            r.OppositeProperty,
		Cardinality:     CardinalityMany,
		Virtual:         true,
		OppositeClass:   r.Class,
		OppositeName:    r.Property,
		CollectionKind:  r.CollectionKind,
		SortBy:          r.SortBy,
		ChangeDetection: r.ChangeDetection,
		RelationName:    r.Name,
	}
	for _, def := range []*EndPointDefinition{foreign, virtual} {
		if _, exists := m.endPoints[def.Property()]; exists {
			return fmt.Errorf("relation %q: property %s is declared twice: %w", r.Name, def.Property(), ErrInvalidMapping)
		}
		m.endPoints[def.Property()] = def
		m.byClass[def.Class] = append(m.byClass[def.Class], def)
		m.classes[def.Class] = true
	}
	m.relations = append(m.relations, r)
	return nil
}

// EndPoint returns the definition of a qualified property.
func (m *Mapping) EndPoint(property string) (*EndPointDefinition, error) {
	def, ok := m.endPoints[property]
	if !ok {
		return nil, fmt.Errorf("property %s: %w", property, ErrUnknownProperty)
	}
	return def, nil
}

// Opposite returns the definition at the other end of def's relation.
func (m *Mapping) Opposite(def *EndPointDefinition) *EndPointDefinition {
	return m.endPoints[def.OppositeProperty()]
}

// EndPointsOf returns the end-point definitions owned by class, sorted by
// property name.
func (m *Mapping) EndPointsOf(class string) []*EndPointDefinition {
	return m.byClass[class]
}

// HasClass reports whether class is known to the mapping.
func (m *Mapping) HasClass(class string) bool { return m.classes[class] }

// Classes returns all class names in sorted order.
func (m *Mapping) Classes() []string {
	out := make([]string, 0, len(m.classes))
	for c := range m.classes {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Relations returns the relation definitions with defaults applied.
func (m *Mapping) Relations() []RelationDefinition {
	return slices.Clone(m.relations)
}
