package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ObjectID identifies one persistent object. It is comparable and can be
// used as a map key.
type ObjectID struct {
	Class string
	Value string
}

// Object is anything that carries an ObjectID. ObjectID implements it, so
// callers without richer entity types can pass identifiers directly.
type Object interface {
	ID() ObjectID
}

var _ Object = ObjectID{}

// NewObjectID returns a fresh identifier of the given class using a UUID v7
// value, so identifiers sort by creation time.
func NewObjectID(class string) ObjectID {
	return ObjectID{Class: class, Value: uuid.Must(uuid.NewV7()).String()}
}

// ID returns the identifier itself.
func (id ObjectID) ID() ObjectID { return id }

// IsZero reports whether id is the zero identifier ("no object").
func (id ObjectID) IsZero() bool { return id.Class == "" && id.Value == "" }

// String formats id as "Class|Value". The zero id formats as "null".
func (id ObjectID) String() string {
	if id.IsZero() {
		return "null"
	}
	return id.Class + "|" + id.Value
}

// Compare orders identifiers by class, then value. With UUID v7 values this
// is creation order within a class.
func (id ObjectID) Compare(other ObjectID) int {
	if c := strings.Compare(id.Class, other.Class); c != 0 {
		return c
	}
	return strings.Compare(id.Value, other.Value)
}

// ParseObjectID parses the "Class|Value" form produced by String. The string
// "null" and the empty string parse to the zero id.
func ParseObjectID(s string) (ObjectID, error) {
	if s == "" || s == "null" {
		return ObjectID{}, nil
	}
	class, value, ok := strings.Cut(s, "|")
	if !ok || class == "" || value == "" {
		return ObjectID{}, fmt.Errorf("parsing %q: %w", s, ErrInvalidID)
	}
	return ObjectID{Class: class, Value: value}, nil
}

// ObjectRecord is the stored form of an object: its id and the foreign keys
// it holds, keyed by qualified property ("Class.Property").
type ObjectRecord struct {
	ID          ObjectID
	ForeignKeys map[string]ObjectID
}

// ForeignKey returns the related id stored under property, or the zero id.
func (r ObjectRecord) ForeignKey(property string) ObjectID {
	return r.ForeignKeys[property]
}
