package kvstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// Key layout. Parts are joined with a NUL byte, which cannot occur in class
// names, property names or id values coming from the mapping file.
//
//	o 0x00 {object id}                                          -> objectValue
//	r 0x00 {property} 0x00 {related id} 0x00 {ordinal} 0x00 {object id} -> empty
//
// Ordinals are zero-padded so the reverse index iterates in collection order.
const (
	sep          = "\x00"
	objectTag    = "o"
	relatedTag   = "r"
	ordinalWidth = 10
)

// objectValue is the stored form of one object.
type objectValue struct {
	Class       string             `msgpack:"c"`
	CreatedAt   int64              `msgpack:"t"`
	ForeignKeys map[string]fkValue `msgpack:"f,omitempty"`
}

// fkValue is one foreign key and its position in the related collection.
type fkValue struct {
	Related string `msgpack:"r"`
	Ordinal int    `msgpack:"n"`
}

func objectKey(id types.ObjectID) []byte {
	return []byte(objectTag + sep + id.String())
}

func objectPrefix() []byte {
	return []byte(objectTag + sep)
}

// relatedPrefix selects every index entry of objects whose property points at
// related.
func relatedPrefix(property string, related types.ObjectID) []byte {
	return []byte(relatedTag + sep + property + sep + related.String() + sep)
}

func relatedKey(property string, related types.ObjectID, ordinal int, object types.ObjectID) []byte {
	return append(relatedPrefix(property, related), []byte(formatOrdinal(ordinal)+sep+object.String())...)
}

func formatOrdinal(n int) string {
	s := strconv.Itoa(n)
	if len(s) >= ordinalWidth {
		return s
	}
	return strings.Repeat("0", ordinalWidth-len(s)) + s
}

// parseRelatedKey returns the ordinal and object id of an index key found
// under prefix.
func parseRelatedKey(prefix, key []byte) (int, types.ObjectID, error) {
	rest := string(key[len(prefix):])
	ordinal, object, ok := strings.Cut(rest, sep)
	if !ok {
		return 0, types.ObjectID{}, fmt.Errorf("malformed index key %q", key)
	}
	n, err := strconv.Atoi(ordinal)
	if err != nil {
		return 0, types.ObjectID{}, fmt.Errorf("malformed ordinal in index key %q: %w", key, err)
	}
	id, err := types.ParseObjectID(object)
	if err != nil {
		return 0, types.ObjectID{}, err
	}
	return n, id, nil
}

func encodeObject(v objectValue) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding object: %w", err)
	}
	return data, nil
}

func decodeObject(data []byte) (objectValue, error) {
	var v objectValue
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return objectValue{}, fmt.Errorf("decoding object: %w", err)
	}
	return v, nil
}

// record converts a stored value into the ObjectRecord handed to the core.
func (v objectValue) record(id types.ObjectID) (types.ObjectRecord, error) {
	r := types.ObjectRecord{ID: id, ForeignKeys: make(map[string]types.ObjectID, len(v.ForeignKeys))}
	for property, fk := range v.ForeignKeys {
		related, err := types.ParseObjectID(fk.Related)
		if err != nil {
			return types.ObjectRecord{}, err
		}
		r.ForeignKeys[property] = related
	}
	return r, nil
}
