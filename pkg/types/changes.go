package types

// ForeignKeyChange records that ObjectID.Property moved from OldRelated to
// NewRelated. A zero id means "no related object".
type ForeignKeyChange struct {
	ObjectID   ObjectID
	Property   string
	OldRelated ObjectID
	NewRelated ObjectID
}

// CollectionOrder is the committed order of one collection end-point.
// Stores that keep an ordinal per foreign key use it to persist positions.
type CollectionOrder struct {
	EndPoint RelationEndPointID
	Items    []ObjectID
}

// ChangeSet is everything a scope changed since its last commit.
type ChangeSet struct {
	NewObjects     []ObjectID
	DeletedObjects []ObjectID
	ForeignKeys    []ForeignKeyChange
	Orders         []CollectionOrder
}

// IsEmpty reports whether the change set carries nothing to persist.
func (c ChangeSet) IsEmpty() bool {
	return len(c.NewObjects) == 0 && len(c.DeletedObjects) == 0 &&
		len(c.ForeignKeys) == 0 && len(c.Orders) == 0
}
