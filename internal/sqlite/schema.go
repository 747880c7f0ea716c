package sqlite

// Schema DDL. Tables are created on first attach and kept across attaches.
const (
	createObjects = `CREATE TABLE IF NOT EXISTS objects (
    object_id TEXT PRIMARY KEY,
    class_id TEXT NOT NULL,
    created_at TEXT NOT NULL
);`

	createForeignKeys = `CREATE TABLE IF NOT EXISTS foreign_keys (
    object_id TEXT NOT NULL,
    property TEXT NOT NULL,
    related_id TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    PRIMARY KEY (object_id, property)
);`
)

// Index DDL for the collection load path: all objects whose property points
// at one related object, in ordinal order.
const (
	indexObjectsClass  = `CREATE INDEX IF NOT EXISTS idx_objects_class ON objects(class_id);`
	indexForeignKeyRel = `CREATE INDEX IF NOT EXISTS idx_foreign_keys_related ON foreign_keys(property, related_id, ordinal);`
)

var schemaDDL = []string{
	createObjects,
	createForeignKeys,
}

var indexDDL = []string{
	indexObjectsClass,
	indexForeignKeyRel,
}
