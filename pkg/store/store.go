// Package store defines the storage-group interface the reconciliation
// core consumes abstractly (spec.md §6) and a concrete realization of it
// backed by SQLite, the same storage engine the teacher repository already
// depends on for its manifest catalog.
//
// The abstraction mirrors a classic embedded-database "group": a
// transactional container of named tables, each with typed, nullable,
// optionally-indexed columns. Nothing here knows about object schemas,
// migrations, or policy — that's pkg/schema, internal/applier and
// pkg/migrate. This package only knows how to move columns and rows
// around inside one already-open write transaction; see §5 of the spec for
// the transaction-ownership contract this package assumes (it never opens
// or closes a transaction of its own — see schemacore.Store.WithWriteTx for
// that).
package store

import "github.com/arkiliandb/schemacore/pkg/schema"

// ColumnSpec describes a single column to add or insert, independent of
// storage backend.
type ColumnSpec struct {
	Name       string
	Type       schema.PropertyType
	Nullable   bool
	LinkTarget string // table name; non-empty iff Type is Object or Array
}

// Table is one named table in a Group: an ordered list of typed columns
// plus rows.
type Table interface {
	Name() string
	ColumnCount() (int, error)
	// Columns returns every column in declared order.
	Columns() ([]ColumnSpec, error)
	// ColumnIndex looks a column up by name.
	ColumnIndex(name string) (index int, ok bool, err error)
	HasSearchIndex(index int) (bool, error)

	// AddColumn appends a new column at the end of the table.
	AddColumn(spec ColumnSpec) error
	// InsertColumn inserts a new column at index, shifting columns at and
	// after index one place to the right. Existing rows get the type's
	// zero value (required) or NULL (nullable) in the new column.
	InsertColumn(index int, spec ColumnSpec) error
	// RemoveColumn drops the column at index, shifting later columns left.
	RemoveColumn(index int) error
	// RenameColumn renames the column at index in place; it does not
	// change position, type or nullability.
	RenameColumn(index int, newName string) error

	AddSearchIndex(index int) error
	RemoveSearchIndex(index int) error

	// Size returns the row count.
	Size() (int64, error)
	// AddEmptyRows appends n rows with zero/NULL values in every column.
	AddEmptyRows(n int64) error
	// DistinctCount returns the number of distinct values in column index,
	// counting NULL as its own value if present — the same thing spec.md
	// calls get_distinct_view(col).size().
	DistinctCount(index int) (int64, error)
	// CopyColumnValues copies every row's value from column src to column
	// dst, used by the nullable-widening path to preserve data across a
	// column replacement (spec.md §4.4, MakePropertyNullable).
	CopyColumnValues(src, dst int) error

	// The metadata and primary-key bookkeeping tables (spec.md §4.1) are
	// ordinary tables read and written a row at a time rather than through
	// bulk column operations; these four accessors are the minimal row-level
	// API pkg/metadata needs and are not meant for use against object
	// tables, whose row data is opaque to this module.
	ReadInt(row, col int) (int64, error)
	WriteInt(row, col int, v int64) error
	ReadString(row, col int) (string, error)
	WriteString(row, col int, v string) error
	// FindFirst returns the row index whose column col holds value, or
	// ok=false if no row matches.
	FindFirst(col int, value string) (row int, ok bool, err error)
}

// Group is a transactional container of named tables.
type Group interface {
	// GetTable looks up a table by its storage name (e.g. "class_Person"
	// or "metadata"), returning ok=false if it doesn't exist.
	GetTable(name string) (Table, bool, error)
	// GetOrAddTable returns the named table, creating an empty one (zero
	// columns) if it doesn't already exist.
	GetOrAddTable(name string) (Table, error)
	// RemoveTable drops a table outright. A no-op if it doesn't exist.
	RemoveTable(name string) error
	// DeleteDataForObject drops the table for objectType entirely,
	// discarding every row — the explicit, caller-invoked primitive for
	// "this type should no longer exist" (spec.md §9), since
	// (*Schema).Compare deliberately never emits a RemoveTable change on
	// its own. A no-op if the type has no table.
	DeleteDataForObject(objectType string) error
	// TableNames lists every table in the group, including non-object
	// tables such as "pk" and "metadata".
	TableNames() ([]string, error)
	// IsEmpty reports whether every class_-prefixed table has zero rows.
	IsEmpty() (bool, error)
}

// ObjectTablePrefix is the naming convention mapping an object type name
// to its storage table: type T lives in table "class_T". Tables whose name
// lacks this prefix (including "pk" and "metadata") are not object tables
// and are ignored by schema introspection.
const ObjectTablePrefix = "class_"

// TableNameForObjectType returns the storage table name for an object type.
func TableNameForObjectType(objectType string) string {
	return ObjectTablePrefix + objectType
}

// ObjectTypeForTableName returns the object type a storage table name
// names, or "" if the table isn't an object table.
func ObjectTypeForTableName(tableName string) string {
	if len(tableName) > len(ObjectTablePrefix) && tableName[:len(ObjectTablePrefix)] == ObjectTablePrefix {
		return tableName[len(ObjectTablePrefix):]
	}
	return ""
}
