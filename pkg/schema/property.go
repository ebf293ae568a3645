// Package schema defines the in-memory object-schema graph that the
// reconciliation core diffs against whatever is already materialised on
// disk: properties, object-schemas, the schema as a whole, and the
// structural comparison between two schemas.
package schema

import "fmt"

// PropertyType enumerates the kinds of value a Property can hold.
type PropertyType int

const (
	Int PropertyType = iota
	Bool
	Float
	Double
	String
	Data
	Date
	Any
	Object
	Array
	LinkingObjects
)

// String returns the name used in error messages and table DDL.
func (t PropertyType) String() string {
	switch t {
	case Int:
		return "Int"
	case Bool:
		return "Bool"
	case Float:
		return "Float"
	case Double:
		return "Double"
	case String:
		return "String"
	case Data:
		return "Data"
	case Date:
		return "Date"
	case Any:
		return "Any"
	case Object:
		return "Object"
	case Array:
		return "Array"
	case LinkingObjects:
		return "LinkingObjects"
	default:
		return fmt.Sprintf("PropertyType(%d)", int(t))
	}
}

// isTypeNullable reports whether values of this type are nullable at all,
// independent of what the property declares. Array and LinkingObjects
// properties are collections and are never nullable themselves.
func (t PropertyType) isTypeNullable() bool {
	switch t {
	case Array, LinkingObjects:
		return false
	default:
		return true
	}
}

// Property is a value object describing a single column on an object type.
type Property struct {
	Name       string
	Type       PropertyType
	ObjectType string // required iff Type is Object, Array or LinkingObjects
	// LinkOriginProperty names the property on ObjectType that owns the
	// link this LinkingObjects property reports the inverse of. Required
	// iff Type == LinkingObjects.
	LinkOriginProperty string
	IsPrimary          bool
	IsIndexed          bool
	IsNullable         bool

	// TableColumn is the transient, storage-resolved column index. It is
	// not part of Property identity: two properties with everything else
	// equal but different TableColumn are the same property for diffing
	// and equality purposes. It must be re-bound via column-name lookup
	// after any structural change to the owning table (see
	// pkg/metadata.SetSchemaColumns).
	TableColumn int
}

// IsIndexable reports whether this property's type can carry a search
// index at all, independent of whether IsIndexed is currently set.
func (p Property) IsIndexable() bool {
	switch p.Type {
	case Int, Bool, String, Date:
		return true
	default:
		return false
	}
}

// EffectiveIndexed reports whether this property must carry a physical
// search index: either it was explicitly indexed, or it is the primary key,
// which always requires an index regardless of IsIndexed (spec.md §3;
// mirrors object_store.cpp's requires_index()).
func (p Property) EffectiveIndexed() bool {
	return p.IsPrimary || (p.IsIndexable() && p.IsIndexed)
}

// EffectiveNullable reports the nullability that actually governs storage:
// object-valued (link) properties are always nullable regardless of what
// IsNullable says, because a link column can never be declared required.
func (p Property) EffectiveNullable() bool {
	if p.Type == Object {
		return true
	}
	return p.IsNullable
}

// equalIdentity compares two properties ignoring TableColumn, which is
// storage-transient and never part of logical identity. Indexing is
// compared as EffectiveIndexed, so a primary key counts as indexed whether
// or not IsIndexed is set.
func (p Property) equalIdentity(o Property) bool {
	return p.Name == o.Name &&
		p.Type == o.Type &&
		p.ObjectType == o.ObjectType &&
		p.LinkOriginProperty == o.LinkOriginProperty &&
		p.IsPrimary == o.IsPrimary &&
		p.EffectiveIndexed() == o.EffectiveIndexed() &&
		p.IsNullable == o.IsNullable
}
