package schema

// ObjectSchema is the ordered list of properties that make up one object
// type, plus whichever persisted property (if any) is the primary key.
type ObjectSchema struct {
	Name                string
	PersistedProperties []Property
	// ComputedProperties holds LinkingObjects properties, which are
	// derived from another type's link column rather than persisted as a
	// column of their own.
	ComputedProperties []Property
	PrimaryKey         string
}

// PropertyForName returns the persisted or computed property with the
// given name, or nil if none matches.
func (o *ObjectSchema) PropertyForName(name string) *Property {
	for i := range o.PersistedProperties {
		if o.PersistedProperties[i].Name == name {
			return &o.PersistedProperties[i]
		}
	}
	for i := range o.ComputedProperties {
		if o.ComputedProperties[i].Name == name {
			return &o.ComputedProperties[i]
		}
	}
	return nil
}

// PrimaryKeyProperty returns the property named by PrimaryKey, or nil if
// PrimaryKey is empty or doesn't resolve.
func (o *ObjectSchema) PrimaryKeyProperty() *Property {
	if o.PrimaryKey == "" {
		return nil
	}
	return o.PropertyForName(o.PrimaryKey)
}

// Clone returns a deep-enough copy safe to mutate (TableColumn rebinding,
// property renames) without affecting the original.
func (o ObjectSchema) Clone() ObjectSchema {
	cp := o
	cp.PersistedProperties = append([]Property(nil), o.PersistedProperties...)
	cp.ComputedProperties = append([]Property(nil), o.ComputedProperties...)
	return cp
}

// equalStructural compares two object-schemas the way Schema equality
// requires: property order doesn't matter, only the set of properties (by
// identity, see Property.equalIdentity) and the primary key.
func (o ObjectSchema) equalStructural(other ObjectSchema) bool {
	if o.Name != other.Name || o.PrimaryKey != other.PrimaryKey {
		return false
	}
	if !propertySetsEqual(o.PersistedProperties, other.PersistedProperties) {
		return false
	}
	if !propertySetsEqual(o.ComputedProperties, other.ComputedProperties) {
		return false
	}
	return true
}

func propertySetsEqual(a, b []Property) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, pa := range a {
		found := false
		for j, pb := range b {
			if used[j] {
				continue
			}
			if pa.equalIdentity(pb) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
