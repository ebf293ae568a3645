package schema

// Schema is an ordered collection of ObjectSchemas, indexed by name.
// Equality is structural over persisted/computed properties and primary
// keys; the order of object-schemas and of properties within them is not
// significant (spec.md §3).
type Schema struct {
	objects []ObjectSchema
	byName  map[string]int
}

// New builds a Schema from a set of object-schemas. Object-schema order is
// preserved for iteration but never affects equality or diffing.
func New(objects ...ObjectSchema) Schema {
	s := Schema{
		objects: append([]ObjectSchema(nil), objects...),
		byName:  make(map[string]int, len(objects)),
	}
	for i, o := range s.objects {
		s.byName[o.Name] = i
	}
	return s
}

// Objects returns the object-schemas in declaration order.
func (s *Schema) Objects() []ObjectSchema {
	return s.objects
}

// Find looks up an object-schema by name.
func (s *Schema) Find(name string) (*ObjectSchema, bool) {
	if s.byName == nil {
		return nil, false
	}
	i, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return &s.objects[i], true
}

// Empty reports whether the schema declares no object types at all. Used
// as the "initial_schema" sentinel in the post-migration applier (spec.md
// §4.4): an empty initial_schema means "no pre-callback snapshot to check
// renames against".
func (s *Schema) Empty() bool {
	return len(s.objects) == 0
}

// Equal compares two schemas structurally: set of object-schemas (by
// name), each compared structurally in turn. Declaration order is
// irrelevant on both sides, satisfying the reordering-is-a-no-op
// invariant (spec.md §8.4).
func (s Schema) Equal(other Schema) bool {
	if len(s.objects) != len(other.objects) {
		return false
	}
	for _, o := range s.objects {
		oo, ok := other.Find(o.Name)
		if !ok {
			return false
		}
		if !o.equalStructural(*oo) {
			return false
		}
	}
	return true
}

// Clone returns a deep-enough copy safe to mutate independently.
func (s Schema) Clone() Schema {
	objects := make([]ObjectSchema, len(s.objects))
	for i, o := range s.objects {
		objects[i] = o.Clone()
	}
	return New(objects...)
}
