package schema

// Compare diffs the receiver (the current, on-disk schema) against target
// and returns the ordered sequence of changes needed to reach it (spec.md
// §4.3). Property and object-schema order in either side never affects the
// result; matching is always by name. Reordering-only differences produce
// an empty slice.
//
// AddTable for a type always precedes any per-property change for that
// type, so a stateful applier can track "the table currently being built"
// across the sequence (spec.md §4.3, §5).
//
// Types present only in the current schema are never reflected as a
// remove: the design deliberately omits a RemoveTable variant (spec.md §9)
// so that a single on-disk file can be shared between callers that each
// declare a different subset of types.
func (s *Schema) Compare(target *Schema) []Change {
	var changes []Change

	for i := range target.objects {
		targetObject := &target.objects[i]
		currentObject, ok := s.Find(targetObject.Name)
		if !ok {
			changes = append(changes, AddTable{changeBase{targetObject}})
			for j := range targetObject.PersistedProperties {
				changes = append(changes, AddProperty{changeBase{targetObject}, &targetObject.PersistedProperties[j]})
			}
			continue
		}
		changes = append(changes, compareObject(currentObject, targetObject)...)
	}

	return changes
}

func compareObject(current, target *ObjectSchema) []Change {
	var changes []Change

	for i := range target.PersistedProperties {
		targetProp := &target.PersistedProperties[i]
		currentProp := current.PropertyForName(targetProp.Name)
		if currentProp == nil {
			changes = append(changes, AddProperty{changeBase{target}, targetProp})
			continue
		}
		changes = append(changes, compareProperty(target, currentProp, targetProp)...)
	}

	for i := range current.PersistedProperties {
		currentProp := &current.PersistedProperties[i]
		if target.PropertyForName(currentProp.Name) == nil {
			changes = append(changes, RemoveProperty{changeBase{target}, currentProp})
		}
	}

	if current.PrimaryKey != target.PrimaryKey {
		changes = append(changes, ChangePrimaryKey{changeBase{target}, target.PrimaryKeyProperty()})
	}

	return changes
}

func compareProperty(target *ObjectSchema, current, newProp *Property) []Change {
	var changes []Change

	if current.Type != newProp.Type || current.ObjectType != newProp.ObjectType {
		changes = append(changes, ChangePropertyType{changeBase{target}, current, newProp})
		// A type change makes nullability/index comparisons against the
		// old column meaningless; the column is being replaced wholesale.
		return changes
	}

	if !current.IsNullable && newProp.IsNullable {
		changes = append(changes, MakePropertyNullable{changeBase{target}, newProp})
	} else if current.IsNullable && !newProp.IsNullable {
		changes = append(changes, MakePropertyRequired{changeBase{target}, newProp})
	}

	if !current.EffectiveIndexed() && newProp.EffectiveIndexed() {
		changes = append(changes, AddIndex{changeBase{target}, newProp})
	} else if current.EffectiveIndexed() && !newProp.EffectiveIndexed() {
		changes = append(changes, RemoveIndex{changeBase{target}, newProp})
	}

	return changes
}
