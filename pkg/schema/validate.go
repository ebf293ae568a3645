package schema

import "fmt"

// Validate collects every violation of the invariants in spec.md §3/§4.1
// across the whole schema and returns them together as a
// *SchemaValidationError, or nil if the schema is internally consistent.
func (s *Schema) Validate() error {
	var issues []ValidationIssue
	for i := range s.objects {
		o := &s.objects[i]
		var primary *Property
		for j := range o.PersistedProperties {
			validateProperty(s, o.Name, &o.PersistedProperties[j], &primary, &issues)
		}
		for j := range o.ComputedProperties {
			validateProperty(s, o.Name, &o.ComputedProperties[j], &primary, &issues)
		}
		if o.PrimaryKey != "" && primary == nil && o.PrimaryKeyProperty() == nil {
			issues = append(issues, ValidationIssue{
				Object:  o.Name,
				Message: fmt.Sprintf("specified primary key `%s.%s` does not exist", o.Name, o.PrimaryKey),
			})
		}
	}
	if len(issues) == 0 {
		return nil
	}
	return &SchemaValidationError{Issues: issues}
}

func validateProperty(s *Schema, objectName string, prop *Property, primary **Property, issues *[]ValidationIssue) {
	add := func(format string, args ...interface{}) {
		*issues = append(*issues, ValidationIssue{Object: objectName, Message: fmt.Sprintf(format, args...)})
	}

	if prop.IsNullable && !prop.Type.isTypeNullable() {
		add("property `%s.%s` of type `%s` cannot be nullable", objectName, prop.Name, prop.Type)
	} else if prop.Type == Object && !prop.IsNullable {
		add("property `%s.%s` of type `Object` must be nullable", objectName, prop.Name)
	}

	if prop.IsPrimary {
		if prop.Type != Int && prop.Type != String {
			add("property `%s.%s` of type `%s` cannot be made the primary key", objectName, prop.Name, prop.Type)
		}
		if *primary != nil {
			add("properties `%s` and `%s` are both marked as the primary key of `%s`", prop.Name, (*primary).Name, objectName)
		}
		*primary = prop
	}

	if prop.IsIndexed && !prop.IsIndexable() {
		add("property `%s.%s` of type `%s` cannot be indexed", objectName, prop.Name, prop.Type)
	}

	if prop.Type != LinkingObjects && prop.LinkOriginProperty != "" {
		add("property `%s.%s` of type `%s` cannot have an origin property name", objectName, prop.Name, prop.Type)
	} else if prop.Type == LinkingObjects && prop.LinkOriginProperty == "" {
		add("property `%s.%s` of type `%s` must have an origin property name", objectName, prop.Name, prop.Type)
	}

	if prop.Type != Object && prop.Type != Array && prop.Type != LinkingObjects {
		if prop.ObjectType != "" {
			add("property `%s.%s` of type `%s` cannot have an object type", objectName, prop.Name, prop.Type)
		}
		return
	}

	target, ok := s.Find(prop.ObjectType)
	if !ok {
		add("property `%s.%s` of type `%s` has unknown object type `%s`", objectName, prop.Name, prop.Type, prop.ObjectType)
		return
	}
	if prop.Type != LinkingObjects {
		return
	}

	origin := target.PropertyForName(prop.LinkOriginProperty)
	switch {
	case origin == nil:
		add("property `%s.%s` declared as origin of linking objects property `%s.%s` does not exist",
			prop.ObjectType, prop.LinkOriginProperty, objectName, prop.Name)
	case origin.Type != Object && origin.Type != Array:
		add("property `%s.%s` declared as origin of linking objects property `%s.%s` is not a link",
			prop.ObjectType, prop.LinkOriginProperty, objectName, prop.Name)
	case origin.ObjectType != objectName:
		add("property `%s.%s` declared as origin of linking objects property `%s.%s` links to type `%s`",
			prop.ObjectType, prop.LinkOriginProperty, objectName, prop.Name, origin.ObjectType)
	}
}
