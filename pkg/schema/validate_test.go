package schema

import (
	"strings"
	"testing"
)

func TestValidate_ValidSchemaPasses(t *testing.T) {
	s := New(personSchema())
	if err := s.Validate(); err != nil {
		t.Fatalf("expected a valid schema to pass, got %v", err)
	}
}

func TestValidate_NonNullableTypeCannotBeNullable(t *testing.T) {
	obj := ObjectSchema{
		Name: "Thing",
		PersistedProperties: []Property{
			{Name: "tags", Type: Array, ObjectType: "Tag", IsNullable: true},
		},
	}
	s := New(obj, ObjectSchema{Name: "Tag", PersistedProperties: []Property{{Name: "v", Type: String}}})
	err := s.Validate()
	if err == nil {
		t.Fatalf("expected validation error for nullable Array property")
	}
	if !strings.Contains(err.Error(), "cannot be nullable") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestValidate_ObjectPropertyMustBeNullable(t *testing.T) {
	obj := ObjectSchema{
		Name: "Thing",
		PersistedProperties: []Property{
			{Name: "owner", Type: Object, ObjectType: "Person", IsNullable: false},
		},
	}
	s := New(obj, personSchema())
	err := s.Validate()
	if err == nil || !strings.Contains(err.Error(), "must be nullable") {
		t.Fatalf("expected an 'Object must be nullable' error, got %v", err)
	}
}

func TestValidate_PrimaryKeyMustBeIntOrString(t *testing.T) {
	obj := ObjectSchema{
		Name: "Thing",
		PersistedProperties: []Property{
			{Name: "flag", Type: Bool, IsPrimary: true},
		},
		PrimaryKey: "flag",
	}
	s := New(obj)
	err := s.Validate()
	if err == nil || !strings.Contains(err.Error(), "cannot be made the primary key") {
		t.Fatalf("expected a primary-key-type error, got %v", err)
	}
}

func TestValidate_OnlyOnePrimaryKeyAllowed(t *testing.T) {
	obj := ObjectSchema{
		Name: "Thing",
		PersistedProperties: []Property{
			{Name: "a", Type: Int, IsPrimary: true},
			{Name: "b", Type: String, IsPrimary: true},
		},
		PrimaryKey: "a",
	}
	s := New(obj)
	err := s.Validate()
	if err == nil || !strings.Contains(err.Error(), "are both marked as the primary key") {
		t.Fatalf("expected a duplicate-primary-key error, got %v", err)
	}
}

func TestValidate_DeclaredPrimaryKeyMustExist(t *testing.T) {
	obj := ObjectSchema{
		Name:                "Thing",
		PersistedProperties: []Property{{Name: "a", Type: Int}},
		PrimaryKey:          "missing",
	}
	s := New(obj)
	err := s.Validate()
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("expected a missing-primary-key error, got %v", err)
	}
}

func TestValidate_IndexRequiresIndexableType(t *testing.T) {
	obj := ObjectSchema{
		Name:                "Thing",
		PersistedProperties: []Property{{Name: "payload", Type: Data, IsIndexed: true}},
	}
	s := New(obj)
	err := s.Validate()
	if err == nil || !strings.Contains(err.Error(), "cannot be indexed") {
		t.Fatalf("expected an indexability error, got %v", err)
	}
}

func TestValidate_LinkingObjectsRequiresOriginProperty(t *testing.T) {
	obj := ObjectSchema{
		Name:               "Thing",
		ComputedProperties: []Property{{Name: "backlinks", Type: LinkingObjects, ObjectType: "Person"}},
	}
	s := New(obj, personSchema())
	err := s.Validate()
	if err == nil || !strings.Contains(err.Error(), "must have an origin property name") {
		t.Fatalf("expected a missing-origin error, got %v", err)
	}
}

func TestValidate_LinkingObjectsOriginMustBeALink(t *testing.T) {
	obj := ObjectSchema{
		Name:               "Thing",
		ComputedProperties: []Property{{Name: "backlinks", Type: LinkingObjects, ObjectType: "Person", LinkOriginProperty: "name"}},
	}
	s := New(obj, personSchema())
	err := s.Validate()
	if err == nil || !strings.Contains(err.Error(), "is not a link") {
		t.Fatalf("expected a not-a-link error, got %v", err)
	}
}

func TestValidate_LinkingObjectsOriginMustPointBack(t *testing.T) {
	// Dog.owner links to Person, but Thing claims to be the inverse of it.
	dog := ObjectSchema{
		Name: "Dog",
		PersistedProperties: []Property{
			{Name: "owner", Type: Object, ObjectType: "Person", IsNullable: true},
		},
	}
	thing := ObjectSchema{
		Name:               "Thing",
		ComputedProperties: []Property{{Name: "backlinks", Type: LinkingObjects, ObjectType: "Dog", LinkOriginProperty: "owner"}},
	}
	s := New(thing, dog, personSchema())
	err := s.Validate()
	if err == nil || !strings.Contains(err.Error(), "links to type") {
		t.Fatalf("expected a wrong-inverse-target error, got %v", err)
	}
}

func TestValidate_UnknownObjectTypeReported(t *testing.T) {
	obj := ObjectSchema{
		Name:                "Thing",
		PersistedProperties: []Property{{Name: "owner", Type: Object, ObjectType: "Ghost", IsNullable: true}},
	}
	s := New(obj)
	err := s.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown object type") {
		t.Fatalf("expected an unknown-object-type error, got %v", err)
	}
}

func TestValidate_CollectsMultipleIssuesAtOnce(t *testing.T) {
	obj := ObjectSchema{
		Name: "Thing",
		PersistedProperties: []Property{
			{Name: "a", Type: Data, IsIndexed: true},
			{Name: "b", Type: Bool, IsPrimary: true},
		},
		PrimaryKey: "a",
	}
	s := New(obj)
	err := s.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	valErr, ok := err.(*SchemaValidationError)
	if !ok {
		t.Fatalf("expected *SchemaValidationError, got %T", err)
	}
	if len(valErr.Issues) < 2 {
		t.Errorf("expected Validate to collect multiple issues in one pass, got %d: %v", len(valErr.Issues), valErr.Issues)
	}
}
