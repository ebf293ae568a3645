package schema

import (
	"strings"
	"testing"
)

func TestSchemaValidationError_MessageListsEveryIssue(t *testing.T) {
	err := &SchemaValidationError{Issues: []ValidationIssue{
		{Object: "Thing", Message: "first problem"},
		{Object: "Thing", Message: "second problem"},
	}}
	msg := err.Error()
	if !strings.Contains(msg, "first problem") || !strings.Contains(msg, "second problem") {
		t.Errorf("expected message to list every issue, got %q", msg)
	}
}

func TestInvalidSchemaVersionError_Message(t *testing.T) {
	err := &InvalidSchemaVersionError{OldVersion: 5, NewVersion: 3}
	msg := err.Error()
	if !strings.Contains(msg, "5") || !strings.Contains(msg, "3") {
		t.Errorf("expected message to mention both versions, got %q", msg)
	}
}

func TestDuplicatePrimaryKeyValueError_Message(t *testing.T) {
	err := &DuplicatePrimaryKeyValueError{ObjectType: "Person", Property: "id"}
	msg := err.Error()
	if !strings.Contains(msg, "Person.id") {
		t.Errorf("expected message to name the offending property, got %q", msg)
	}
}

func TestLogicf(t *testing.T) {
	err := Logicf("rename of %s.%s is not allowed", "Person", "id")
	if err.Error() != "rename of Person.id is not allowed" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
