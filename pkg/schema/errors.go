package schema

import (
	"fmt"
	"strings"
)

// ValidationIssue is one violation found by (*Schema).Validate.
type ValidationIssue struct {
	Object  string
	Message string
}

func (i ValidationIssue) String() string {
	return i.Message
}

// SchemaValidationError is returned when the *target* schema itself is
// internally invalid: it never reaches the point of being diffed against
// whatever is on disk.
type SchemaValidationError struct {
	Issues []ValidationIssue
}

func (e *SchemaValidationError) Error() string {
	var b strings.Builder
	b.WriteString("schema validation failed due to the following errors:")
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue.Message)
	}
	return b.String()
}

// SchemaMismatchError is returned when the target schema is valid but
// cannot be reached from the current on-disk schema without a migration,
// under the policy in force.
type SchemaMismatchError struct {
	Changes []string
}

func (e *SchemaMismatchError) Error() string {
	var b strings.Builder
	b.WriteString("migration is required due to the following errors:")
	for _, c := range e.Changes {
		b.WriteString("\n- ")
		b.WriteString(c)
	}
	return b.String()
}

// InvalidSchemaVersionError is returned when the target version is lower
// than the version already stored on disk (outside of Additive mode,
// where a decrease is accepted as a no-op).
type InvalidSchemaVersionError struct {
	OldVersion uint64
	NewVersion uint64
}

func (e *InvalidSchemaVersionError) Error() string {
	return fmt.Sprintf("provided schema version %d is less than last set version %d", e.NewVersion, e.OldVersion)
}

// DuplicatePrimaryKeyValueError is returned when, after a migration
// callback returns, a primary-key column is found to contain duplicate
// values.
type DuplicatePrimaryKeyValueError struct {
	ObjectType string
	Property   string
}

func (e *DuplicatePrimaryKeyValueError) Error() string {
	return fmt.Sprintf("primary key property '%s.%s' has duplicate values after migration", e.ObjectType, e.Property)
}

// LogicError reports a caller-side invariant violation: a rename of a type
// the store doesn't manage, a rename to a property that doesn't resolve, a
// rename that would narrow or change type, use of an unimplemented mode,
// and so on.
type LogicError struct {
	Message string
}

func (e *LogicError) Error() string {
	return e.Message
}

// Logicf builds a *LogicError with a formatted message.
func Logicf(format string, args ...interface{}) *LogicError {
	return &LogicError{Message: fmt.Sprintf(format, args...)}
}
