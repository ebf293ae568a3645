// Package applier implements the five-stage pipeline that turns a slice of
// schema.Change into actual structural edits against a store.Group
// (spec.md §5). Every stage is an exhaustive type switch over
// schema.Change rather than the visitor-struct-per-stage idiom the
// teacher's C++ ancestor uses, since Go has no operator overloading to
// dispatch on — a type switch is the idiomatic stand-in.
package applier

import (
	"fmt"

	"github.com/arkiliandb/schemacore/pkg/metadata"
	"github.com/arkiliandb/schemacore/pkg/schema"
	"github.com/arkiliandb/schemacore/pkg/store"
)

func columnSpecForProperty(p *schema.Property) store.ColumnSpec {
	spec := store.ColumnSpec{
		Name:     p.Name,
		Type:     p.Type,
		Nullable: p.EffectiveNullable(),
	}
	if p.Type == schema.Object || p.Type == schema.Array {
		spec.LinkTarget = store.TableNameForObjectType(p.ObjectType)
	}
	return spec
}

// ensureLinkTarget makes sure a link property's target table exists before
// the column pointing at it is created, mirroring insert_column's
// group.get_or_add_table(target_name) call: a table may need to exist as
// a link target before its own AddTable change is processed.
func ensureLinkTarget(group store.Group, p *schema.Property) error {
	if p.Type != schema.Object && p.Type != schema.Array {
		return nil
	}
	_, err := group.GetOrAddTable(store.TableNameForObjectType(p.ObjectType))
	return err
}

func addColumn(group store.Group, table store.Table, p *schema.Property) error {
	if err := ensureLinkTarget(group, p); err != nil {
		return err
	}
	spec := columnSpecForProperty(p)
	if err := table.AddColumn(spec); err != nil {
		return err
	}
	if p.EffectiveIndexed() {
		idx, ok, err := table.ColumnIndex(p.Name)
		if err != nil {
			return err
		}
		if ok {
			if err := table.AddSearchIndex(idx); err != nil {
				return err
			}
		}
	}
	return nil
}

// replaceColumn inserts a column with newSpec at oldName's current
// position, optionally copies every row's value across, then drops
// oldName and renames the replacement into place. SQLite (unlike the
// column-index-addressed storage this pipeline was modeled on) rejects
// two same-named columns existing at once, so the replacement briefly
// lives under a scratch name instead of sharing oldName with the column
// it's replacing.
func replaceColumn(group store.Group, table store.Table, oldName string, newSpec store.ColumnSpec, copyData bool) error {
	oldIndex, ok, err := table.ColumnIndex(oldName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("applier: column %s.%s not found", table.Name(), oldName)
	}

	finalName := newSpec.Name
	scratch := newSpec
	scratch.Name = "__schemacore_tmp_" + finalName
	if err := table.InsertColumn(oldIndex, scratch); err != nil {
		return err
	}
	if copyData {
		if err := table.CopyColumnValues(oldIndex+1, oldIndex); err != nil {
			return err
		}
	}
	if err := table.RemoveColumn(oldIndex + 1); err != nil {
		return err
	}
	return table.RenameColumn(oldIndex, finalName)
}

func createTable(group store.Group, object *schema.ObjectSchema) (store.Table, error) {
	table, err := group.GetOrAddTable(store.TableNameForObjectType(object.Name))
	if err != nil {
		return nil, err
	}
	if err := metadata.SetPrimaryKeyForObject(group, object.Name, object.PrimaryKey); err != nil {
		return nil, err
	}
	return table, nil
}

func applyIndexChange(group store.Group, c schema.Change) error {
	switch op := c.(type) {
	case schema.AddIndex:
		table, ok, err := group.GetTable(store.TableNameForObjectType(op.Object().Name))
		if err != nil || !ok {
			return err
		}
		idx, ok, err := table.ColumnIndex(op.Property.Name)
		if err != nil || !ok {
			return err
		}
		if !op.Property.IsIndexable() {
			return schema.Logicf("cannot index property '%s.%s': indexing properties of type '%s' is not supported",
				op.Object().Name, op.Property.Name, op.Property.Type)
		}
		return table.AddSearchIndex(idx)
	case schema.RemoveIndex:
		table, ok, err := group.GetTable(store.TableNameForObjectType(op.Object().Name))
		if err != nil || !ok {
			return err
		}
		idx, ok, err := table.ColumnIndex(op.Property.Name)
		if err != nil || !ok {
			return err
		}
		return table.RemoveSearchIndex(idx)
	}
	return nil
}

// migrationMessage renders the human-readable complaint used by both
// VerifyNoMigrationRequired and ApplyNonMigrationChanges when a change
// needs a migration that the caller hasn't provided one for.
func migrationMessage(c schema.Change) string {
	switch op := c.(type) {
	case schema.AddProperty:
		return fmt.Sprintf("Property '%s.%s' has been added.", op.Object().Name, op.Property.Name)
	case schema.RemoveProperty:
		return fmt.Sprintf("Property '%s.%s' has been removed.", op.Object().Name, op.Property.Name)
	case schema.ChangePropertyType:
		return fmt.Sprintf("Property '%s.%s' has been changed from '%s' to '%s'.",
			op.Object().Name, op.NewProperty.Name, op.OldProperty.Type, op.NewProperty.Type)
	case schema.MakePropertyNullable:
		return fmt.Sprintf("Property '%s.%s' has been made optional.", op.Object().Name, op.Property.Name)
	case schema.MakePropertyRequired:
		return fmt.Sprintf("Property '%s.%s' has been made required.", op.Object().Name, op.Property.Name)
	case schema.ChangePrimaryKey:
		switch {
		case op.Property != nil && op.Object().PrimaryKey != "":
			return fmt.Sprintf("Primary key for class '%s' has changed to '%s'.", op.Object().Name, op.Property.Name)
		case op.Property != nil:
			return fmt.Sprintf("Primary key for class '%s' has been added.", op.Object().Name)
		default:
			return fmt.Sprintf("Primary key for class '%s' has been removed.", op.Object().Name)
		}
	case schema.AddIndex:
		return fmt.Sprintf("Index for property '%s.%s' has been added without a version bump.", op.Object().Name, op.Property.Name)
	case schema.RemoveIndex:
		return fmt.Sprintf("Index for property '%s.%s' has been removed without a version bump.", op.Object().Name, op.Property.Name)
	default:
		return ""
	}
}

// needsMigrationMessage reports whether c is one of the change kinds that
// requires a migration; AddTable, AddIndex and RemoveIndex do not.
func needsMigrationMessage(c schema.Change) bool {
	switch c.(type) {
	case schema.AddTable, schema.AddIndex, schema.RemoveIndex:
		return false
	default:
		return true
	}
}

// VerifyNoMigrationRequired returns a *schema.SchemaMismatchError if any
// change in the slice would require a migration, with one exception: a
// property added to a table that the same change slice also adds (a
// brand-new type) is not itself a mismatch, since the whole table is new.
func VerifyNoMigrationRequired(changes []schema.Change) error {
	var messages []string
	var currentObject *schema.ObjectSchema

	for _, c := range changes {
		switch op := c.(type) {
		case schema.AddTable:
			currentObject = op.Object()
		case schema.AddProperty:
			if op.Object() != currentObject {
				messages = append(messages, migrationMessage(c))
			}
		default:
			if needsMigrationMessage(c) {
				messages = append(messages, migrationMessage(c))
			}
		}
	}

	if len(messages) > 0 {
		return &schema.SchemaMismatchError{Changes: messages}
	}
	return nil
}

// ApplyNonMigrationChanges applies a change set whose target version
// equals the file's current version: a brand-new table may be created in
// full, indices may be added or removed freely, but anything else is a
// mismatch the caller must resolve with a version bump and a migration.
func ApplyNonMigrationChanges(group store.Group, changes []schema.Change) error {
	var messages []string
	var currentObject *schema.ObjectSchema
	var currentTable store.Table

	for _, c := range changes {
		switch op := c.(type) {
		case schema.AddTable:
			currentObject = op.Object()
			table, err := createTable(group, op.Object())
			if err != nil {
				return err
			}
			currentTable = table
		case schema.AddProperty:
			if op.Object() == currentObject {
				if err := addColumn(group, currentTable, op.Property); err != nil {
					return err
				}
			} else {
				messages = append(messages, migrationMessage(c))
			}
		case schema.AddIndex, schema.RemoveIndex:
			if err := applyIndexChange(group, c); err != nil {
				return err
			}
		default:
			messages = append(messages, migrationMessage(c))
		}
	}

	if len(messages) > 0 {
		return &schema.SchemaMismatchError{Changes: messages}
	}
	return nil
}

// CreateInitialTables builds a brand-new file's tables from scratch: used
// when the on-disk schema version is schema.NotVersioned, i.e. the file
// has never had a schema applied to it before. Every change kind is
// applied immediately, RemoveProperty included; column replacements for
// ChangePropertyType/MakePropertyNullable/MakePropertyRequired go through
// replaceColumn exactly as in the pre-migration stage.
func CreateInitialTables(group store.Group, changes []schema.Change) error {
	var currentObject *schema.ObjectSchema
	var currentTable store.Table

	selectTable := func(object *schema.ObjectSchema) error {
		if object == currentObject {
			return nil
		}
		table, ok, err := group.GetTable(store.TableNameForObjectType(object.Name))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("applier: table for %s missing during initial table creation", object.Name)
		}
		currentObject, currentTable = object, table
		return nil
	}

	for _, c := range changes {
		switch op := c.(type) {
		case schema.AddTable:
			table, err := createTable(group, op.Object())
			if err != nil {
				return err
			}
			currentObject, currentTable = op.Object(), table
		case schema.AddProperty:
			if err := selectTable(op.Object()); err != nil {
				return err
			}
			if err := addColumn(group, currentTable, op.Property); err != nil {
				return err
			}
		case schema.RemoveProperty:
			if err := selectTable(op.Object()); err != nil {
				return err
			}
			idx, ok, err := currentTable.ColumnIndex(op.Property.Name)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := currentTable.RemoveColumn(idx); err != nil {
				return err
			}
		case schema.ChangePropertyType:
			if err := selectTable(op.Object()); err != nil {
				return err
			}
			if err := ensureLinkTarget(group, op.NewProperty); err != nil {
				return err
			}
			if err := replaceColumn(group, currentTable, op.OldProperty.Name, columnSpecForProperty(op.NewProperty), false); err != nil {
				return err
			}
		case schema.MakePropertyNullable:
			if err := selectTable(op.Object()); err != nil {
				return err
			}
			spec := columnSpecForProperty(op.Property)
			spec.Nullable = true
			if err := replaceColumn(group, currentTable, op.Property.Name, spec, true); err != nil {
				return err
			}
		case schema.MakePropertyRequired:
			if err := selectTable(op.Object()); err != nil {
				return err
			}
			spec := columnSpecForProperty(op.Property)
			spec.Nullable = false
			if err := replaceColumn(group, currentTable, op.Property.Name, spec, false); err != nil {
				return err
			}
		case schema.ChangePrimaryKey:
			name := ""
			if op.Property != nil {
				name = op.Property.Name
			}
			if err := metadata.SetPrimaryKeyForObject(group, op.Object().Name, name); err != nil {
				return err
			}
		case schema.AddIndex, schema.RemoveIndex:
			if err := applyIndexChange(group, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// ApplyPreMigrationChanges runs before the caller's migration callback:
// every additive change is applied so the callback sees the new shape,
// but RemoveProperty is delayed until ApplyPostMigrationChanges so the
// callback can still read the old column's values (and, if it instead
// renames the property, the column never needs removing at all).
func ApplyPreMigrationChanges(group store.Group, changes []schema.Change) error {
	var currentObject *schema.ObjectSchema
	var currentTable store.Table

	getTable := func(object *schema.ObjectSchema) (store.Table, error) {
		if object == currentObject {
			return currentTable, nil
		}
		table, ok, err := group.GetTable(store.TableNameForObjectType(object.Name))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("applier: table for %s missing during pre-migration apply", object.Name)
		}
		currentObject, currentTable = object, table
		return table, nil
	}

	for _, c := range changes {
		switch op := c.(type) {
		case schema.AddTable:
			table, err := createTable(group, op.Object())
			if err != nil {
				return err
			}
			currentObject, currentTable = op.Object(), table
		case schema.AddProperty:
			table, err := getTable(op.Object())
			if err != nil {
				return err
			}
			if err := addColumn(group, table, op.Property); err != nil {
				return err
			}
		case schema.RemoveProperty:
			// delayed until after the migration callback runs
		case schema.ChangePropertyType:
			table, err := getTable(op.Object())
			if err != nil {
				return err
			}
			if err := ensureLinkTarget(group, op.NewProperty); err != nil {
				return err
			}
			if err := replaceColumn(group, table, op.OldProperty.Name, columnSpecForProperty(op.NewProperty), false); err != nil {
				return err
			}
		case schema.MakePropertyNullable:
			table, err := getTable(op.Object())
			if err != nil {
				return err
			}
			spec := columnSpecForProperty(op.Property)
			spec.Nullable = true
			if err := replaceColumn(group, table, op.Property.Name, spec, true); err != nil {
				return err
			}
		case schema.MakePropertyRequired:
			table, err := getTable(op.Object())
			if err != nil {
				return err
			}
			spec := columnSpecForProperty(op.Property)
			spec.Nullable = false
			if err := replaceColumn(group, table, op.Property.Name, spec, false); err != nil {
				return err
			}
		case schema.ChangePrimaryKey:
			name := ""
			if op.Property != nil {
				name = op.Property.Name
			}
			if err := metadata.SetPrimaryKeyForObject(group, op.Object().Name, name); err != nil {
				return err
			}
		case schema.AddIndex, schema.RemoveIndex:
			if err := applyIndexChange(group, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// ApplyPostMigrationChanges runs after the migration callback and
// re-diffing against the (possibly renamed) resulting schema. initial is
// the pre-callback schema snapshot: a RemoveProperty against a property
// that didn't even exist in initial means the callback renamed a property
// to a brand-new name without going through RenameProperty, which is a
// caller error rather than a legitimate removal.
func ApplyPostMigrationChanges(group store.Group, changes []schema.Change, initial *schema.Schema) error {
	for _, c := range changes {
		switch op := c.(type) {
		case schema.RemoveProperty:
			if initial != nil && !initial.Empty() {
				initialObject, ok := initial.Find(op.Object().Name)
				if ok && initialObject.PropertyForName(op.Property.Name) == nil {
					return schema.Logicf("renamed property `%s.%s` does not exist.", op.Object().Name, op.Property.Name)
				}
			}
			table, ok, err := group.GetTable(store.TableNameForObjectType(op.Object().Name))
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			idx, ok, err := table.ColumnIndex(op.Property.Name)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := table.RemoveColumn(idx); err != nil {
				return err
			}
		case schema.ChangePrimaryKey:
			if op.Property == nil {
				continue
			}
			table, ok, err := group.GetTable(store.TableNameForObjectType(op.Object().Name))
			if err != nil || !ok {
				return err
			}
			idx, ok, err := table.ColumnIndex(op.Property.Name)
			if err != nil || !ok {
				return err
			}
			distinct, err := table.DistinctCount(idx)
			if err != nil {
				return err
			}
			size, err := table.Size()
			if err != nil {
				return err
			}
			if distinct != size {
				return &schema.DuplicatePrimaryKeyValueError{ObjectType: op.Object().Name, Property: op.Property.Name}
			}
		case schema.AddIndex, schema.RemoveIndex:
			if err := applyIndexChange(group, c); err != nil {
				return err
			}
		default:
			// AddTable, AddProperty, ChangePropertyType,
			// MakePropertyNullable, MakePropertyRequired were already
			// fully applied in the pre-migration stage.
		}
	}
	return nil
}

// ApplyAdditiveChanges applies the subset of changes permitted in
// schema.Additive mode: new tables and new properties are always allowed;
// index changes are always allowed but applied only when versionBumped
// (the target version is higher than what's on disk, or the file has never
// been versioned) and skipped otherwise; any other change kind is a
// mismatch the mode forbids outright.
func ApplyAdditiveChanges(group store.Group, changes []schema.Change, versionBumped bool) error {
	var messages []string
	var currentObject *schema.ObjectSchema
	var currentTable store.Table

	getOrCreateTable := func(object *schema.ObjectSchema) (store.Table, error) {
		if object == currentObject {
			return currentTable, nil
		}
		table, err := group.GetOrAddTable(store.TableNameForObjectType(object.Name))
		if err != nil {
			return nil, err
		}
		currentObject, currentTable = object, table
		return table, nil
	}

	for _, c := range changes {
		switch op := c.(type) {
		case schema.AddTable:
			table, err := createTable(group, op.Object())
			if err != nil {
				return err
			}
			currentObject, currentTable = op.Object(), table
		case schema.AddProperty:
			table, err := getOrCreateTable(op.Object())
			if err != nil {
				return err
			}
			if err := addColumn(group, table, op.Property); err != nil {
				return err
			}
		case schema.AddIndex, schema.RemoveIndex:
			if versionBumped {
				if err := applyIndexChange(group, c); err != nil {
					return err
				}
			}
		default:
			messages = append(messages, migrationMessage(c))
		}
	}

	if len(messages) > 0 {
		return &schema.SchemaMismatchError{Changes: messages}
	}
	return nil
}

// ValidatePrimaryColumnUniqueness checks every recorded primary key across
// every object type for duplicate values, used after a migration callback
// has returned and ApplyPostMigrationChanges has run: the callback may have
// written duplicate values into any primary-key column, not only one whose
// primary key changed.
func ValidatePrimaryColumnUniqueness(group store.Group) error {
	pkTable, ok, err := group.GetTable("pk")
	if err != nil || !ok {
		return err
	}
	size, err := pkTable.Size()
	if err != nil {
		return err
	}
	for row := 0; row < int(size); row++ {
		objectType, err := pkTable.ReadString(row, 0)
		if err != nil {
			return err
		}
		propertyName, err := pkTable.ReadString(row, 1)
		if err != nil {
			return err
		}
		if propertyName == "" {
			continue
		}
		table, ok, err := group.GetTable(store.TableNameForObjectType(objectType))
		if err != nil || !ok {
			continue
		}
		idx, ok, err := table.ColumnIndex(propertyName)
		if err != nil || !ok {
			continue
		}
		distinct, err := table.DistinctCount(idx)
		if err != nil {
			return err
		}
		size, err := table.Size()
		if err != nil {
			return err
		}
		if distinct != size {
			return &schema.DuplicatePrimaryKeyValueError{ObjectType: objectType, Property: propertyName}
		}
	}
	return nil
}
