package migrate

import (
	"github.com/arkiliandb/schemacore/pkg/metadata"
	"github.com/arkiliandb/schemacore/pkg/schema"
	"github.com/arkiliandb/schemacore/pkg/store"
)

// RenameProperty renames a persisted property in place, the only
// operation that distinguishes "this property was renamed" from "the old
// one was dropped and an unrelated new one was added" (spec.md §4.6). It
// is meant to be called from inside a MigrationFunc, against the same
// passedSchema the callback received, which it mutates in place.
//
// If newName doesn't resolve to a property in the on-disk schema, this is
// treated as an intermediate rename in a multi-step migration: the column
// is renamed and passedSchema is left alone, since the caller is expected
// to rename it again in a later migration before it needs to match the
// target schema.
func RenameProperty(group store.Group, passedSchema *schema.Schema, objectType, oldName, newName string) error {
	table, ok, err := group.GetTable(store.TableNameForObjectType(objectType))
	if err != nil {
		return err
	}
	if !ok {
		return schema.Logicf("cannot rename properties for type `%s` because it is not managed by this store.", objectType)
	}

	passedObject, ok := passedSchema.Find(objectType)
	if !ok {
		return schema.Logicf("cannot rename properties for type `%s` because it has been removed from the schema.", objectType)
	}

	matchingObject, ok, err := metadata.ObjectSchemaFromGroup(group, objectType)
	if err != nil {
		return err
	}
	if !ok {
		return schema.Logicf("cannot rename properties for type `%s` because it is not managed by this store.", objectType)
	}

	oldProperty := matchingObject.PropertyForName(oldName)
	if oldProperty == nil {
		return schema.Logicf("cannot rename property `%s.%s` because it does not exist.", objectType, oldName)
	}

	oldIndex, ok, err := table.ColumnIndex(oldName)
	if err != nil {
		return err
	}
	if !ok {
		return schema.Logicf("cannot rename property `%s.%s` because it does not exist.", objectType, oldName)
	}

	newProperty := matchingObject.PropertyForName(newName)
	if newProperty == nil {
		// Not in the on-disk schema yet: an intermediate rename in a
		// multi-version migration. Safe because schema validation will
		// fail downstream unless this property is renamed again before
		// the target schema is reached.
		return table.RenameColumn(oldIndex, newName)
	}

	if oldProperty.Type != newProperty.Type || oldProperty.ObjectType != newProperty.ObjectType {
		return schema.Logicf("cannot rename property `%s.%s` to `%s` because it would change from type `%s` to `%s`.",
			objectType, oldName, newName, oldProperty.Type, newProperty.Type)
	}

	if passedObject.PropertyForName(oldName) != nil {
		return schema.Logicf("cannot rename property `%s.%s` because it is still present in the target schema.", objectType, oldName)
	}

	if oldProperty.IsNullable && !newProperty.IsNullable {
		return schema.Logicf("cannot rename property `%s.%s` to `%s` because it would change from nullable to required.",
			objectType, oldName, newName)
	}
	promoteToNullable := !oldProperty.IsNullable && newProperty.IsNullable

	// The pre-migration stage already added a column named newName (since
	// schema.Compare has no rename concept, it always sees this as
	// AddProperty(newName) + RemoveProperty(oldName)). Unlike Realm Core's
	// index-addressed columns, SQLite forbids two columns sharing a name
	// even momentarily, so the freshly-added, still-empty column must be
	// dropped before oldIndex can be renamed into its place.
	columnToRemove := newProperty.TableColumn
	if err := table.RemoveColumn(columnToRemove); err != nil {
		return err
	}
	if columnToRemove < oldIndex {
		oldIndex--
	}
	if err := table.RenameColumn(oldIndex, newName); err != nil {
		return err
	}

	if promoteToNullable {
		// The old column was required and the new one is nullable: the
		// renamed column still carries the old NOT NULL constraint, so
		// it's value-preserving-converted the same way
		// ApplyPreMigrationChanges handles a plain MakePropertyNullable
		// (insert a nullable replacement, copy values across, drop the
		// original).
		if err := promoteColumnToNullable(table, newName, newProperty); err != nil {
			return err
		}
	}

	// Column positions may have shifted for every property after the one
	// just removed; rebind passedSchema's view of this object type.
	for i := range passedObject.PersistedProperties {
		idx, ok, err := table.ColumnIndex(passedObject.PersistedProperties[i].Name)
		if err != nil {
			return err
		}
		if ok {
			passedObject.PersistedProperties[i].TableColumn = idx
		}
	}

	return nil
}

// promoteColumnToNullable converts columnName, assumed required, into a
// nullable column of the same type while preserving every row's existing
// value. Mirrors internal/applier's replaceColumn/MakePropertyNullable
// handling, reimplemented here since that helper is unexported.
func promoteColumnToNullable(table store.Table, columnName string, prop *schema.Property) error {
	idx, ok, err := table.ColumnIndex(columnName)
	if err != nil {
		return err
	}
	if !ok {
		return schema.Logicf("cannot promote column `%s` to nullable because it does not exist.", columnName)
	}

	scratch := store.ColumnSpec{
		Name:     "__schemacore_tmp_" + columnName,
		Type:     prop.Type,
		Nullable: true,
	}
	if prop.Type == schema.Object || prop.Type == schema.Array {
		scratch.LinkTarget = store.TableNameForObjectType(prop.ObjectType)
	}

	if err := table.InsertColumn(idx, scratch); err != nil {
		return err
	}
	if err := table.CopyColumnValues(idx+1, idx); err != nil {
		return err
	}
	if err := table.RemoveColumn(idx + 1); err != nil {
		return err
	}
	return table.RenameColumn(idx, columnName)
}
