// Package metadata manages the two bookkeeping tables a schemacore file
// carries alongside its object tables (spec.md §4.1): "pk", recording
// which property (if any) is the primary key for each object type, and
// "metadata", a single-row table holding the schema version. It also
// introspects a Group's object tables back into a schema.Schema, and
// rebinds a schema.Schema's transient Property.TableColumn fields after
// any structural change to storage (spec.md §4.6).
package metadata

import (
	"fmt"

	"github.com/arkiliandb/schemacore/pkg/schema"
	"github.com/arkiliandb/schemacore/pkg/store"
)

const (
	pkTableName       = "pk"
	metadataTableName = "metadata"
)

// CreateMetadataTables ensures both bookkeeping tables exist, creating
// them (with no object-type rows and a NotVersioned metadata row) the
// first time a schemacore file is opened.
func CreateMetadataTables(group store.Group) error {
	pk, err := group.GetOrAddTable(pkTableName)
	if err != nil {
		return fmt.Errorf("metadata: failed to create pk table: %w", err)
	}
	if err := ensureColumns(pk, []store.ColumnSpec{
		{Name: "pk_table", Type: schema.String, Nullable: false},
		{Name: "pk_property", Type: schema.String, Nullable: true},
	}); err != nil {
		return err
	}

	meta, err := group.GetOrAddTable(metadataTableName)
	if err != nil {
		return fmt.Errorf("metadata: failed to create metadata table: %w", err)
	}
	if err := ensureColumns(meta, []store.ColumnSpec{
		{Name: "version", Type: schema.Int, Nullable: false},
	}); err != nil {
		return err
	}
	size, err := meta.Size()
	if err != nil {
		return err
	}
	if size == 0 {
		if err := meta.AddEmptyRows(1); err != nil {
			return err
		}
		notVersioned := schema.NotVersioned
		if err := meta.WriteInt(0, 0, int64(notVersioned)); err != nil {
			return err
		}
	}
	return nil
}

func ensureColumns(t store.Table, want []store.ColumnSpec) error {
	for _, spec := range want {
		if _, ok, err := t.ColumnIndex(spec.Name); err != nil {
			return err
		} else if ok {
			continue
		}
		if err := t.AddColumn(spec); err != nil {
			return fmt.Errorf("metadata: failed to add column %s.%s: %w", t.Name(), spec.Name, err)
		}
	}
	return nil
}

// GetSchemaVersion returns the version recorded in the metadata table, or
// schema.NotVersioned if the table doesn't exist yet (a brand-new file).
func GetSchemaVersion(group store.Group) (uint64, error) {
	meta, ok, err := group.GetTable(metadataTableName)
	if err != nil {
		return 0, err
	}
	if !ok {
		return schema.NotVersioned, nil
	}
	size, err := meta.Size()
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return schema.NotVersioned, nil
	}
	v, err := meta.ReadInt(0, 0)
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}

// SetSchemaVersion records version as the file's current schema version,
// creating the metadata table if necessary.
func SetSchemaVersion(group store.Group, version uint64) error {
	if err := CreateMetadataTables(group); err != nil {
		return err
	}
	meta, _, err := group.GetTable(metadataTableName)
	if err != nil {
		return err
	}
	return meta.WriteInt(0, 0, int64(version))
}

// GetPrimaryKeyForObject returns the primary-key property name recorded
// for objectType. found is false if the "pk" table has no row for this
// object type at all (the type has never been created); a row present
// with an empty property name means the type exists but deliberately has
// no primary key.
func GetPrimaryKeyForObject(group store.Group, objectType string) (propertyName string, found bool, err error) {
	pk, ok, err := group.GetTable(pkTableName)
	if err != nil || !ok {
		return "", false, err
	}
	row, ok, err := pk.FindFirst(0, objectType)
	if err != nil || !ok {
		return "", false, err
	}
	name, err := pk.ReadString(row, 1)
	return name, true, err
}

// SetPrimaryKeyForObject records propertyName ("" to clear) as the
// primary key for objectType, adding a row to the "pk" table if this is
// the first time the object type is recorded.
func SetPrimaryKeyForObject(group store.Group, objectType, propertyName string) error {
	if err := CreateMetadataTables(group); err != nil {
		return err
	}
	pk, _, err := group.GetTable(pkTableName)
	if err != nil {
		return err
	}
	row, ok, err := pk.FindFirst(0, objectType)
	if err != nil {
		return err
	}
	if !ok {
		size, err := pk.Size()
		if err != nil {
			return err
		}
		if err := pk.AddEmptyRows(1); err != nil {
			return err
		}
		row = int(size)
		if err := pk.WriteString(row, 0, objectType); err != nil {
			return err
		}
	}
	return pk.WriteString(row, 1, propertyName)
}

// SchemaFromGroup introspects every class_-prefixed table in group and
// returns the schema.Schema it currently implements. Computed properties
// (LinkingObjects) are never physically stored, so only
// PersistedProperties are populated — ComputedProperties must be supplied
// by whoever declares the target schema, never read back from storage.
func SchemaFromGroup(group store.Group) (schema.Schema, error) {
	names, err := group.TableNames()
	if err != nil {
		return schema.Schema{}, err
	}

	var objects []schema.ObjectSchema
	for _, name := range names {
		objectType := store.ObjectTypeForTableName(name)
		if objectType == "" {
			continue
		}
		obj, ok, err := ObjectSchemaFromGroup(group, objectType)
		if err != nil {
			return schema.Schema{}, err
		}
		if !ok {
			continue
		}
		objects = append(objects, *obj)
	}

	return schema.New(objects...), nil
}

// ObjectSchemaFromGroup introspects a single object type's table, or
// returns ok=false if no table backs it.
func ObjectSchemaFromGroup(group store.Group, objectType string) (*schema.ObjectSchema, bool, error) {
	table, ok, err := group.GetTable(store.TableNameForObjectType(objectType))
	if err != nil || !ok {
		return nil, false, err
	}
	specs, err := table.Columns()
	if err != nil {
		return nil, false, err
	}
	pkName, _, err := GetPrimaryKeyForObject(group, objectType)
	if err != nil {
		return nil, false, err
	}

	props := make([]schema.Property, len(specs))
	for i, spec := range specs {
		indexed, err := table.HasSearchIndex(i)
		if err != nil {
			return nil, false, err
		}
		props[i] = schema.Property{
			Name:        spec.Name,
			Type:        spec.Type,
			ObjectType:  store.ObjectTypeForTableName(spec.LinkTarget),
			IsPrimary:   spec.Name == pkName,
			IsIndexed:   indexed,
			IsNullable:  spec.Nullable,
			TableColumn: i,
		}
	}

	return &schema.ObjectSchema{
		Name:                objectType,
		PersistedProperties: props,
		PrimaryKey:          pkName,
	}, true, nil
}

// SetSchemaColumns rebinds every persisted property's TableColumn field in
// target to match what's currently in storage, by property name. It must
// be called after any structural change to the Group before the schema is
// used for row access again (spec.md §4.6) — table_column indices are
// never stable across AddColumn/InsertColumn/RemoveColumn calls.
func SetSchemaColumns(group store.Group, target *schema.Schema) error {
	for i := range target.Objects() {
		obj := &target.Objects()[i]
		table, ok, err := group.GetTable(store.TableNameForObjectType(obj.Name))
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		for j := range obj.PersistedProperties {
			prop := &obj.PersistedProperties[j]
			index, found, err := table.ColumnIndex(prop.Name)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("metadata: column %s.%s missing from storage after schema change", obj.Name, prop.Name)
			}
			prop.TableColumn = index
		}
	}
	return nil
}
