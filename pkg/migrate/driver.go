// Package migrate implements the per-mode reconciliation policy that
// decides how (and whether) the changes between the on-disk schema and a
// target schema get applied (spec.md §4.5, §5). It is the top-level entry
// point the rest of the module is built to serve: pkg/schema computes the
// diff, internal/applier knows how to execute one kind of change, and
// this package decides which of those to run for a given schema.Mode.
package migrate

import (
	"github.com/arkiliandb/schemacore/internal/applier"
	"github.com/arkiliandb/schemacore/pkg/metadata"
	"github.com/arkiliandb/schemacore/pkg/schema"
	"github.com/arkiliandb/schemacore/pkg/store"
)

// MigrationFunc is a caller-supplied callback invoked between the
// pre-migration and post-migration applier stages, with the chance to
// move or transform row data (and to call RenameProperty) before the
// post-migration stage finishes reconciling storage to newSchema. group is
// scoped to the same write transaction the whole UpdateSchema call runs
// in.
type MigrationFunc func(group store.Group, oldSchema, newSchema schema.Schema) error

// Driver runs UpdateSchema against one store.Group.
type Driver struct {
	Group store.Group

	// ManualModeEnabled gates schema.Manual; see pkg/config.
	ManualModeEnabled bool
}

// NewDriver wraps group. The caller is responsible for the write
// transaction group is scoped to; see pkg/store.SQLGroup.
func NewDriver(group store.Group) *Driver {
	return &Driver{Group: group}
}

// UpdateSchema reconciles the file's on-disk schema to target under mode,
// returning the resulting schema.Schema (persisted properties bound to
// their storage columns) or an error. On error, storage may have been
// partially modified within the current transaction — the caller must
// roll that transaction back; this call never attempts its own recovery
// across a transaction boundary (spec.md §5).
func (d *Driver) UpdateSchema(target schema.Schema, targetVersion uint64, mode schema.Mode, migrationFn MigrationFunc) (schema.Schema, error) {
	if err := target.Validate(); err != nil {
		return schema.Schema{}, err
	}

	currentVersion, err := metadata.GetSchemaVersion(d.Group)
	if err != nil {
		return schema.Schema{}, err
	}

	switch mode {
	case schema.ReadOnly:
		return d.updateReadOnly(target, targetVersion, currentVersion)
	case schema.ResetFile:
		return d.updateResetFile(target, targetVersion, currentVersion)
	case schema.Additive:
		return d.updateAdditive(target, targetVersion, currentVersion)
	case schema.Manual:
		return d.updateManual(target, targetVersion, currentVersion, migrationFn)
	default:
		return d.updateAutomatic(target, targetVersion, currentVersion, migrationFn)
	}
}

func (d *Driver) checkVersionOrder(currentVersion, targetVersion uint64) error {
	if currentVersion != schema.NotVersioned && currentVersion > targetVersion {
		return &schema.InvalidSchemaVersionError{OldVersion: currentVersion, NewVersion: targetVersion}
	}
	return nil
}

func (d *Driver) finalize(target schema.Schema, targetVersion uint64) (schema.Schema, error) {
	if err := metadata.SetSchemaVersion(d.Group, targetVersion); err != nil {
		return schema.Schema{}, err
	}
	result := target.Clone()
	if err := metadata.SetSchemaColumns(d.Group, &result); err != nil {
		return schema.Schema{}, err
	}
	return result, nil
}

func (d *Driver) updateAutomatic(target schema.Schema, targetVersion, currentVersion uint64, migrationFn MigrationFunc) (schema.Schema, error) {
	if err := d.checkVersionOrder(currentVersion, targetVersion); err != nil {
		return schema.Schema{}, err
	}
	if err := metadata.CreateMetadataTables(d.Group); err != nil {
		return schema.Schema{}, err
	}

	current, err := metadata.SchemaFromGroup(d.Group)
	if err != nil {
		return schema.Schema{}, err
	}

	if currentVersion == targetVersion && current.Fingerprint() == target.Fingerprint() && current.Equal(target) {
		// Fingerprint is a cheap pre-check, not a substitute for Equal
		// (it can collide): a match here only skips the Compare/Apply
		// walk once Equal has confirmed there's really nothing to do.
		return d.finalize(target, targetVersion)
	}

	changes := current.Compare(&target)

	if currentVersion == targetVersion {
		if err := applier.ApplyNonMigrationChanges(d.Group, changes); err != nil {
			return schema.Schema{}, err
		}
		return d.finalize(target, targetVersion)
	}

	if currentVersion == schema.NotVersioned {
		if err := applier.CreateInitialTables(d.Group, changes); err != nil {
			return schema.Schema{}, err
		}
		return d.finalize(target, targetVersion)
	}

	if err := applier.ApplyPreMigrationChanges(d.Group, changes); err != nil {
		return schema.Schema{}, err
	}

	if migrationFn != nil {
		oldSchema := current
		boundTarget := target.Clone()
		if err := metadata.SetSchemaColumns(d.Group, &boundTarget); err != nil {
			return schema.Schema{}, err
		}
		if err := migrationFn(d.Group, oldSchema, boundTarget); err != nil {
			return schema.Schema{}, err
		}
		reintrospected, err := metadata.SchemaFromGroup(d.Group)
		if err != nil {
			return schema.Schema{}, err
		}
		postChanges := reintrospected.Compare(&target)
		if err := applier.ApplyPostMigrationChanges(d.Group, postChanges, &oldSchema); err != nil {
			return schema.Schema{}, err
		}
		if err := applier.ValidatePrimaryColumnUniqueness(d.Group); err != nil {
			return schema.Schema{}, err
		}
	} else {
		if err := applier.ApplyPostMigrationChanges(d.Group, changes, nil); err != nil {
			return schema.Schema{}, err
		}
	}

	return d.finalize(target, targetVersion)
}

func (d *Driver) updateReadOnly(target schema.Schema, targetVersion, currentVersion uint64) (schema.Schema, error) {
	if currentVersion != schema.NotVersioned && currentVersion != targetVersion {
		return schema.Schema{}, &schema.InvalidSchemaVersionError{OldVersion: currentVersion, NewVersion: targetVersion}
	}

	current, err := metadata.SchemaFromGroup(d.Group)
	if err != nil {
		return schema.Schema{}, err
	}
	changes := current.Compare(&target)

	if err := applier.VerifyNoMigrationRequired(changes); err != nil {
		return schema.Schema{}, err
	}

	result := target.Clone()
	if err := metadata.SetSchemaColumns(d.Group, &result); err != nil {
		return schema.Schema{}, err
	}
	return result, nil
}

func (d *Driver) updateResetFile(target schema.Schema, targetVersion, currentVersion uint64) (schema.Schema, error) {
	if err := metadata.CreateMetadataTables(d.Group); err != nil {
		return schema.Schema{}, err
	}

	current, err := metadata.SchemaFromGroup(d.Group)
	if err != nil {
		return schema.Schema{}, err
	}
	changes := current.Compare(&target)

	if currentVersion == targetVersion {
		if err := applier.ApplyNonMigrationChanges(d.Group, changes); err == nil {
			return d.finalize(target, targetVersion)
		}
		// A disallowed diff at the same version still forces the
		// reset-and-rebuild below rather than surfacing the error.
	} else if empty, emptyErr := d.Group.IsEmpty(); emptyErr != nil {
		return schema.Schema{}, emptyErr
	} else if empty {
		// Nothing on disk to lose: a drop-and-recreate would produce
		// exactly what building the target schema in place does, so
		// skip the silent in-place reset entirely.
		if err := applier.CreateInitialTables(d.Group, changes); err != nil {
			return schema.Schema{}, err
		}
		return d.finalize(target, targetVersion)
	}

	if err := d.resetAllData(); err != nil {
		return schema.Schema{}, err
	}
	emptySchema := schema.New()
	fresh := emptySchema.Compare(&target)
	if err := applier.CreateInitialTables(d.Group, fresh); err != nil {
		return schema.Schema{}, err
	}
	return d.finalize(target, targetVersion)
}

// resetAllData drops every class_-prefixed table and the pk/metadata
// bookkeeping tables, leaving the group empty so it can be rebuilt from
// scratch against the target schema.
func (d *Driver) resetAllData() error {
	names, err := d.Group.TableNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		if store.ObjectTypeForTableName(name) == "" && name != "pk" && name != "metadata" {
			continue
		}
		if err := d.Group.RemoveTable(name); err != nil {
			return err
		}
	}
	return metadata.CreateMetadataTables(d.Group)
}

func (d *Driver) updateAdditive(target schema.Schema, targetVersion, currentVersion uint64) (schema.Schema, error) {
	if currentVersion != schema.NotVersioned && targetVersion < currentVersion {
		// A version decrease is accepted as a no-op in Additive mode.
		current, err := metadata.SchemaFromGroup(d.Group)
		if err != nil {
			return schema.Schema{}, err
		}
		return current, nil
	}

	if err := metadata.CreateMetadataTables(d.Group); err != nil {
		return schema.Schema{}, err
	}
	current, err := metadata.SchemaFromGroup(d.Group)
	if err != nil {
		return schema.Schema{}, err
	}
	changes := current.Compare(&target)

	versionBumped := currentVersion == schema.NotVersioned || targetVersion > currentVersion
	if err := applier.ApplyAdditiveChanges(d.Group, changes, versionBumped); err != nil {
		return schema.Schema{}, err
	}

	return d.finalize(target, targetVersion)
}

func (d *Driver) updateManual(target schema.Schema, targetVersion, currentVersion uint64, migrationFn MigrationFunc) (schema.Schema, error) {
	if !d.ManualModeEnabled {
		return schema.Schema{}, schema.Logicf("schema.Manual mode is not enabled; set Driver.ManualModeEnabled (and pkg/config.Config.ManualModeEnabled) to opt in")
	}
	if migrationFn == nil {
		return schema.Schema{}, schema.Logicf("schema.Manual mode requires a migration callback")
	}
	if err := metadata.CreateMetadataTables(d.Group); err != nil {
		return schema.Schema{}, err
	}

	current, err := metadata.SchemaFromGroup(d.Group)
	if err != nil {
		return schema.Schema{}, err
	}
	boundTarget := target.Clone()
	if err := metadata.SetSchemaColumns(d.Group, &boundTarget); err != nil {
		return schema.Schema{}, err
	}
	if err := migrationFn(d.Group, current, boundTarget); err != nil {
		return schema.Schema{}, err
	}

	reintrospected, err := metadata.SchemaFromGroup(d.Group)
	if err != nil {
		return schema.Schema{}, err
	}
	if !reintrospected.Equal(target) {
		return schema.Schema{}, schema.Logicf("manual migration callback did not leave storage matching the target schema")
	}

	return d.finalize(target, targetVersion)
}
