// Package schemacore ties together pkg/schema, pkg/store, pkg/metadata
// and pkg/migrate into the programmatic surface an embedding application
// actually calls: open a file, reconcile its schema to a target, rename a
// property mid-migration, inspect its version or current shape.
package schemacore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/arkiliandb/schemacore/internal/errkit"
	"github.com/arkiliandb/schemacore/pkg/config"
	"github.com/arkiliandb/schemacore/pkg/metadata"
	"github.com/arkiliandb/schemacore/pkg/migrate"
	"github.com/arkiliandb/schemacore/pkg/schema"
	"github.com/arkiliandb/schemacore/pkg/store"
)

// Store is an opened schemacore-managed SQLite file.
type Store struct {
	db     *sql.DB
	cfg    *config.Config
	schema schema.Schema
	cached bool
}

// OpenStore opens (creating if necessary) the SQLite file named by
// cfg.Path. The returned Store has no schema applied yet; call
// UpdateSchema to reconcile it against a target.
func OpenStore(cfg *config.Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, errkit.Wrap(errkit.CategoryStorage, errkit.CodeOpenFailed, "failed to open sqlite file", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errkit.Wrap(errkit.CategoryStorage, errkit.CodeOpenFailed, "failed to open sqlite file", err)
	}
	return &Store{db: db, cfg: cfg}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithWriteTx runs fn inside a single write transaction: opens it, runs
// fn, commits on success and rolls back on error or panic. Every
// structural operation in this package (UpdateSchema, RenameProperty)
// expects to run inside one such transaction, matching the contract
// pkg/store documents (spec.md §5).
func (s *Store) WithWriteTx(fn func(group store.Group) error) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return errkit.Wrap(errkit.CategoryStorage, errkit.CodeTxFailed, "failed to begin write transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	group, err := store.NewSQLGroup(tx)
	if err != nil {
		return err
	}
	err = fn(group)
	return err
}

// UpdateSchema reconciles the file to target at targetVersion under
// cfg.Mode(), running entirely inside one write transaction. On success,
// the Store's cached schema (see Schema) is updated and a history entry is
// recorded; on any error, nothing is persisted.
func (s *Store) UpdateSchema(target schema.Schema, targetVersion uint64, migrationFn migrate.MigrationFunc) error {
	mode, err := s.cfg.Mode()
	if err != nil {
		return err
	}

	var result schema.Schema
	txErr := s.WithWriteTx(func(group store.Group) error {
		driver := migrate.NewDriver(group)
		driver.ManualModeEnabled = s.cfg.ManualModeEnabled

		r, err := driver.UpdateSchema(target, targetVersion, mode, migrationFn)
		if err != nil {
			return err
		}
		result = r

		history, err := store.NewHistory(group.(*store.SQLGroup).UnderlyingTx())
		if err != nil {
			return err
		}
		snapshot, err := store.MarshalSnapshot(target.Objects())
		if err != nil {
			return err
		}
		return history.Record(store.Entry{
			RunID:       newRunID(),
			AppliedAt:   time.Now(),
			Version:     targetVersion,
			Fingerprint: result.Fingerprint(),
			Snapshot:    snapshot,
		})
	})
	if txErr != nil {
		return txErr
	}

	s.schema = result
	s.cached = true
	return nil
}

// Schema returns the most recently reconciled schema. It panics if
// UpdateSchema has never succeeded; callers that haven't called it yet
// should use GetSchemaVersion or read the file's introspected shape via
// IntrospectSchema instead.
func (s *Store) Schema() schema.Schema {
	if !s.cached {
		panic("schemacore: Schema called before a successful UpdateSchema")
	}
	return s.schema
}

// GetSchemaVersion returns the file's current schema version, or
// schema.NotVersioned for a file that has never had a schema applied.
func (s *Store) GetSchemaVersion() (version uint64, err error) {
	err = s.WithWriteTx(func(group store.Group) error {
		v, e := metadata.GetSchemaVersion(group)
		version = v
		return e
	})
	return version, err
}

// IntrospectSchema reads the schema currently implemented by storage,
// independent of any cached in-memory schema.
func (s *Store) IntrospectSchema() (sc schema.Schema, err error) {
	err = s.WithWriteTx(func(group store.Group) error {
		v, e := metadata.SchemaFromGroup(group)
		sc = v
		return e
	})
	return sc, err
}

// RenameProperty renames a persisted property on objectType from oldName
// to newName inside the write transaction group belongs to, updating the
// caller-supplied passedSchema (see pkg/migrate.RenameProperty, which it
// forwards to). It is called from within a MigrationFunc passed to
// UpdateSchema.
func RenameProperty(group store.Group, passedSchema *schema.Schema, objectType, oldName, newName string) error {
	return migrate.RenameProperty(group, passedSchema, objectType, oldName, newName)
}

func newRunID() uuid.UUID {
	id, err := uuid.NewRandom()
	if err != nil {
		// uuid.NewRandom only fails if the system's entropy source is
		// unavailable; a v4 fallback derived from a fixed seed would
		// defeat the point of a correlation id, so this is fatal.
		panic(fmt.Sprintf("schemacore: failed to generate run id: %v", err))
	}
	return id
}
