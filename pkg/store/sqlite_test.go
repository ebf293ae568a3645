package store

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arkiliandb/schemacore/pkg/schema"
)

// openTestDB opens a temporary on-disk SQLite database, returning it plus a
// cleanup func that closes it and removes the file. SQLite only allows one
// writer at a time, so tests that need their own transaction (rather than
// one already wrapped by openTestGroup) start from here instead.
func openTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "schemacore_store_test_*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()

	db, err := sql.Open("sqlite3", tmpFile.Name())
	if err != nil {
		t.Fatalf("failed to open sqlite file: %v", err)
	}
	db.SetMaxOpenConns(1)

	cleanup := func() {
		db.Close()
		os.Remove(tmpFile.Name())
	}
	return db, cleanup
}

// openTestGroup opens a temporary on-disk SQLite database and returns a
// SQLGroup backed by an open write transaction, plus a cleanup func that
// rolls the transaction back, closes the database, and removes the file.
func openTestGroup(t *testing.T) (*SQLGroup, *sql.DB, func()) {
	t.Helper()
	db, dbCleanup := openTestDB(t)

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}

	group, err := NewSQLGroup(tx)
	if err != nil {
		t.Fatalf("failed to create group: %v", err)
	}

	cleanup := func() {
		tx.Rollback()
		dbCleanup()
	}
	return group, db, cleanup
}

func TestSQLGroup_GetOrAddTableThenGetTable(t *testing.T) {
	group, _, cleanup := openTestGroup(t)
	defer cleanup()

	if _, ok, err := group.GetTable("class_Person"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	} else if ok {
		t.Fatalf("expected class_Person to not yet exist")
	}

	if _, err := group.GetOrAddTable("class_Person"); err != nil {
		t.Fatalf("failed to add table: %v", err)
	}

	table, ok, err := group.GetTable("class_Person")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected class_Person to exist after GetOrAddTable")
	}
	if table.Name() != "class_Person" {
		t.Errorf("expected table name class_Person, got %s", table.Name())
	}
	count, err := table.ColumnCount()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("expected a freshly created table to report 0 logical columns, got %d", count)
	}
}

func TestSQLTable_AddColumnAndRoundTripValues(t *testing.T) {
	group, _, cleanup := openTestGroup(t)
	defer cleanup()

	table, err := group.GetOrAddTable("class_Person")
	if err != nil {
		t.Fatalf("failed to add table: %v", err)
	}

	if err := table.AddColumn(ColumnSpec{Name: "id", Type: schema.Int}); err != nil {
		t.Fatalf("failed to add column: %v", err)
	}
	if err := table.AddColumn(ColumnSpec{Name: "name", Type: schema.String}); err != nil {
		t.Fatalf("failed to add column: %v", err)
	}

	cols, err := table.Columns()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cols) != 2 || cols[0].Name != "id" || cols[1].Name != "name" {
		t.Fatalf("unexpected column layout: %+v", cols)
	}

	if err := table.AddEmptyRows(1); err != nil {
		t.Fatalf("failed to add row: %v", err)
	}

	idIdx, ok, err := table.ColumnIndex("id")
	if err != nil || !ok {
		t.Fatalf("expected to find column id: ok=%v err=%v", ok, err)
	}
	nameIdx, ok, err := table.ColumnIndex("name")
	if err != nil || !ok {
		t.Fatalf("expected to find column name: ok=%v err=%v", ok, err)
	}

	if err := table.WriteInt(0, idIdx, 42); err != nil {
		t.Fatalf("failed to write int: %v", err)
	}
	if err := table.WriteString(0, nameIdx, "Alice"); err != nil {
		t.Fatalf("failed to write string: %v", err)
	}

	gotInt, err := table.ReadInt(0, idIdx)
	if err != nil {
		t.Fatalf("failed to read int: %v", err)
	}
	if gotInt != 42 {
		t.Errorf("expected 42, got %d", gotInt)
	}
	gotStr, err := table.ReadString(0, nameIdx)
	if err != nil {
		t.Fatalf("failed to read string: %v", err)
	}
	if gotStr != "Alice" {
		t.Errorf("expected Alice, got %s", gotStr)
	}
}

func TestSQLTable_InsertColumnShiftsLaterColumns(t *testing.T) {
	group, _, cleanup := openTestGroup(t)
	defer cleanup()

	table, err := group.GetOrAddTable("class_Person")
	if err != nil {
		t.Fatalf("failed to add table: %v", err)
	}
	if err := table.AddColumn(ColumnSpec{Name: "a", Type: schema.Int}); err != nil {
		t.Fatalf("%v", err)
	}
	if err := table.AddColumn(ColumnSpec{Name: "c", Type: schema.Int}); err != nil {
		t.Fatalf("%v", err)
	}
	if err := table.InsertColumn(1, ColumnSpec{Name: "b", Type: schema.Int}); err != nil {
		t.Fatalf("failed to insert column: %v", err)
	}

	cols, err := table.Columns()
	if err != nil {
		t.Fatalf("%v", err)
	}
	names := []string{cols[0].Name, cols[1].Name, cols[2].Name}
	if names[0] != "a" || names[1] != "b" || names[2] != "c" {
		t.Fatalf("expected logical order a,b,c, got %v", names)
	}
}

func TestSQLTable_RemoveColumnShiftsLeft(t *testing.T) {
	group, _, cleanup := openTestGroup(t)
	defer cleanup()

	table, err := group.GetOrAddTable("class_Person")
	if err != nil {
		t.Fatalf("%v", err)
	}
	for _, name := range []string{"a", "b", "c"} {
		if err := table.AddColumn(ColumnSpec{Name: name, Type: schema.Int}); err != nil {
			t.Fatalf("%v", err)
		}
	}

	if err := table.RemoveColumn(1); err != nil {
		t.Fatalf("failed to remove column: %v", err)
	}

	cols, err := table.Columns()
	if err != nil {
		t.Fatalf("%v", err)
	}
	if len(cols) != 2 || cols[0].Name != "a" || cols[1].Name != "c" {
		t.Fatalf("expected [a c] after removing b, got %+v", cols)
	}
}

func TestSQLTable_RenameColumn(t *testing.T) {
	group, _, cleanup := openTestGroup(t)
	defer cleanup()

	table, err := group.GetOrAddTable("class_Person")
	if err != nil {
		t.Fatalf("%v", err)
	}
	if err := table.AddColumn(ColumnSpec{Name: "old", Type: schema.String}); err != nil {
		t.Fatalf("%v", err)
	}
	if err := table.RenameColumn(0, "new"); err != nil {
		t.Fatalf("failed to rename column: %v", err)
	}

	if _, ok, err := table.ColumnIndex("old"); err != nil || ok {
		t.Fatalf("expected old name to be gone: ok=%v err=%v", ok, err)
	}
	if _, ok, err := table.ColumnIndex("new"); err != nil || !ok {
		t.Fatalf("expected new name to resolve: ok=%v err=%v", ok, err)
	}
}

func TestSQLTable_SearchIndexLifecycle(t *testing.T) {
	group, _, cleanup := openTestGroup(t)
	defer cleanup()

	table, err := group.GetOrAddTable("class_Person")
	if err != nil {
		t.Fatalf("%v", err)
	}
	if err := table.AddColumn(ColumnSpec{Name: "name", Type: schema.String}); err != nil {
		t.Fatalf("%v", err)
	}

	if has, err := table.HasSearchIndex(0); err != nil || has {
		t.Fatalf("expected no search index yet: has=%v err=%v", has, err)
	}
	if err := table.AddSearchIndex(0); err != nil {
		t.Fatalf("failed to add search index: %v", err)
	}
	if has, err := table.HasSearchIndex(0); err != nil || !has {
		t.Fatalf("expected search index present: has=%v err=%v", has, err)
	}
	if err := table.RemoveSearchIndex(0); err != nil {
		t.Fatalf("failed to remove search index: %v", err)
	}
	if has, err := table.HasSearchIndex(0); err != nil || has {
		t.Fatalf("expected search index removed: has=%v err=%v", has, err)
	}
}

func TestSQLTable_DistinctCountAndCopyColumnValues(t *testing.T) {
	group, _, cleanup := openTestGroup(t)
	defer cleanup()

	table, err := group.GetOrAddTable("class_Person")
	if err != nil {
		t.Fatalf("%v", err)
	}
	if err := table.AddColumn(ColumnSpec{Name: "src", Type: schema.Int}); err != nil {
		t.Fatalf("%v", err)
	}
	if err := table.AddColumn(ColumnSpec{Name: "dst", Type: schema.Int, Nullable: true}); err != nil {
		t.Fatalf("%v", err)
	}
	if err := table.AddEmptyRows(3); err != nil {
		t.Fatalf("%v", err)
	}
	for i := 0; i < 3; i++ {
		if err := table.WriteInt(i, 0, int64(i%2)); err != nil {
			t.Fatalf("%v", err)
		}
	}

	distinct, err := table.DistinctCount(0)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if distinct != 2 {
		t.Errorf("expected 2 distinct values (0 and 1), got %d", distinct)
	}

	if err := table.CopyColumnValues(0, 1); err != nil {
		t.Fatalf("failed to copy column values: %v", err)
	}
	for i := 0; i < 3; i++ {
		src, err := table.ReadInt(i, 0)
		if err != nil {
			t.Fatalf("%v", err)
		}
		dst, err := table.ReadInt(i, 1)
		if err != nil {
			t.Fatalf("%v", err)
		}
		if src != dst {
			t.Errorf("row %d: expected copied value %d, got %d", i, src, dst)
		}
	}
}

func TestSQLTable_FindFirst(t *testing.T) {
	group, _, cleanup := openTestGroup(t)
	defer cleanup()

	table, err := group.GetOrAddTable("pk")
	if err != nil {
		t.Fatalf("%v", err)
	}
	if err := table.AddColumn(ColumnSpec{Name: "pk_table", Type: schema.String}); err != nil {
		t.Fatalf("%v", err)
	}
	if err := table.AddEmptyRows(2); err != nil {
		t.Fatalf("%v", err)
	}
	if err := table.WriteString(0, 0, "Person"); err != nil {
		t.Fatalf("%v", err)
	}
	if err := table.WriteString(1, 0, "Dog"); err != nil {
		t.Fatalf("%v", err)
	}

	row, ok, err := table.FindFirst(0, "Dog")
	if err != nil {
		t.Fatalf("%v", err)
	}
	if !ok || row != 1 {
		t.Fatalf("expected to find Dog at row 1, got row=%d ok=%v", row, ok)
	}

	if _, ok, err := table.FindFirst(0, "Cat"); err != nil {
		t.Fatalf("%v", err)
	} else if ok {
		t.Errorf("expected Cat to not be found")
	}
}

func TestSQLGroup_DeleteDataForObjectDropsTableAndClearsPK(t *testing.T) {
	group, _, cleanup := openTestGroup(t)
	defer cleanup()

	if _, err := group.GetOrAddTable(TableNameForObjectType("Person")); err != nil {
		t.Fatalf("%v", err)
	}

	pk, err := group.GetOrAddTable("pk")
	if err != nil {
		t.Fatalf("%v", err)
	}
	if err := pk.AddColumn(ColumnSpec{Name: "pk_table", Type: schema.String}); err != nil {
		t.Fatalf("%v", err)
	}
	if err := pk.AddColumn(ColumnSpec{Name: "pk_property", Type: schema.String}); err != nil {
		t.Fatalf("%v", err)
	}
	if err := pk.AddEmptyRows(1); err != nil {
		t.Fatalf("%v", err)
	}
	if err := pk.WriteString(0, 0, "Person"); err != nil {
		t.Fatalf("%v", err)
	}
	if err := pk.WriteString(0, 1, "id"); err != nil {
		t.Fatalf("%v", err)
	}

	if err := group.DeleteDataForObject("Person"); err != nil {
		t.Fatalf("failed to delete data for object: %v", err)
	}

	if _, ok, err := group.GetTable(TableNameForObjectType("Person")); err != nil {
		t.Fatalf("%v", err)
	} else if ok {
		t.Errorf("expected class_Person to no longer exist")
	}

	value, err := pk.ReadString(0, 1)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if value != "" {
		t.Errorf("expected pk_property to be cleared, got %q", value)
	}
}

func TestSQLGroup_IsEmpty(t *testing.T) {
	group, _, cleanup := openTestGroup(t)
	defer cleanup()

	empty, err := group.IsEmpty()
	if err != nil {
		t.Fatalf("%v", err)
	}
	if !empty {
		t.Errorf("expected a fresh group to be empty")
	}

	table, err := group.GetOrAddTable(TableNameForObjectType("Person"))
	if err != nil {
		t.Fatalf("%v", err)
	}
	if err := table.AddColumn(ColumnSpec{Name: "id", Type: schema.Int}); err != nil {
		t.Fatalf("%v", err)
	}
	if err := table.AddEmptyRows(1); err != nil {
		t.Fatalf("%v", err)
	}

	empty, err = group.IsEmpty()
	if err != nil {
		t.Fatalf("%v", err)
	}
	if empty {
		t.Errorf("expected group with a populated object table to not be empty")
	}
}

func TestSQLGroup_RemoveTableIsNoOpWhenAbsent(t *testing.T) {
	group, _, cleanup := openTestGroup(t)
	defer cleanup()

	if err := group.RemoveTable("class_Nonexistent"); err != nil {
		t.Errorf("expected RemoveTable on a missing table to be a no-op, got %v", err)
	}
}
