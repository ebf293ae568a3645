package store

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/arkiliandb/schemacore/pkg/schema"
)

// columnMetaTable is the bookkeeping table this package keeps alongside
// the real SQLite tables it manages. SQLite's ALTER TABLE can append or
// drop a column but cannot reposition one, so logical column order,
// nullability and "has a search index" are tracked here rather than
// inferred from SQLite's own column order — the physical table always has
// exactly the same set of columns as the logical one, just not
// necessarily in the same left-to-right order.
const columnMetaTable = "__schemacore_columns"

const createColumnMetaSQL = `
CREATE TABLE IF NOT EXISTS ` + columnMetaTable + ` (
	table_name  TEXT NOT NULL,
	column_name TEXT NOT NULL,
	col_order   INTEGER NOT NULL,
	col_type    INTEGER NOT NULL,
	nullable    INTEGER NOT NULL,
	link_target TEXT NOT NULL DEFAULT '',
	has_index   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (table_name, column_name)
)`

// SQLGroup is a Group backed by a single already-open SQLite write
// transaction. The caller owns the transaction's lifecycle (spec.md §5:
// "the entire apply_schema_changes call executes... inside one write
// transaction supplied by the realm layer") — see schemacore.Store.WithWriteTx for a
// convenience wrapper that opens one, runs a function, and commits or
// rolls back based on whether it returned an error.
type SQLGroup struct {
	tx *sql.Tx
}

// NewSQLGroup wraps an open transaction as a Group. It ensures the
// internal bookkeeping table exists.
func NewSQLGroup(tx *sql.Tx) (*SQLGroup, error) {
	if _, err := tx.Exec(createColumnMetaSQL); err != nil {
		return nil, fmt.Errorf("store: failed to create column metadata table: %w", err)
	}
	return &SQLGroup{tx: tx}, nil
}

// UnderlyingTx exposes the transaction backing this group, for code (such
// as History) that needs to issue SQL outside the Table abstraction.
func (g *SQLGroup) UnderlyingTx() *sql.Tx {
	return g.tx
}

func (g *SQLGroup) tableExists(name string) (bool, error) {
	var n int
	err := g.tx.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (g *SQLGroup) GetTable(name string) (Table, bool, error) {
	ok, err := g.tableExists(name)
	if err != nil || !ok {
		return nil, false, err
	}
	return &sqlTable{tx: g.tx, name: name}, true, nil
}

func (g *SQLGroup) GetOrAddTable(name string) (Table, error) {
	ok, err := g.tableExists(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		// SQLite requires at least one column to create a table; a
		// placeholder column stands in until the first real column is
		// added via InsertColumn/AddColumn, which adds that column and
		// then drops the placeholder (see sqlTable.addPhysicalColumn).
		if _, err := g.tx.Exec(fmt.Sprintf(`CREATE TABLE "%s" (__schemacore_placeholder INTEGER)`, name)); err != nil {
			return nil, fmt.Errorf("store: failed to create table %s: %w", name, err)
		}
	}
	return &sqlTable{tx: g.tx, name: name}, nil
}

func (g *SQLGroup) RemoveTable(name string) error {
	ok, err := g.tableExists(name)
	if err != nil || !ok {
		return err
	}
	if _, err := g.tx.Exec(fmt.Sprintf(`DROP TABLE "%s"`, name)); err != nil {
		return fmt.Errorf("store: failed to drop table %s: %w", name, err)
	}
	if _, err := g.tx.Exec(`DELETE FROM `+columnMetaTable+` WHERE table_name = ?`, name); err != nil {
		return fmt.Errorf("store: failed to clear column metadata for %s: %w", name, err)
	}
	return nil
}

func (g *SQLGroup) DeleteDataForObject(objectType string) error {
	name := TableNameForObjectType(objectType)
	ok, err := g.tableExists(name)
	if err != nil || !ok {
		return err
	}
	if _, err := g.tx.Exec(fmt.Sprintf(`DROP TABLE "%s"`, name)); err != nil {
		return fmt.Errorf("store: failed to drop table %s: %w", name, err)
	}
	if _, err := g.tx.Exec(`DELETE FROM `+columnMetaTable+` WHERE table_name = ?`, name); err != nil {
		return err
	}
	pkExists, err := g.tableExists("pk")
	if err != nil || !pkExists {
		return err
	}
	_, err = g.tx.Exec(`UPDATE pk SET pk_property = '' WHERE pk_table = ?`, objectType)
	return err
}

func (g *SQLGroup) TableNames() ([]string, error) {
	rows, err := g.tx.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' AND name != ?`, columnMetaTable)
	if err != nil {
		return nil, fmt.Errorf("store: failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (g *SQLGroup) IsEmpty() (bool, error) {
	names, err := g.TableNames()
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if ObjectTypeForTableName(name) == "" {
			continue
		}
		table, ok, err := g.GetTable(name)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		size, err := table.Size()
		if err != nil {
			return false, err
		}
		if size > 0 {
			return false, nil
		}
	}
	return true, nil
}

// sqlTable implements Table against one physical SQLite table plus its
// rows in columnMetaTable.
type sqlTable struct {
	tx   *sql.Tx
	name string
}

func (t *sqlTable) Name() string { return t.name }

type metaRow struct {
	name       string
	order      int
	colType    schema.PropertyType
	nullable   bool
	linkTarget string
	hasIndex   bool
}

func (t *sqlTable) metaRows() ([]metaRow, error) {
	rows, err := t.tx.Query(`SELECT column_name, col_order, col_type, nullable, link_target, has_index FROM `+columnMetaTable+` WHERE table_name = ? ORDER BY col_order ASC`, t.name)
	if err != nil {
		return nil, fmt.Errorf("store: failed to read columns for %s: %w", t.name, err)
	}
	defer rows.Close()

	var out []metaRow
	for rows.Next() {
		var m metaRow
		var colType int
		var nullable, hasIndex int
		if err := rows.Scan(&m.name, &m.order, &colType, &nullable, &m.linkTarget, &hasIndex); err != nil {
			return nil, err
		}
		m.colType = schema.PropertyType(colType)
		m.nullable = nullable != 0
		m.hasIndex = hasIndex != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

func (t *sqlTable) ColumnCount() (int, error) {
	rows, err := t.metaRows()
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (t *sqlTable) Columns() ([]ColumnSpec, error) {
	rows, err := t.metaRows()
	if err != nil {
		return nil, err
	}
	specs := make([]ColumnSpec, len(rows))
	for i, r := range rows {
		specs[i] = ColumnSpec{Name: r.name, Type: r.colType, Nullable: r.nullable, LinkTarget: r.linkTarget}
	}
	return specs, nil
}

func (t *sqlTable) ColumnIndex(name string) (int, bool, error) {
	rows, err := t.metaRows()
	if err != nil {
		return 0, false, err
	}
	for i, r := range rows {
		if r.name == name {
			return i, true, nil
		}
	}
	return 0, false, nil
}

func (t *sqlTable) HasSearchIndex(index int) (bool, error) {
	rows, err := t.metaRows()
	if err != nil {
		return false, err
	}
	if index < 0 || index >= len(rows) {
		return false, fmt.Errorf("store: column index %d out of range for table %s", index, t.name)
	}
	return rows[index].hasIndex, nil
}

func sqlTypeFor(t schema.PropertyType) string {
	switch t {
	case schema.Int, schema.Bool, schema.Date, schema.Object, schema.Array:
		return "INTEGER"
	case schema.Float, schema.Double:
		return "REAL"
	case schema.String:
		return "TEXT"
	case schema.Data, schema.Any:
		return "BLOB"
	default:
		return "BLOB"
	}
}

// dropPlaceholder removes the zero-column placeholder column created by
// GetOrAddTable, the first time a real column is added.
func (t *sqlTable) dropPlaceholder() error {
	var n int
	err := t.tx.QueryRow(`SELECT count(*) FROM pragma_table_info(?) WHERE name = '__schemacore_placeholder'`, t.name).Scan(&n)
	if err != nil || n == 0 {
		return err
	}
	_, err = t.tx.Exec(fmt.Sprintf(`ALTER TABLE "%s" DROP COLUMN __schemacore_placeholder`, t.name))
	return err
}

func (t *sqlTable) addPhysicalColumn(spec ColumnSpec) error {
	ddl := fmt.Sprintf(`ALTER TABLE "%s" ADD COLUMN "%s" %s`, t.name, spec.Name, sqlTypeFor(spec.Type))
	if _, err := t.tx.Exec(ddl); err != nil {
		return fmt.Errorf("store: failed to add column %s.%s: %w", t.name, spec.Name, err)
	}
	if err := t.dropPlaceholder(); err != nil {
		return fmt.Errorf("store: failed to drop placeholder column on %s: %w", t.name, err)
	}
	if !spec.Nullable {
		zero := zeroLiteralFor(spec.Type)
		if _, err := t.tx.Exec(fmt.Sprintf(`UPDATE "%s" SET "%s" = %s WHERE "%s" IS NULL`, t.name, spec.Name, zero, spec.Name)); err != nil {
			return fmt.Errorf("store: failed to zero-fill required column %s.%s: %w", t.name, spec.Name, err)
		}
	}
	return nil
}

func zeroLiteralFor(t schema.PropertyType) string {
	switch t {
	case schema.Float, schema.Double:
		return "0.0"
	case schema.String:
		return "''"
	case schema.Data:
		return "x''"
	default:
		return "0"
	}
}

func (t *sqlTable) insertMeta(index int, spec ColumnSpec) error {
	rows, err := t.metaRows()
	if err != nil {
		return err
	}
	if index < 0 || index > len(rows) {
		return fmt.Errorf("store: insert index %d out of range for table %s", index, t.name)
	}
	if _, err := t.tx.Exec(`UPDATE `+columnMetaTable+` SET col_order = col_order + 1 WHERE table_name = ? AND col_order >= ?`, t.name, index); err != nil {
		return err
	}
	nullable := 0
	if spec.Nullable {
		nullable = 1
	}
	_, err = t.tx.Exec(`INSERT INTO `+columnMetaTable+` (table_name, column_name, col_order, col_type, nullable, link_target, has_index) VALUES (?,?,?,?,?,?,0)`,
		t.name, spec.Name, index, int(spec.Type), nullable, spec.LinkTarget)
	return err
}

func (t *sqlTable) AddColumn(spec ColumnSpec) error {
	count, err := t.ColumnCount()
	if err != nil {
		return err
	}
	return t.InsertColumn(count, spec)
}

func (t *sqlTable) InsertColumn(index int, spec ColumnSpec) error {
	if err := t.addPhysicalColumn(spec); err != nil {
		return err
	}
	return t.insertMeta(index, spec)
}

func (t *sqlTable) RemoveColumn(index int) error {
	rows, err := t.metaRows()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(rows) {
		return fmt.Errorf("store: remove index %d out of range for table %s", index, t.name)
	}
	name := rows[index].name
	if rows[index].hasIndex {
		if err := t.RemoveSearchIndex(index); err != nil {
			return err
		}
	}
	if _, err := t.tx.Exec(fmt.Sprintf(`ALTER TABLE "%s" DROP COLUMN "%s"`, t.name, name)); err != nil {
		return fmt.Errorf("store: failed to drop column %s.%s: %w", t.name, name, err)
	}
	if _, err := t.tx.Exec(`DELETE FROM `+columnMetaTable+` WHERE table_name = ? AND column_name = ?`, t.name, name); err != nil {
		return err
	}
	if _, err := t.tx.Exec(`UPDATE `+columnMetaTable+` SET col_order = col_order - 1 WHERE table_name = ? AND col_order > ?`, t.name, rows[index].order); err != nil {
		return err
	}
	return nil
}

func (t *sqlTable) RenameColumn(index int, newName string) error {
	rows, err := t.metaRows()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(rows) {
		return fmt.Errorf("store: rename index %d out of range for table %s", index, t.name)
	}
	old := rows[index].name
	if old == newName {
		return nil
	}
	if _, err := t.tx.Exec(fmt.Sprintf(`ALTER TABLE "%s" RENAME COLUMN "%s" TO "%s"`, t.name, old, newName)); err != nil {
		return fmt.Errorf("store: failed to rename column %s.%s to %s: %w", t.name, old, newName, err)
	}
	_, err = t.tx.Exec(`UPDATE `+columnMetaTable+` SET column_name = ? WHERE table_name = ? AND column_name = ?`, newName, t.name, old)
	return err
}

func (t *sqlTable) AddSearchIndex(index int) error {
	rows, err := t.metaRows()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(rows) {
		return fmt.Errorf("store: index %d out of range for table %s", index, t.name)
	}
	name := rows[index].name
	ddl := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "ix_%s_%s" ON "%s" ("%s")`, t.name, name, t.name, name)
	if _, err := t.tx.Exec(ddl); err != nil {
		return fmt.Errorf("store: failed to create search index on %s.%s: %w", t.name, name, err)
	}
	_, err = t.tx.Exec(`UPDATE `+columnMetaTable+` SET has_index = 1 WHERE table_name = ? AND column_name = ?`, t.name, name)
	return err
}

func (t *sqlTable) RemoveSearchIndex(index int) error {
	rows, err := t.metaRows()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(rows) {
		return fmt.Errorf("store: index %d out of range for table %s", index, t.name)
	}
	name := rows[index].name
	ddl := fmt.Sprintf(`DROP INDEX IF EXISTS "ix_%s_%s"`, t.name, name)
	if _, err := t.tx.Exec(ddl); err != nil {
		return fmt.Errorf("store: failed to drop search index on %s.%s: %w", t.name, name, err)
	}
	_, err = t.tx.Exec(`UPDATE `+columnMetaTable+` SET has_index = 0 WHERE table_name = ? AND column_name = ?`, t.name, name)
	return err
}

func (t *sqlTable) Size() (int64, error) {
	var n int64
	err := t.tx.QueryRow(fmt.Sprintf(`SELECT count(*) FROM "%s"`, t.name)).Scan(&n)
	return n, err
}

func (t *sqlTable) AddEmptyRows(n int64) error {
	for i := int64(0); i < n; i++ {
		if _, err := t.tx.Exec(fmt.Sprintf(`INSERT INTO "%s" DEFAULT VALUES`, t.name)); err != nil {
			return fmt.Errorf("store: failed to add row to %s: %w", t.name, err)
		}
	}
	return nil
}

func (t *sqlTable) DistinctCount(index int) (int64, error) {
	rows, err := t.metaRows()
	if err != nil {
		return 0, err
	}
	if index < 0 || index >= len(rows) {
		return 0, fmt.Errorf("store: index %d out of range for table %s", index, t.name)
	}
	var n int64
	col := rows[index].name
	err = t.tx.QueryRow(fmt.Sprintf(`SELECT (SELECT count(DISTINCT "%s") FROM "%s") + EXISTS(SELECT 1 FROM "%s" WHERE "%s" IS NULL)`,
		col, t.name, t.name, col)).Scan(&n)
	return n, err
}

func (t *sqlTable) CopyColumnValues(src, dst int) error {
	rows, err := t.metaRows()
	if err != nil {
		return err
	}
	if src < 0 || src >= len(rows) || dst < 0 || dst >= len(rows) {
		return fmt.Errorf("store: column index out of range for table %s", t.name)
	}
	_, err = t.tx.Exec(fmt.Sprintf(`UPDATE "%s" SET "%s" = "%s"`, t.name, rows[dst].name, rows[src].name))
	return err
}

// sortedMetaNames sorts rows by logical order and returns their column
// names in that order.
func sortedMetaNames(rows []metaRow) []string {
	sort.Slice(rows, func(i, j int) bool { return rows[i].order < rows[j].order })
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.name
	}
	return names
}

// rowidForIndex translates a logical, zero-based row position into the
// physical SQLite rowid backing it. Row order is stable as long as rows
// are only ever appended and never reordered, which holds for every table
// this package manages (bookkeeping tables are tiny, append-only logs of
// metadata; object tables never rely on row order at all).
func (t *sqlTable) rowidForIndex(row int) (int64, error) {
	var rowid int64
	err := t.tx.QueryRow(fmt.Sprintf(`SELECT rowid FROM "%s" ORDER BY rowid ASC LIMIT 1 OFFSET ?`, t.name), row).Scan(&rowid)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("store: row %d out of range for table %s", row, t.name)
	}
	return rowid, err
}

func (t *sqlTable) columnNameForIndex(col int) (string, error) {
	rows, err := t.metaRows()
	if err != nil {
		return "", err
	}
	if col < 0 || col >= len(rows) {
		return "", fmt.Errorf("store: column index %d out of range for table %s", col, t.name)
	}
	return rows[col].name, nil
}

func (t *sqlTable) ReadInt(row, col int) (int64, error) {
	rowid, err := t.rowidForIndex(row)
	if err != nil {
		return 0, err
	}
	name, err := t.columnNameForIndex(col)
	if err != nil {
		return 0, err
	}
	var v sql.NullInt64
	err = t.tx.QueryRow(fmt.Sprintf(`SELECT "%s" FROM "%s" WHERE rowid = ?`, name, t.name), rowid).Scan(&v)
	return v.Int64, err
}

func (t *sqlTable) WriteInt(row, col int, v int64) error {
	rowid, err := t.rowidForIndex(row)
	if err != nil {
		return err
	}
	name, err := t.columnNameForIndex(col)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(fmt.Sprintf(`UPDATE "%s" SET "%s" = ? WHERE rowid = ?`, t.name, name), v, rowid)
	return err
}

func (t *sqlTable) ReadString(row, col int) (string, error) {
	rowid, err := t.rowidForIndex(row)
	if err != nil {
		return "", err
	}
	name, err := t.columnNameForIndex(col)
	if err != nil {
		return "", err
	}
	var v sql.NullString
	err = t.tx.QueryRow(fmt.Sprintf(`SELECT "%s" FROM "%s" WHERE rowid = ?`, name, t.name), rowid).Scan(&v)
	return v.String, err
}

func (t *sqlTable) WriteString(row, col int, v string) error {
	rowid, err := t.rowidForIndex(row)
	if err != nil {
		return err
	}
	name, err := t.columnNameForIndex(col)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(fmt.Sprintf(`UPDATE "%s" SET "%s" = ? WHERE rowid = ?`, t.name, name), v, rowid)
	return err
}

func (t *sqlTable) FindFirst(col int, value string) (int, bool, error) {
	name, err := t.columnNameForIndex(col)
	if err != nil {
		return 0, false, err
	}
	var rowid int64
	err = t.tx.QueryRow(fmt.Sprintf(`SELECT rowid FROM "%s" WHERE "%s" = ? ORDER BY rowid ASC LIMIT 1`, t.name, name), value).Scan(&rowid)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var idx int
	err = t.tx.QueryRow(fmt.Sprintf(`SELECT count(*) FROM "%s" WHERE rowid < ?`, t.name), rowid).Scan(&idx)
	return idx, true, err
}
