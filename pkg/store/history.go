package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/arkiliandb/schemacore/internal/errkit"
)

// HistoryGroup is the subset of Group a schema version history needs: just
// enough to get or create its own backing table.
type HistoryGroup interface {
	GetOrAddTable(name string) (Table, error)
}

const historyTableName = "__schemacore_history"

// createHistoryTableSQL is issued directly against the underlying *sql.Tx
// rather than through the Table abstraction: the history log is a
// schemacore-owned append log, not an object table, so it keeps its own
// fixed shape instead of going through column_meta bookkeeping.
const createHistoryTableSQL = `
CREATE TABLE IF NOT EXISTS ` + historyTableName + ` (
	run_id     TEXT PRIMARY KEY,
	applied_at INTEGER NOT NULL,
	version    INTEGER NOT NULL,
	fingerprint TEXT NOT NULL,
	snapshot   BLOB NOT NULL
)`

// History records every successful UpdateSchema call against a store,
// compressing each schema snapshot with snappy (the teacher's
// SchemaVersionManager keeps a similar rolling log for diagnosing disk
// files that were migrated by an older build of the app).
type History struct {
	tx *sql.Tx
}

// NewHistory wraps an open write transaction, creating the history table
// if this is the first schema ever applied to the file.
func NewHistory(tx *sql.Tx) (*History, error) {
	if _, err := tx.Exec(createHistoryTableSQL); err != nil {
		return nil, errkit.Wrap(errkit.CategoryHistory, errkit.CodeHistoryWrite, "failed to create history table", err)
	}
	return &History{tx: tx}, nil
}

// Entry is one recorded schema application.
type Entry struct {
	RunID       uuid.UUID
	AppliedAt   time.Time
	Version     uint64
	Fingerprint uint64
	Snapshot    []byte // caller-supplied serialized schema, e.g. JSON
}

// Record appends a new entry. The snapshot is compressed with snappy
// before being stored; RunID is generated by the caller (the root
// schemacore package's Store.UpdateSchema stamps one per call) so that a
// failed transaction's
// rollback can be correlated against a caller-side log line using the
// same ID.
func (h *History) Record(e Entry) error {
	compressed := snappy.Encode(nil, e.Snapshot)
	_, err := h.tx.Exec(
		`INSERT INTO `+historyTableName+` (run_id, applied_at, version, fingerprint, snapshot) VALUES (?,?,?,?,?)`,
		e.RunID.String(), e.AppliedAt.UnixNano(), e.Version, fmt.Sprintf("%x", e.Fingerprint), compressed,
	)
	if err != nil {
		return errkit.Wrap(errkit.CategoryHistory, errkit.CodeHistoryWrite, "failed to record schema history entry", err)
	}
	return nil
}

// Latest returns the most recently recorded entry, or ok=false if the
// file has never had a schema applied to it.
func (h *History) Latest() (Entry, bool, error) {
	row := h.tx.QueryRow(`SELECT run_id, applied_at, version, fingerprint, snapshot FROM ` + historyTableName + ` ORDER BY applied_at DESC LIMIT 1`)

	var runID, fingerprintHex string
	var appliedAt int64
	var version uint64
	var compressed []byte
	if err := row.Scan(&runID, &appliedAt, &version, &fingerprintHex, &compressed); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, false, nil
		}
		return Entry{}, false, errkit.Wrap(errkit.CategoryHistory, errkit.CodeHistoryRead, "failed to read schema history", err)
	}

	snapshot, err := snappy.Decode(nil, compressed)
	if err != nil {
		return Entry{}, false, errkit.Wrap(errkit.CategoryHistory, errkit.CodeHistoryCorrupt, "corrupt schema history snapshot", err)
	}
	id, err := uuid.Parse(runID)
	if err != nil {
		return Entry{}, false, errkit.Wrap(errkit.CategoryHistory, errkit.CodeHistoryCorrupt, "corrupt schema history run id", err)
	}
	var fp uint64
	if _, err := fmt.Sscanf(fingerprintHex, "%x", &fp); err != nil {
		return Entry{}, false, errkit.Wrap(errkit.CategoryHistory, errkit.CodeHistoryCorrupt, "corrupt schema history fingerprint", err)
	}

	return Entry{
		RunID:       id,
		AppliedAt:   time.Unix(0, appliedAt),
		Version:     version,
		Fingerprint: fp,
		Snapshot:    snapshot,
	}, true, nil
}

// All returns every recorded entry, oldest first.
func (h *History) All() ([]Entry, error) {
	rows, err := h.tx.Query(`SELECT run_id, applied_at, version, fingerprint, snapshot FROM ` + historyTableName + ` ORDER BY applied_at ASC`)
	if err != nil {
		return nil, errkit.Wrap(errkit.CategoryHistory, errkit.CodeHistoryRead, "failed to read schema history", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var runID, fingerprintHex string
		var appliedAt int64
		var version uint64
		var compressed []byte
		if err := rows.Scan(&runID, &appliedAt, &version, &fingerprintHex, &compressed); err != nil {
			return nil, errkit.Wrap(errkit.CategoryHistory, errkit.CodeHistoryRead, "failed to scan schema history row", err)
		}
		snapshot, err := snappy.Decode(nil, compressed)
		if err != nil {
			return nil, errkit.Wrap(errkit.CategoryHistory, errkit.CodeHistoryCorrupt, fmt.Sprintf("corrupt schema history snapshot for run %s", runID), err)
		}
		id, err := uuid.Parse(runID)
		if err != nil {
			return nil, errkit.Wrap(errkit.CategoryHistory, errkit.CodeHistoryCorrupt, "corrupt schema history run id", err)
		}
		var fp uint64
		if _, err := fmt.Sscanf(fingerprintHex, "%x", &fp); err != nil {
			return nil, errkit.Wrap(errkit.CategoryHistory, errkit.CodeHistoryCorrupt, "corrupt schema history fingerprint", err)
		}
		entries = append(entries, Entry{RunID: id, AppliedAt: time.Unix(0, appliedAt), Version: version, Fingerprint: fp, Snapshot: snapshot})
	}
	return entries, rows.Err()
}

// MarshalSnapshot is a small helper so callers don't each reimplement
// "compact JSON, no trailing newline" for the Snapshot field.
func MarshalSnapshot(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, errkit.Wrap(errkit.CategoryHistory, errkit.CodeHistoryWrite, "failed to marshal schema snapshot", err)
	}
	out := buf.Bytes()
	return bytes.TrimRight(out, "\n"), nil
}
