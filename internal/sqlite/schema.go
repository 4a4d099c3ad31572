// Schema DDL for the kv table and its change log.
package sqlite

// Schema DDL. Statements are idempotent: the database persists across
// attachments and is shared by every process attached to the data dir.
const (
	createKV = `CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    value TEXT NOT NULL,
    version INTEGER NOT NULL,
    writer_id TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createChanges = `CREATE TABLE IF NOT EXISTS changes (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    change_id TEXT NOT NULL,
    key TEXT NOT NULL,
    operation TEXT NOT NULL,
    writer_id TEXT NOT NULL,
    changed_at TEXT NOT NULL
);`
)

// Index DDL.
const (
	idxChangesKey = `CREATE INDEX IF NOT EXISTS idx_changes_key ON changes(key);`
)

// Change log operations.
const (
	opSet    = "set"
	opRemove = "remove"
)

// changeLogRetain is how many change log rows survive pruning on Attach.
// Peers further behind than this only miss notifications, not data.
const changeLogRetain = 10000

// schemaDDL lists all statements executed on Attach, in order.
var schemaDDL = []string{
	createKV,
	createChanges,
	idxChangesKey,
}
