// ABOUTME: Schema for a single tenant store: record, setting and file_ref tables
// ABOUTME: Every statement is CREATE ... IF NOT EXISTS so provisioning can be re-run safely

package tenantdb

// Table names inside a tenant store.
const (
	TableRecord  = "record"
	TableSetting = "setting"
	TableFileRef = "file_ref"
)

const tenantSchema = `
	CREATE TABLE IF NOT EXISTS record (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		key        TEXT NOT NULL,
		value      TEXT,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_record_created ON record(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_record_key ON record(key);

	CREATE TABLE IF NOT EXISTS setting (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		setting_key   TEXT UNIQUE NOT NULL,
		setting_value TEXT,
		created_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
		updated_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	);

	CREATE TABLE IF NOT EXISTS file_ref (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		filename    TEXT NOT NULL,
		path        TEXT NOT NULL,
		type        TEXT,
		size        INTEGER,
		uploaded_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	);
`
