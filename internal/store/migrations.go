package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create credentials",
		SQL: `
			CREATE TABLE credentials (
				name        TEXT PRIMARY KEY,
				token       TEXT NOT NULL,
				subject     TEXT NOT NULL DEFAULT '',
				role        INTEGER NOT NULL DEFAULT 0,
				expires_at  TEXT NOT NULL DEFAULT '',
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
	{
		Version: 2,
		Name:    "create chat log",
		SQL: `
			CREATE TABLE chat_messages (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				room        TEXT NOT NULL,
				username    TEXT NOT NULL DEFAULT '',
				message     TEXT NOT NULL,
				received_at TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_chat_messages_room ON chat_messages (room, id);
		`,
	},
}
