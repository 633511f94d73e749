package store

// migration is one schema step; versions are sequential from 1.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	user_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	username   TEXT NOT NULL UNIQUE COLLATE NOCASE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS identities (
	identity_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id        INTEGER NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
	changed        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	del            INTEGER NOT NULL DEFAULT 0,
	standard       INTEGER NOT NULL DEFAULT 0,
	name           TEXT NOT NULL DEFAULT '',
	organization   TEXT NOT NULL DEFAULT '',
	email          TEXT NOT NULL,
	signature      TEXT NOT NULL DEFAULT '',
	html_signature INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_identities_user ON identities(user_id, del);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
