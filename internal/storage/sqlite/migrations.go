package sqlite

import "database/sql"

// schema sets up the database. It runs on startup to ensure tables exist.
// Members are stored one row per member; position keeps roster order and
// name_key (models.NameKey of the name) enforces case-insensitive uniqueness.
const schema = `
CREATE TABLE IF NOT EXISTS groups (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    budget REAL NOT NULL CHECK (budget > 0),
    owner TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    version INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS group_members (
    group_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    name_key TEXT NOT NULL,
    assigned_to TEXT NOT NULL,
    has_joined INTEGER NOT NULL DEFAULT 0,
    wishlist TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (group_id, position),
    UNIQUE (group_id, name_key),
    FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_group_members_group_id ON group_members(group_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
