package postgres

import (
	"context"
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS groups (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    budget DOUBLE PRECISION NOT NULL CHECK (budget > 0),
    owner TEXT NOT NULL,
    created_at BIGINT NOT NULL,
    version BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS group_members (
    group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    name_key TEXT NOT NULL,
    assigned_to TEXT NOT NULL,
    has_joined BOOLEAN NOT NULL DEFAULT FALSE,
    wishlist JSONB NOT NULL DEFAULT '[]'::jsonb,
    PRIMARY KEY (group_id, position),
    UNIQUE (group_id, name_key)
);
`

func runMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
