// Package postgres provides a Postgres-backed implementation of the
// storage.Store interface using pgx through database/sql.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/mmynk/kriskindle/internal/models"
	"github.com/mmynk/kriskindle/internal/storage"
)

// Compile-time contract assertion ensuring the store satisfies the storage interface.
var _ storage.Store = (*Store)(nil)

const defaultDSN = "postgres://localhost/kriskindle?sslmode=disable"

// Store persists groups to Postgres.
type Store struct {
	db *sql.DB
}

// New opens a Postgres-backed store using dsn (falls back to defaultDSN),
// verifies the connection and applies the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateGroup inserts the group and its members in one transaction.
func (s *Store) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}
	group.Version = 1

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO groups (id, name, budget, owner, created_at, version) VALUES ($1, $2, $3, $4, $5, $6)`,
		group.ID, group.Name, group.Budget, group.Owner, group.CreatedAt, group.Version,
	); err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	for i, m := range group.Members {
		wishlist, err := encodeWishlist(m.Wishlist)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, position, name, name_key, assigned_to, has_joined, wishlist)
			 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)`,
			group.ID, i, m.Name, models.NameKey(m.Name), m.AssignedTo, m.HasJoined, wishlist,
		); err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetGroup loads one group with its members.
func (s *Store) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	groups, err := s.queryGroups(ctx,
		`SELECT id, name, budget, owner, created_at, version FROM groups WHERE id = $1`, groupID)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, groupID)
	}
	return groups[0], nil
}

// ListGroups loads every group.
func (s *Store) ListGroups(ctx context.Context) ([]*models.Group, error) {
	return s.queryGroups(ctx,
		`SELECT id, name, budget, owner, created_at, version FROM groups ORDER BY created_at, id`)
}

// ListGroupsByIDs loads the groups with the given IDs, skipping unknown ones.
func (s *Store) ListGroupsByIDs(ctx context.Context, groupIDs []string) ([]*models.Group, error) {
	if len(groupIDs) == 0 {
		return []*models.Group{}, nil
	}
	return s.queryGroups(ctx,
		`SELECT id, name, budget, owner, created_at, version FROM groups
		 WHERE id = ANY($1) ORDER BY created_at, id`, groupIDs)
}

func (s *Store) queryGroups(ctx context.Context, query string, args ...any) ([]*models.Group, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	groups := []*models.Group{}
	byID := map[string]*models.Group{}
	var ids []string
	for rows.Next() {
		g := &models.Group{}
		if err := rows.Scan(&g.ID, &g.Name, &g.Budget, &g.Owner, &g.CreatedAt, &g.Version); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
		byID[g.ID] = g
		ids = append(ids, g.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	if len(ids) == 0 {
		return groups, nil
	}

	memberRows, err := s.db.QueryContext(ctx,
		`SELECT group_id, name, assigned_to, has_joined, wishlist FROM group_members
		 WHERE group_id = ANY($1) ORDER BY group_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("select members: %w", err)
	}
	defer func() { _ = memberRows.Close() }()

	for memberRows.Next() {
		var (
			groupID  string
			m        models.Member
			wishlist []byte
		)
		if err := memberRows.Scan(&groupID, &m.Name, &m.AssignedTo, &m.HasJoined, &wishlist); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Wishlist = []string{}
		if len(wishlist) > 0 {
			if err := json.Unmarshal(wishlist, &m.Wishlist); err != nil {
				return nil, fmt.Errorf("decode wishlist: %w", err)
			}
		}
		if g, ok := byID[groupID]; ok {
			g.Members = append(g.Members, m)
		}
	}
	if err := memberRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return groups, nil
}

// UpdateGroup writes name and budget under a version check.
func (s *Store) UpdateGroup(ctx context.Context, group *models.Group) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE groups SET name = $1, budget = $2, version = version + 1 WHERE id = $3 AND version = $4`,
		group.Name, group.Budget, group.ID, group.Version,
	)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if err := s.groupExists(ctx, group.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s at version %d", storage.ErrVersionConflict, group.ID, group.Version)
	}
	group.Version++
	return nil
}

// JoinMember flips has_joined on one member row, guarded by NOT has_joined.
func (s *Store) JoinMember(ctx context.Context, groupID, nameKey string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE group_members SET has_joined = TRUE
		 WHERE group_id = $1 AND name_key = $2 AND NOT has_joined`,
		groupID, nameKey,
	)
	if err != nil {
		return fmt.Errorf("join member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	joined, err := s.memberJoined(ctx, groupID, nameKey)
	if err != nil {
		return err
	}
	if joined {
		return fmt.Errorf("%w: %s", storage.ErrAlreadyJoined, nameKey)
	}
	return fmt.Errorf("member %s of group %s was not updated", nameKey, groupID)
}

// SetWishlist replaces one member's wishlist.
func (s *Store) SetWishlist(ctx context.Context, groupID, nameKey string, items []string) error {
	wishlist, err := encodeWishlist(items)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE group_members SET wishlist = $1::jsonb WHERE group_id = $2 AND name_key = $3`,
		wishlist, groupID, nameKey,
	)
	if err != nil {
		return fmt.Errorf("update wishlist: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	_, err = s.memberJoined(ctx, groupID, nameKey)
	return err
}

func (s *Store) memberJoined(ctx context.Context, groupID, nameKey string) (bool, error) {
	var joined bool
	err := s.db.QueryRowContext(ctx,
		`SELECT has_joined FROM group_members WHERE group_id = $1 AND name_key = $2`,
		groupID, nameKey,
	).Scan(&joined)
	if err == nil {
		return joined, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("check member: %w", err)
	}
	if err := s.groupExists(ctx, groupID); err != nil {
		return false, err
	}
	return false, fmt.Errorf("%w: %s", storage.ErrMemberNotFound, nameKey)
}

func (s *Store) groupExists(ctx context.Context, groupID string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT TRUE FROM groups WHERE id = $1`, groupID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, groupID)
	}
	if err != nil {
		return fmt.Errorf("check group: %w", err)
	}
	return nil
}

// DeleteGroup removes a group; members go with it through the cascade.
func (s *Store) DeleteGroup(ctx context.Context, groupID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, groupID)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, groupID)
	}
	return nil
}

func encodeWishlist(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode wishlist: %w", err)
	}
	return string(b), nil
}
