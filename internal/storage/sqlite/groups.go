package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mmynk/kriskindle/internal/models"
	"github.com/mmynk/kriskindle/internal/storage"
)

// ListGroups retrieves all groups with their members.
func (s *SQLiteStore) ListGroups(ctx context.Context) ([]*models.Group, error) {
	return s.queryGroups(ctx,
		"SELECT id, name, budget, owner, created_at, version FROM groups ORDER BY created_at, id",
	)
}

// ListGroupsByIDs retrieves the groups with the given IDs.
// IDs that don't exist are omitted from the result.
func (s *SQLiteStore) ListGroupsByIDs(ctx context.Context, groupIDs []string) ([]*models.Group, error) {
	if len(groupIDs) == 0 {
		return []*models.Group{}, nil
	}
	return s.queryGroups(ctx,
		`SELECT id, name, budget, owner, created_at, version FROM groups
		 WHERE id IN (?`+repeatPlaceholder(len(groupIDs)-1)+`)
		 ORDER BY created_at, id`,
		toArgs(groupIDs)...,
	)
}

func (s *SQLiteStore) queryGroups(ctx context.Context, query string, args ...any) ([]*models.Group, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	groups := []*models.Group{}
	var ids []string
	for rows.Next() {
		g := &models.Group{}
		if err := rows.Scan(&g.ID, &g.Name, &g.Budget, &g.Owner, &g.CreatedAt, &g.Version); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
		ids = append(ids, g.ID)
	}
	// Close before loading members: the store runs on a single connection.
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating groups: %w", err)
	}

	members, err := s.loadMembers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		g.Members = members[g.ID]
	}

	return groups, nil
}

// UpdateGroup writes the group name and budget under a version check.
func (s *SQLiteStore) UpdateGroup(ctx context.Context, group *models.Group) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE groups SET name = ?, budget = ?, version = version + 1 WHERE id = ? AND version = ?",
		group.Name, group.Budget, group.ID, group.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if err := s.groupExists(ctx, group.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s at version %d", storage.ErrVersionConflict, group.ID, group.Version)
	}

	group.Version++
	return nil
}

// DeleteGroup removes a group. Members are removed by the foreign key cascade.
func (s *SQLiteStore) DeleteGroup(ctx context.Context, groupID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM groups WHERE id = ?", groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, groupID)
	}

	return nil
}

func (s *SQLiteStore) groupExists(ctx context.Context, groupID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM groups WHERE id = ?", groupID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, groupID)
	}
	if err != nil {
		return fmt.Errorf("failed to check group: %w", err)
	}
	return nil
}

// repeatPlaceholder returns a string of ", ?" repeated n times.
// Used for building IN clauses with multiple placeholders.
func repeatPlaceholder(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(", ?", n)
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
