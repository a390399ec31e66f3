package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmynk/kriskindle/internal/storage"
)

// JoinMember sets has_joined on one member row. The has_joined = 0 guard
// makes concurrent joins of the same member race on a single row: exactly
// one sees a row affected.
func (s *SQLiteStore) JoinMember(ctx context.Context, groupID, nameKey string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE group_members SET has_joined = 1 WHERE group_id = ? AND name_key = ? AND has_joined = 0",
		groupID, nameKey,
	)
	if err != nil {
		return fmt.Errorf("failed to join member: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
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

// SetWishlist replaces the wishlist column of one member row.
func (s *SQLiteStore) SetWishlist(ctx context.Context, groupID, nameKey string, items []string) error {
	wishlist, err := encodeWishlist(items)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		"UPDATE group_members SET wishlist = ? WHERE group_id = ? AND name_key = ?",
		wishlist, groupID, nameKey,
	)
	if err != nil {
		return fmt.Errorf("failed to update wishlist: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}
	_, err = s.memberJoined(ctx, groupID, nameKey)
	return err
}

// memberJoined reads one member's join flag, distinguishing a missing group
// from a missing member.
func (s *SQLiteStore) memberJoined(ctx context.Context, groupID, nameKey string) (bool, error) {
	var joined bool
	err := s.db.QueryRowContext(ctx,
		"SELECT has_joined FROM group_members WHERE group_id = ? AND name_key = ?",
		groupID, nameKey,
	).Scan(&joined)
	if err == nil {
		return joined, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to check member: %w", err)
	}
	if err := s.groupExists(ctx, groupID); err != nil {
		return false, err
	}
	return false, fmt.Errorf("%w: %s", storage.ErrMemberNotFound, nameKey)
}
