// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/kriskindle/internal/models"
)

var (
	// ErrNotFound is returned when no group has the requested ID.
	ErrNotFound = errors.New("group not found")

	// ErrVersionConflict is returned by UpdateGroup when the stored version
	// no longer matches the version the caller read.
	ErrVersionConflict = errors.New("group was modified concurrently")

	// ErrMemberNotFound is returned when the group has no member with the
	// requested name key.
	ErrMemberNotFound = errors.New("member not found")

	// ErrAlreadyJoined is returned by JoinMember when the member had joined
	// before the call.
	ErrAlreadyJoined = errors.New("member already joined")
)

// Store defines the interface for group storage operations.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL)
// without changing the service layer.
//
// Groups are read as a whole aggregate. Writes are narrow: group details go
// through a version check, while joins and wishlists touch one member row,
// so members of the same group never contend with each other.
//
// Members are addressed by name key (models.NameKey).
type Store interface {
	// CreateGroup persists a new group, members included, in one transaction.
	// ID, CreatedAt and Version are populated by the store.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group by its ID.
	// Returns ErrNotFound if the group does not exist.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// ListGroups retrieves all groups, oldest first.
	ListGroups(ctx context.Context) ([]*models.Group, error)

	// ListGroupsByIDs retrieves the groups whose IDs are in groupIDs.
	// Unknown IDs are skipped.
	ListGroupsByIDs(ctx context.Context, groupIDs []string) ([]*models.Group, error)

	// UpdateGroup writes the group name and budget if the stored version
	// still equals group.Version. On success group.Version is incremented.
	// Members are not written.
	// Returns ErrNotFound or ErrVersionConflict otherwise.
	UpdateGroup(ctx context.Context, group *models.Group) error

	// JoinMember flips the member's join flag from false to true in a single
	// conditional write. Returns ErrNotFound, ErrMemberNotFound, or
	// ErrAlreadyJoined when the flag was already set.
	JoinMember(ctx context.Context, groupID, nameKey string) error

	// SetWishlist replaces one member's wishlist.
	// Returns ErrNotFound or ErrMemberNotFound.
	SetWishlist(ctx context.Context, groupID, nameKey string, items []string) error

	// DeleteGroup removes a group and its members.
	// Returns ErrNotFound if the group does not exist.
	DeleteGroup(ctx context.Context, groupID string) error

	// Close releases any resources held by the store.
	Close() error
}
