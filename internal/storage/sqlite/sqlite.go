// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/kriskindle/internal/models"
	"github.com/mmynk/kriskindle/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with pure Go driver
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time; a single connection turns lock
	// contention into queueing instead of SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateGroup persists a new group and all of its members in one transaction.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.Group) error {
	// Generate ID if not set
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}
	group.Version = 1

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO groups (id, name, budget, owner, created_at, version) VALUES (?, ?, ?, ?, ?, ?)",
		group.ID, group.Name, group.Budget, group.Owner, group.CreatedAt, group.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}

	for i, m := range group.Members {
		wishlist, err := encodeWishlist(m.Wishlist)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, position, name, name_key, assigned_to, has_joined, wishlist)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			group.ID, i, m.Name, models.NameKey(m.Name), m.AssignedTo, m.HasJoined, wishlist,
		)
		if err != nil {
			return fmt.Errorf("failed to insert member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetGroup retrieves a group by ID, including all members.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group := &models.Group{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, budget, owner, created_at, version FROM groups WHERE id = ?",
		groupID,
	).Scan(&group.ID, &group.Name, &group.Budget, &group.Owner, &group.CreatedAt, &group.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	members, err := s.loadMembers(ctx, []string{group.ID})
	if err != nil {
		return nil, err
	}
	group.Members = members[group.ID]

	return group, nil
}

// loadMembers returns the members of each group in roster order.
func (s *SQLiteStore) loadMembers(ctx context.Context, groupIDs []string) (map[string][]models.Member, error) {
	members := make(map[string][]models.Member, len(groupIDs))
	if len(groupIDs) == 0 {
		return members, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, name, assigned_to, has_joined, wishlist
		 FROM group_members
		 WHERE group_id IN (?`+repeatPlaceholder(len(groupIDs)-1)+`)
		 ORDER BY group_id, position`,
		toArgs(groupIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			groupID  string
			m        models.Member
			wishlist string
		)
		if err := rows.Scan(&groupID, &m.Name, &m.AssignedTo, &m.HasJoined, &wishlist); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		if m.Wishlist, err = decodeWishlist(wishlist); err != nil {
			return nil, err
		}
		members[groupID] = append(members[groupID], m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	return members, nil
}

func encodeWishlist(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to encode wishlist: %w", err)
	}
	return string(b), nil
}

func decodeWishlist(raw string) ([]string, error) {
	items := []string{}
	if raw == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("failed to decode wishlist: %w", err)
	}
	return items, nil
}
