// Package models defines the core domain models for Kriskindle.
//
// # Models
//
//   - Group: a gift-exchange group with a fixed roster, a budget and an owner
//   - Member: one participant, their wishlist, join state and secret assignee
//
// Members are identified by name (no user accounts). Names are matched by
// NameKey, a Unicode case fold, everywhere a caller supplies one.
//
// # Lifecycle
//
// A Group is created fully populated, with every member's assignee already
// computed. After creation only three things change:
//
//  1. a member's join state (NotJoined -> Joined, once)
//  2. a member's wishlist (replaced in full by that member)
//  3. the group's name and budget (by the owner only)
//
// The transitions live in lifecycle.go. The service layer checks them on a
// freshly loaded aggregate, then persists joins and wishlists as single
// member-row writes and name/budget edits with a version check.
package models
