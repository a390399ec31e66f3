package models

import (
	"math"
	"strings"

	"golang.org/x/text/cases"
)

// NameKey returns the identity key of a member name: trimmed and Unicode
// case-folded. Rosters, lookups and the stores' unique index all compare
// names through this key.
func NameKey(name string) string {
	// A Caser keeps state and is not safe for concurrent use.
	return cases.Fold().String(strings.TrimSpace(name))
}

// SameName reports whether two member names refer to the same member.
func SameName(a, b string) bool {
	return NameKey(a) == NameKey(b)
}

// ValidateGroupDetails checks the owner-editable fields of a group.
func ValidateGroupDetails(name string, budget float64) error {
	if strings.TrimSpace(name) == "" {
		return Validationf("group name is required")
	}
	if math.IsNaN(budget) || math.IsInf(budget, 0) || budget <= 0 {
		return Validationf("budget must be a positive number")
	}
	return nil
}

// NormalizeRoster validates member names and returns them trimmed, in order.
// Rosters need at least MinMembers entries, none blank, and no two equal
// under NameKey.
func NormalizeRoster(names []string) ([]string, error) {
	if len(names) < MinMembers {
		return nil, Validationf("a group needs at least %d members, got %d", MinMembers, len(names))
	}
	out := make([]string, len(names))
	seen := make(map[string]string, len(names))
	for i, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return nil, Validationf("member %d has an empty name", i+1)
		}
		key := NameKey(trimmed)
		if prev, ok := seen[key]; ok {
			return nil, Validationf("duplicate member name %q (already listed as %q)", trimmed, prev)
		}
		seen[key] = trimmed
		out[i] = trimmed
	}
	return out, nil
}

// ValidateWishlist rejects blank items. An empty list is allowed and clears
// the wishlist.
func ValidateWishlist(items []string) error {
	for i, item := range items {
		if strings.TrimSpace(item) == "" {
			return Validationf("wishlist item %d is empty", i+1)
		}
	}
	return nil
}
