package models

// MinMembers is the smallest roster a group can be created with.
const MinMembers = 3

// Group represents a gift-exchange group.
// The roster, owner and assignments are fixed at creation.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group (e.g., "Office Secret Santa").
	Name string

	// Budget is the suggested spend per gift. Always positive.
	Budget float64

	// Owner is the name of the member allowed to edit or delete the group.
	// By convention the first member listed at creation.
	Owner string

	// Members is the ordered roster. Never fewer than MinMembers.
	Members []Member

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64

	// Version increases by one on every successful edit of name or budget.
	// Stores use it as the compare-and-swap precondition for updates.
	Version int64
}

// Member is one participant in a group.
type Member struct {
	// Name is unique within the group, compared case-insensitively.
	Name string

	// Wishlist is the ordered list of items this member would like.
	// Visible to whoever is assigned to this member.
	Wishlist []string

	// AssignedTo is the name of the member this member gives a gift to.
	AssignedTo string

	// HasJoined reports whether the member has claimed their spot.
	HasJoined bool
}

// Clone returns a deep copy of the group so callers can mutate it freely.
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	out := *g
	out.Members = make([]Member, len(g.Members))
	for i, m := range g.Members {
		out.Members[i] = m
		out.Members[i].Wishlist = append([]string{}, m.Wishlist...)
	}
	return &out
}

// MemberNames returns the roster names in order.
func (g *Group) MemberNames() []string {
	names := make([]string, len(g.Members))
	for i, m := range g.Members {
		names[i] = m.Name
	}
	return names
}
