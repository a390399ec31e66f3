package models

import "fmt"

// MemberState is the join state of a member.
type MemberState int

const (
	NotJoined MemberState = iota
	Joined
)

func (s MemberState) String() string {
	switch s {
	case NotJoined:
		return "not_joined"
	case Joined:
		return "joined"
	default:
		return fmt.Sprintf("MemberState(%d)", int(s))
	}
}

// State returns the member's join state.
func (m *Member) State() MemberState {
	if m.HasJoined {
		return Joined
	}
	return NotJoined
}

// NewGroup builds a group from a normalized roster and a complete
// assignment. The first member becomes the owner. The result has no ID yet;
// the store assigns one on insert.
func NewGroup(name string, budget float64, roster []string, assignment map[string]string) (*Group, error) {
	g := &Group{
		Name:    name,
		Budget:  budget,
		Owner:   roster[0],
		Members: make([]Member, len(roster)),
	}
	for i, n := range roster {
		g.Members[i] = Member{
			Name:       n,
			Wishlist:   []string{},
			AssignedTo: assignment[n],
		}
	}
	if err := g.CheckAssignment(); err != nil {
		return nil, err
	}
	return g, nil
}

// CheckAssignment verifies that AssignedTo forms a derangement of the roster:
// every member gives to exactly one other member and receives from exactly one.
func (g *Group) CheckAssignment() error {
	if len(g.Members) < MinMembers {
		return Internal(fmt.Errorf("group has %d members", len(g.Members)))
	}
	receivers := make(map[string]bool, len(g.Members))
	for _, m := range g.Members {
		if m.AssignedTo == "" {
			return Internal(fmt.Errorf("member %q has no assignee", m.Name))
		}
		if m.AssignedTo == m.Name {
			return Internal(fmt.Errorf("member %q is assigned to themselves", m.Name))
		}
		if _, ok := g.FindMember(m.AssignedTo); !ok {
			return Internal(fmt.Errorf("member %q is assigned to unknown %q", m.Name, m.AssignedTo))
		}
		if receivers[m.AssignedTo] {
			return Internal(fmt.Errorf("member %q receives more than one gift", m.AssignedTo))
		}
		receivers[m.AssignedTo] = true
	}
	return nil
}

// FindMember returns the index of the member matching name.
func (g *Group) FindMember(name string) (int, bool) {
	for i := range g.Members {
		if SameName(g.Members[i].Name, name) {
			return i, true
		}
	}
	return -1, false
}

// Join moves the named member from NotJoined to Joined and returns the
// member and a copy of their assignee.
func (g *Group) Join(name string) (Member, Member, error) {
	i, ok := g.FindMember(name)
	if !ok {
		return Member{}, Member{}, Validationf("no such member")
	}
	m := &g.Members[i]
	if m.State() == Joined {
		return Member{}, Member{}, Conflictf("%s has already joined this group", m.Name)
	}
	assignee, err := g.assigneeOf(m)
	if err != nil {
		return Member{}, Member{}, err
	}
	m.HasJoined = true
	return copyMember(*m), assignee, nil
}

// Assignment returns a copy of the assignee of a member who has joined.
func (g *Group) Assignment(name string) (Member, error) {
	i, ok := g.FindMember(name)
	if !ok {
		return Member{}, Validationf("no such member")
	}
	m := &g.Members[i]
	if m.State() != Joined {
		return Member{}, Validationf("member has not joined")
	}
	return g.assigneeOf(m)
}

func (g *Group) assigneeOf(m *Member) (Member, error) {
	j, ok := g.FindMember(m.AssignedTo)
	if !ok {
		return Member{}, Internal(fmt.Errorf("assignee %q of %q missing from group %s", m.AssignedTo, m.Name, g.ID))
	}
	return copyMember(g.Members[j]), nil
}

// ReplaceWishlist sets the named member's wishlist to exactly items.
func (g *Group) ReplaceWishlist(name string, items []string) error {
	if err := ValidateWishlist(items); err != nil {
		return err
	}
	i, ok := g.FindMember(name)
	if !ok {
		return NotFoundf("member %q not found in group", name)
	}
	g.Members[i].Wishlist = append([]string{}, items...)
	return nil
}

// Authorize fails unless requester is the group owner.
func (g *Group) Authorize(requester string) error {
	if !SameName(requester, g.Owner) {
		return Unauthorizedf("only the group owner can change this group")
	}
	return nil
}

// Edit changes the group name and budget on behalf of requester.
// Ownership is checked before the new values.
func (g *Group) Edit(requester, name string, budget float64) error {
	if err := g.Authorize(requester); err != nil {
		return err
	}
	if err := ValidateGroupDetails(name, budget); err != nil {
		return err
	}
	g.Name = name
	g.Budget = budget
	return nil
}

func copyMember(m Member) Member {
	m.Wishlist = append([]string{}, m.Wishlist...)
	return m
}
